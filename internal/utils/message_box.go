package utils

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// MessageType defines the type of message box to render.
type MessageType int

const (
	InfoMessage MessageType = iota
	SuccessMessage
	WarningMessage
	ErrorMessage
)

var boxStyles = map[MessageType]struct {
	color  lipgloss.Color
	prefix string
}{
	InfoMessage:    {lipgloss.Color("86"), "ℹ"},
	SuccessMessage: {lipgloss.Color("42"), "✓"},
	WarningMessage: {lipgloss.Color("178"), "⚠"},
	ErrorMessage:   {lipgloss.Color("196"), "✗"},
}

// Box is a builder for bordered message boxes.
type Box struct {
	messageType MessageType
	title       string
	content     []string
	width       int
}

// NewBox creates a message box sized to the terminal.
func NewBox(messageType MessageType, title string) *Box {
	return &Box{
		messageType: messageType,
		title:       title,
		width:       getTerminalWidth() - 8,
	}
}

// AddLine adds a line of text to the box.
func (b *Box) AddLine(text string) *Box {
	b.content = append(b.content, text)
	return b
}

// AddField adds an aligned "label: value" line.
func (b *Box) AddField(label, value string) *Box {
	b.content = append(b.content, label+": "+value)
	return b
}

// AddBullet adds a bulleted line to the box.
func (b *Box) AddBullet(text string) *Box {
	b.content = append(b.content, "• "+text)
	return b
}

// Render returns the box as a string.
func (b *Box) Render() string {
	style, ok := boxStyles[b.messageType]
	if !ok {
		style = boxStyles[InfoMessage]
	}

	accent := lipgloss.NewStyle().Foreground(style.color)
	header := accent.Bold(true).Render(style.prefix + " " + b.title)

	lines := append([]string{header}, b.content...)
	body := strings.Join(lines, "\n")

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(style.color).
		Padding(0, 1)

	if b.width > 0 && lipgloss.Width(body)+frame.GetHorizontalFrameSize() > b.width {
		frame = frame.Width(b.width - frame.GetHorizontalBorderSize())
	}
	return frame.Render(body)
}

// Success renders a success box.
func Success(title string, lines ...string) string {
	return render(SuccessMessage, title, lines)
}

// Warning renders a warning box.
func Warning(title string, lines ...string) string {
	return render(WarningMessage, title, lines)
}

func render(messageType MessageType, title string, lines []string) string {
	box := NewBox(messageType, title)
	for _, line := range lines {
		box.AddLine(line)
	}
	return box.Render()
}

// getTerminalWidth returns the terminal width or defaults to 80 if unable to detect.
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
