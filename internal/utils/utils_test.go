package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	table := NewTable("TASK", "STEPS", "TIMEOUT")
	table.AddRow("deploy", "4", "30s")
	table.AddRow("cleanup", "1")
	table.AddRow("x", "1", "1s", "ignored")

	want := "" +
		"┌─────────┬───────┬─────────┐\n" +
		"│ TASK    │ STEPS │ TIMEOUT │\n" +
		"├─────────┼───────┼─────────┤\n" +
		"│ deploy  │ 4     │ 30s     │\n" +
		"│ cleanup │ 1     │         │\n" +
		"│ x       │ 1     │ 1s      │\n" +
		"└─────────┴───────┴─────────┘\n"

	assert.Equal(t, want, table.String())

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))
	assert.Equal(t, want, buf.String())
}

func TestBoxRender(t *testing.T) {
	out := NewBox(SuccessMessage, "Task deploy succeeded").
		AddField("Run", "abc").
		AddBullet("4 steps").
		Render()

	assert.Contains(t, out, "✓ Task deploy succeeded")
	assert.Contains(t, out, "Run: abc")
	assert.Contains(t, out, "• 4 steps")
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "╯")
}

func TestBoxHelpers(t *testing.T) {
	assert.Contains(t, Success("2 task(s) succeeded"), "✓ 2 task(s) succeeded")

	out := Warning("Run cancelled", "No task was started.")
	assert.Contains(t, out, "⚠ Run cancelled")
	assert.Contains(t, out, "No task was started.")
}

func TestConfirmItems(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		autoApprove bool
		want        bool
		wantPrompt  bool
	}{
		{"Auto approve", "", true, true, false},
		{"Yes", "yes\n", false, true, true},
		{"Short yes without newline", "Y", false, true, true},
		{"No", "no\n", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			ok, err := ConfirmItems(strings.NewReader(tt.input), &out, tt.autoApprove, "stop", []string{"p/z/web-1"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantPrompt, strings.Contains(out.String(), "1. p/z/web-1"))
		})
	}
}

func TestConfirmItems_NoInput(t *testing.T) {
	var out bytes.Buffer
	_, err := ConfirmItems(strings.NewReader(""), &out, false, "stop", nil)
	assert.ErrorContains(t, err, "failed to read user confirmation")
}
