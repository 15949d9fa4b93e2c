package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	User *UserLogger // Clean messages for users (stdout)
	Op   *OpLogger   // Detailed operational logs (stderr)
)

// init ensures loggers are never nil
func init() {
	internal := GetLogger().GetInternalLogger()
	User = &UserLogger{logger: internal}
	Op = &OpLogger{logger: internal}
}

type UserLogger struct {
	logger *logrus.Logger
}

type OpLogger struct {
	logger *logrus.Logger
}

func (u *UserLogger) entry(emoji string) *logrus.Entry {
	fields := logrus.Fields{"log_type": string(UserLog)}
	if emoji != "" {
		fields["emoji"] = emoji
	}
	return u.logger.WithFields(fields)
}

// UserLogger methods with emojis built-in
func (u *UserLogger) Info(msg string) {
	u.entry("").Info(msg)
}

func (u *UserLogger) Errorf(format string, args ...interface{}) {
	u.entry("❌").Errorf(format, args...)
}

func (u *UserLogger) Warn(msg string) {
	u.entry("⚠️").Warn(msg)
}

// Run lifecycle messages
func (u *UserLogger) Startingf(format string, args ...interface{}) {
	u.entry("🚀").Infof(format, args...)
}

func (u *UserLogger) Successf(format string, args ...interface{}) {
	u.entry("✅").Infof(format, args...)
}

func (u *UserLogger) Stepf(format string, args ...interface{}) {
	u.entry("▶️").Infof(format, args...)
}

func (u *UserLogger) Abortedf(format string, args ...interface{}) {
	u.entry("🛑").Warnf(format, args...)
}

func (u *UserLogger) TimedOutf(format string, args ...interface{}) {
	u.entry("⏰").Errorf(format, args...)
}

// OpLogger methods without emojis - clean operational logs
func (o *OpLogger) Warnf(format string, args ...interface{}) {
	o.logger.WithField("log_type", string(OpLog)).Warnf(format, args...)
}

func (o *OpLogger) Debug(msg string) {
	o.logger.WithField("log_type", string(OpLog)).Debug(msg)
}

func (o *OpLogger) Debugf(format string, args ...interface{}) {
	o.logger.WithField("log_type", string(OpLog)).Debugf(format, args...)
}

func (o *OpLogger) WithFields(fields map[string]interface{}) *logrus.Entry {
	merged := make(logrus.Fields, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["log_type"] = string(OpLog)
	return o.logger.WithFields(merged)
}

// CLIFormatter provides clean output for CLI applications
type CLIFormatter struct {
	DisableTimestamp bool
	DisableLevel     bool
	DisableColors    bool
}

func (f *CLIFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	// Simple clean format: just the message for user-facing logs
	if f.DisableLevel && f.DisableTimestamp {
		b.WriteString(entry.Message)
		b.WriteByte('\n')
		return b.Bytes(), nil
	}

	if !f.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}

	if !f.DisableLevel {
		levelColor := ""
		resetColor := ""
		if !f.DisableColors {
			switch entry.Level {
			case logrus.ErrorLevel:
				levelColor = "\033[31m" // Red
			case logrus.WarnLevel:
				levelColor = "\033[33m" // Yellow
			case logrus.InfoLevel:
				levelColor = "\033[36m" // Cyan
			case logrus.DebugLevel:
				levelColor = "\033[37m" // White
			}
			resetColor = "\033[0m"
		}

		b.WriteString(levelColor)
		b.WriteString(strings.ToUpper(entry.Level.String()))
		b.WriteString(resetColor)
		b.WriteString(": ")
	}

	b.WriteString(entry.Message)

	// Internal routing fields are not printed
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "log_type" || k == "emoji" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func Setup(verbose bool, jsonLogs bool, quiet bool) {
	// Check environment variables (these override CLI flags)
	if envLogMode := os.Getenv("LOG_MODE"); envLogMode != "" {
		switch envLogMode {
		case "quiet":
			quiet = true
			verbose = false
		case "verbose", "debug":
			verbose = true
			quiet = false
		}
	}

	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		switch envLogFormat {
		case "json":
			jsonLogs = true
		case "text":
			jsonLogs = false
		}
	}

	ul := GetLogger()
	internalLogger := ul.GetInternalLogger()

	var level logrus.Level
	if quiet {
		level = logrus.ErrorLevel
	} else if verbose {
		level = logrus.DebugLevel
	} else {
		level = logrus.InfoLevel
	}

	hook := NewOutputRouterHook()
	if jsonLogs {
		hook.UserFormatter = &logrus.JSONFormatter{}
		hook.OpFormatter = &logrus.JSONFormatter{}
	} else if verbose {
		hook.OpFormatter = &logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   isatty.IsTerminal(os.Stderr.Fd()),
		}
	} else {
		hook.OpFormatter = &CLIFormatter{
			DisableTimestamp: true,
			DisableLevel:     false,
			DisableColors:    !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}

	// Output handled by hooks
	ul.Configure(io.Discard, level, &logrus.TextFormatter{})
	ul.ReplaceHooks(hook)

	User = &UserLogger{logger: internalLogger}
	Op = &OpLogger{logger: internalLogger}
}

// SetupWriters routes user and op logs to the given writers. Used by tests
// and by callers that embed the registry in another program.
func SetupWriters(userOut, opOut io.Writer, level logrus.Level) {
	ul := GetLogger()

	hook := NewOutputRouterHook()
	hook.UserWriter = userOut
	hook.OpWriter = opOut
	hook.OpFormatter = &CLIFormatter{DisableTimestamp: true, DisableColors: true}

	ul.Configure(io.Discard, level, &logrus.TextFormatter{})
	ul.ReplaceHooks(hook)

	User = &UserLogger{logger: ul.GetInternalLogger()}
	Op = &OpLogger{logger: ul.GetInternalLogger()}
}
