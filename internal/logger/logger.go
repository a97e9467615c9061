package logger

import (
	"fmt"
	"strings"
	"time"
)

type LogLevel int

const (
	LogOff  LogLevel = 0 // request lines and warnings only
	LogLow  LogLevel = 1 // + debug output
	LogHigh LogLevel = 2 // + upstream call detail
)

const (
	ColorReset  = "\x1b[0m"
	ColorGreen  = "\x1b[32m"
	ColorYellow = "\x1b[33m"
	ColorRed    = "\x1b[31m"
	ColorCyan   = "\x1b[36m"
	ColorGray   = "\x1b[90m"
	ColorBlue   = "\x1b[34m"
)

var currentLogLevel LogLevel

func Init(debug string) {
	currentLogLevel = parseLogLevel(debug)
}

func parseLogLevel(debug string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(debug)) {
	case "low":
		return LogLow
	case "high":
		return LogHigh
	default:
		return LogOff
	}
}

func GetLevel() LogLevel {
	return currentLogLevel
}

func Info(format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s %s[info]%s %s\n", ColorGray, timestamp, ColorReset, ColorGreen, ColorReset, msg)
}

func Warn(format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s %s[warn]%s %s\n", ColorGray, timestamp, ColorReset, ColorYellow, ColorReset, msg)
}

func Error(format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s %s[error]%s %s\n", ColorGray, timestamp, ColorReset, ColorRed, ColorReset, msg)
}

func Debug(format string, args ...any) {
	if currentLogLevel < LogLow {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s %s[debug]%s %s\n", ColorGray, timestamp, ColorReset, ColorBlue, ColorReset, msg)
}

// Upstream logs outbound collaborator calls (identity provider, LLM APIs,
// video catalog) at the high debug level.
func Upstream(target string, status int, duration time.Duration) {
	if currentLogLevel < LogHigh {
		return
	}
	statusColor := ColorGreen
	if status >= 400 {
		statusColor = ColorRed
	}
	fmt.Printf("%s[upstream]%s %s %s%d%s %s%dms%s\n",
		ColorYellow, ColorReset,
		target,
		statusColor, status, ColorReset,
		ColorGray, duration.Milliseconds(), ColorReset)
}

func Request(method, path string, status int, duration time.Duration) {
	statusColor := ColorGreen
	if status >= 500 {
		statusColor = ColorRed
	} else if status >= 400 {
		statusColor = ColorYellow
	}

	fmt.Printf("%s[%s]%s %s %s%d%s %s%dms%s\n",
		ColorCyan, method, ColorReset,
		path,
		statusColor, status, ColorReset,
		ColorGray, duration.Milliseconds(), ColorReset)
}

func Banner(port int, timezone string) {
	fmt.Printf(`
%s╔════════════════════════════════════════════════════════════╗
║                    %sfriction-ai router%s                      ║
╚════════════════════════════════════════════════════════════╝%s
`, ColorCyan, ColorGreen, ColorCyan, ColorReset)

	Info("Server starting on port %d", port)
	Info("Daily quota resets at midnight %s", timezone)

	fmt.Println()
}
