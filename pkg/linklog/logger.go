package linklog

import (
	"fmt"
	"log"
	"os"
	"time"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

// Logger is a small colored logger for link-layer events, adapted from
// the game-server logger this module was built from but renamed for the
// frame/window/connection vocabulary of the protocol engine.
type Logger struct {
	level      int
	timeFormat string
	showTime   bool
}

var defaultLogger *Logger

func init() {
	defaultLogger = &Logger{
		level:      LevelInfo,
		timeFormat: "15:04:05.000",
		showTime:   true,
	}
}

// SetLevel sets the minimum log level.
func SetLevel(level int) {
	defaultLogger.level = level
}

// ShowTime enables or disables timestamps in logs.
func ShowTime(show bool) {
	defaultLogger.showTime = show
}

func (l *Logger) formatMessage(color, prefix, message string) string {
	timestamp := ""
	if l.showTime {
		timestamp = fmt.Sprintf("%s[%s]%s ", ColorGray, time.Now().Format(l.timeFormat), ColorReset)
	}
	return fmt.Sprintf("%s%s[%s]%s %s", timestamp, color, prefix, ColorReset, message)
}

// Debug logs a debug message (gray) — per-frame detail (stuffing,
// sequence numbers).
func Debug(format string, args ...interface{}) {
	if defaultLogger.level <= LevelDebug {
		log.Println(defaultLogger.formatMessage(ColorGray, "DEBUG", fmt.Sprintf(format, args...)))
	}
}

// Info logs an informational message (white).
func Info(format string, args ...interface{}) {
	if defaultLogger.level <= LevelInfo {
		log.Println(defaultLogger.formatMessage(ColorWhite, "INFO", fmt.Sprintf(format, args...)))
	}
}

// Warn logs a warning (yellow) — buffered out-of-order frames, NAKs,
// window pressure.
func Warn(format string, args ...interface{}) {
	if defaultLogger.level <= LevelWarn {
		log.Println(defaultLogger.formatMessage(ColorYellow, "WARN", fmt.Sprintf(format, args...)))
	}
}

// Error logs an error (red) — CRC mismatches, stuffing violations, frame
// failures.
func Error(format string, args ...interface{}) {
	if defaultLogger.level <= LevelError {
		log.Println(defaultLogger.formatMessage(ColorRed, "ERROR", fmt.Sprintf(format, args...)))
	}
}

// Success logs a success message (green) — handshake completion, clean
// shutdown.
func Success(format string, args ...interface{}) {
	if defaultLogger.level <= LevelSuccess {
		log.Println(defaultLogger.formatMessage(ColorGreen, "SUCCESS", fmt.Sprintf(format, args...)))
	}
}

// Fatal logs a fatal error and exits.
func Fatal(format string, args ...interface{}) {
	log.Println(defaultLogger.formatMessage(ColorRed, "FATAL", fmt.Sprintf(format, args...)))
	os.Exit(1)
}

// Section prints a section header, used at CLI demo startup.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ██╗     ██╗     ██╗███╗   ██╗██╗  ██╗            ║
║   ██╔══██╗██║     ██║     ██║████╗  ██║██║ ██╔╝            ║
║   ██║  ██║██║     ██║     ██║██╔██╗ ██║█████╔╝             ║
║   ██║  ██║██║     ██║     ██║██║╚██╗██║██╔═██╗             ║
║   ██████╔╝███████╗███████╗██║██║ ╚████║██║  ██╗            ║
║   ╚═════╝ ╚══════╝╚══════╝╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝            ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}

// FrameDropped logs a dropped/corrupted inbound frame at Warn level with
// a consistent shape for log aggregation.
func FrameDropped(reason string, seq uint8) {
	Warn("frame dropped seq=%d reason=%s", seq, reason)
}

// AckTimeout logs a retransmission triggered by ack-timer expiry.
func AckTimeout(seq uint8, retry int) {
	Warn("ack timeout seq=%d retry=%d", seq, retry)
}
