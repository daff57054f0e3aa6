package logger

import (
	"fmt"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func stamp() string {
	return time.Now().Format("15:04:05")
}

func line(color, symbol, tag, msg string) {
	fmt.Printf("%s%s%s %s%s%s %s[%s]%s %s\n",
		colorGray, stamp(), colorReset,
		color, symbol, colorReset,
		colorBold, tag, colorReset,
		msg)
}

// Info logs an informational message under the given tag.
func Info(tag, msg string) {
	line(colorCyan, "•", tag, msg)
}

// Success logs a success message under the given tag.
func Success(tag, msg string) {
	line(colorGreen, "✓", tag, msg)
}

// Warn logs a warning under the given tag.
func Warn(tag, msg string) {
	line(colorYellow, "!", tag, msg)
}

// Error logs an error under the given tag.
func Error(tag, msg string) {
	line(colorRed, "✗", tag, msg)
}

// Banner prints the startup banner with the build version.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	fmt.Printf("%s%s\n", colorBold, colorCyan)
	fmt.Println("  ╔══════════════════════════════════╗")
	fmt.Println("  ║       EVE  MARKET  WATCH         ║")
	fmt.Println("  ╚══════════════════════════════════╝")
	fmt.Printf("%s           version %s\n\n", colorReset, version)
}

// Section prints a section divider.
func Section(name string) {
	fmt.Printf("\n%s── %s %s\n", colorGray, name, colorReset)
}

// Stats prints a key/value statistic.
func Stats(key string, value interface{}) {
	fmt.Printf("   %s%-24s%s %v\n", colorGray, key, colorReset, value)
}
