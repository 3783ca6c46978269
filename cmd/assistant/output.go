package main

import (
	"fmt"
	"os"
)

// ANSI escape sequences for terminal feedback. Colors are suppressed by the
// --no-color flag or the NO_COLOR convention.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return text
	}
	return color + text + colorReset
}

// notef writes one marked feedback line to stderr, keeping stdout free for
// command output that may be piped.
func notef(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notef(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notef(colorYellow, "⚠", format, args...) }

// printStatus renders one aligned "label: value" line of a status report.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
