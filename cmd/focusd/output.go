package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// printMark writes a one-line message to stderr with a colored prefix mark.
func printMark(color, mark, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(color, mark), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...any) { printMark(colorGreen, "[ok]", format, args...) }

func printError(format string, args ...any) { printMark(colorRed, "[error]", format, args...) }

func printWarning(format string, args ...any) { printMark(colorYellow, "[warn]", format, args...) }

// printStatus writes an aligned "label: value" line for the status command.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, fmt.Sprintf("%-11s", label+":")), val)
}
