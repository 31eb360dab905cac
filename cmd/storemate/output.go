package main

import (
	"fmt"
	"io"
	"os"
)

// statusOut receives status lines. Answers and listings go to stdout so
// they can be piped; everything decorative goes here.
var statusOut io.Writer = os.Stderr

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

type tone struct {
	color string
	mark  string
}

var (
	toneSuccess = tone{colorGreen, "✓"}
	toneError   = tone{colorRed, "✗"}
	toneWarning = tone{colorYellow, "⚠"}
	toneStep    = tone{colorCyan, "→"}
)

func colorize(color, text string) string {
	if noColor || color == "" {
		return text
	}
	return color + text + colorReset
}

func announce(t tone, format string, args ...any) {
	fmt.Fprintln(statusOut, colorize(t.color, t.mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { announce(toneSuccess, format, args...) }
func printError(format string, args ...any)   { announce(toneError, format, args...) }
func printWarning(format string, args ...any) { announce(toneWarning, format, args...) }
func printStep(format string, args ...any)    { announce(toneStep, format, args...) }

// printStatus prints an indented "label: value" line.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(statusOut, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
