package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the wayz banner followed by the version.
func PrintBanner(w io.Writer, p termenv.Profile, version string) {
	lines := []struct {
		text, color string
	}{
		{" __      __  ____  __  __  ____", "#818cf8"},
		{" \\ \\ /\\ / / / _  |\\ \\/ / |_  /", "#a78bfa"},
		{"  \\ V  V / | (_| | \\  /   / / ", "#c084fc"},
		{"   \\_/\\_/   \\__,_| /_/   /___|", "#e879f9"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  workflow supervisor "+version).Faint())
	fmt.Fprintln(w)
}
