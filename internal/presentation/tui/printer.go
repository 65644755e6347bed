// Package tui renders CLI output: banner, status lines and markdown.
package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Printer writes status lines, coloured when the output supports it.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
	render  func(string) (string, error)
}

// NewPrinter creates a Printer for w. With color false all output is plain text.
func NewPrinter(w io.Writer, color bool) *Printer {
	profile := termenv.Ascii
	if color {
		profile = termenv.NewOutput(w).EnvColorProfile()
	}
	return &Printer{out: w, profile: profile, render: NewRenderer(color)}
}

// Writer returns the underlying output.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Banner prints the wayz banner.
func (p *Printer) Banner(version string) {
	PrintBanner(p.out, p.profile, version)
}

// Success prints a green ✔ line.
func (p *Printer) Success(format string, args ...any) {
	p.line("✔", "#22c55e", format, args...)
}

// Failure prints a red ✘ line.
func (p *Printer) Failure(format string, args ...any) {
	p.line("✘", "#ef4444", format, args...)
}

// Info prints a >>> line.
func (p *Printer) Info(format string, args ...any) {
	p.line(">>>", "#818cf8", format, args...)
}

// Plain prints an unstyled line.
func (p *Printer) Plain(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Markdown renders md and writes it.
func (p *Printer) Markdown(md string) error {
	out, err := p.render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(p.out, out)
	return err
}

func (p *Printer) line(mark, color, format string, args ...any) {
	prefix := p.profile.String(mark).Foreground(p.profile.Color(color)).Bold()
	fmt.Fprintf(p.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}
