// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the branchscope CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Printer writes styled output, or plain text when its writer is not a
// terminal.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Printer struct {
	out   io.Writer
	plain bool
}

// NewPrinter creates a Printer for w. Styling is enabled only when w is an
// *os.File attached to a terminal.
func NewPrinter(w io.Writer) *Printer {
	plain := true
	if f, ok := w.(*os.File); ok {
		plain = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{out: w, plain: plain}
}

// NewPlainPrinter creates a Printer that never styles output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{out: w, plain: true}
}

// Plain reports whether styling is disabled.
func (p *Printer) Plain() bool {
	return p.plain
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return style.Render(text)
}

func (p *Printer) icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.render(Styles.Success, string(i))
	case IconWarning:
		return p.render(Styles.Warning, string(i))
	case IconError:
		return p.render(Styles.Error, string(i))
	default:
		return string(i)
	}
}

// Title prints a heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.out, p.render(Styles.Title, text))
}

// Success prints text with a checkmark.
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.icon(IconSuccess), p.render(Styles.Success, text))
}

// Warning prints text with a warning sign.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.icon(IconWarning), p.render(Styles.Warning, text))
}

// Error prints text with a cross.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.icon(IconError), p.render(Styles.Error, text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(Styles.Muted, "│"), text)
}

// Muted prints secondary text.
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.out, p.render(Styles.Muted, text))
}

// KeyValue prints "label: value" with the label padded to width.
func (p *Printer) KeyValue(label string, value any, width int) {
	padded := fmt.Sprintf("%-*s", width, label+":")
	fmt.Fprintf(p.out, "  %s %s\n", p.render(Styles.Muted, padded), p.render(Styles.Bold, fmt.Sprint(value)))
}

// Bullet prints an indented list item.
func (p *Printer) Bullet(text string) {
	fmt.Fprintf(p.out, "  %s %s\n", p.render(Styles.Subtitle, string(IconBullet)), text)
}

// Box prints content under title inside a rounded border.
func (p *Printer) Box(title, content string) {
	if p.plain {
		fmt.Fprintf(p.out, "%s\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// ProgressBar renders a progress bar of width cells for current of total.
func (p *Printer) ProgressBar(current, total, width int) string {
	if total <= 0 {
		total = 1
	}
	pct := float64(current) / float64(total)
	pct = min(max(pct, 0), 1)
	filled := int(pct * float64(width))
	bar := p.render(Styles.Success, strings.Repeat("█", filled)) +
		p.render(Styles.Muted, strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
