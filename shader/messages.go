// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/gogpu/shaderlive"
)

// Severity classifies a Message.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

// Message is one front-end compilation message.
type Message struct {
	Severity Severity
	Position shaderlive.Position
	Text     string
}

func (m Message) String() string {
	if !m.Position.Known() {
		return fmt.Sprintf("[%s] %s", m.Severity, m.Text)
	}
	return fmt.Sprintf("[%s] Line %d:%d - %s", m.Severity, m.Position.Line, m.Position.Column, m.Text)
}

// FormatMessages renders one message per line, or "No compilation
// messages" when msgs is empty.
func FormatMessages(msgs []Message) string {
	if len(msgs) == 0 {
		return "No compilation messages"
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.String()
	}
	return strings.Join(lines, "\n")
}

var (
	headerStyle = ansi.Style{}.Bold().ForegroundColor(ansi.BrightRed)
	gutterStyle = ansi.Style{}.Faint()
	caretStyle  = ansi.Style{}.Bold().ForegroundColor(ansi.Red)
)

// FormatDiagnostic renders d with the offending source line and a caret
// under the reported column:
//
//	Shader compilation error at line 3:9: expected ';'
//	   3 | let x = 1
//	     |         ^
//
// The source excerpt is omitted when the position is unknown or outside
// code. With color set, the output carries ANSI styling.
func FormatDiagnostic(d *shaderlive.Diagnostic, code string, color bool) string {
	if d == nil {
		return ""
	}
	style := func(s ansi.Style, text string) string {
		if !color {
			return text
		}
		return s.Styled(text)
	}

	var b strings.Builder
	b.WriteString(style(headerStyle, d.Error()))

	if !d.Position.Known() {
		return b.String()
	}
	lines := strings.Split(code, "\n")
	if d.Position.Line > len(lines) {
		return b.String()
	}
	line := strings.TrimRight(lines[d.Position.Line-1], "\r")

	num := fmt.Sprintf("%4d", d.Position.Line)
	b.WriteByte('\n')
	b.WriteString(style(gutterStyle, num+" | "))
	b.WriteString(strings.ReplaceAll(line, "\t", " "))

	if d.Position.Column > 0 {
		runes := []rune(line)
		col := min(d.Position.Column-1, len(runes))
		// Columns count characters; pad by display width.
		pad := ansi.StringWidth(strings.ReplaceAll(string(runes[:col]), "\t", " "))
		b.WriteByte('\n')
		b.WriteString(style(gutterStyle, strings.Repeat(" ", len(num))+" | "))
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(style(caretStyle, "^"))
	}
	return b.String()
}
