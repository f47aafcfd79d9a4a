// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/wgsl"

	"github.com/gogpu/shaderlive"
)

// Stage is a shader pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

// EntryPoint is a declared @vertex, @fragment or @compute function.
type EntryPoint struct {
	Name  string
	Stage Stage
}

// Binding is a resource declared with @group/@binding.
type Binding struct {
	Name    string
	Group   uint32
	Binding uint32
	Uniform bool
}

// Interface is what the front end learned about a module's resource and
// stage interface. It is shared between results and must not be modified.
type Interface struct {
	EntryPoints []EntryPoint
	Bindings    []Binding
}

// HasEntryPoint reports whether a function name is declared for stage.
func (i Interface) HasEntryPoint(name string, stage Stage) bool {
	for _, ep := range i.EntryPoints {
		if ep.Name == name && ep.Stage == stage {
			return true
		}
	}
	return false
}

// UsesUniform reports whether a uniform is declared at group/binding.
func (i Interface) UsesUniform(group, binding uint32) bool {
	for _, b := range i.Bindings {
		if b.Uniform && b.Group == group && b.Binding == binding {
			return true
		}
	}
	return false
}

// verdict is the cached outcome of front-end analysis for one source text.
type verdict struct {
	iface    Interface
	messages []Message

	// failed is set when the source was rejected; the first error message
	// and its position are kept for the diagnostic.
	failed   bool
	message  string
	position shaderlive.Position
}

var (
	parseErrorPos  = regexp.MustCompile(`line (\d+), column (\d+): (.*)$`)
	sourceErrorPos = regexp.MustCompile(`^(\d+):(\d+): (.*)$`)
	moreErrors     = regexp.MustCompile(` \(and \d+ more errors\)$`)
)

// splitPosition extracts a line/column prefix from a front-end error.
func splitPosition(msg string) (string, shaderlive.Position) {
	msg = moreErrors.ReplaceAllString(msg, "")
	for _, re := range []*regexp.Regexp{parseErrorPos, sourceErrorPos} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			return m[3], shaderlive.Position{Line: line, Column: col}
		}
	}
	return msg, shaderlive.Position{}
}

func rejected(err error, warnings []Message) *verdict {
	msg, pos := splitPosition(err.Error())
	return &verdict{
		failed:   true,
		message:  msg,
		position: pos,
		messages: append([]Message{{Severity: SeverityError, Position: pos, Text: msg}}, warnings...),
	}
}

// analyze runs the naga front end (parse, lower, validate) over code.
func analyze(code string) *verdict {
	ast, err := naga.Parse(code)
	if err != nil {
		return rejected(err, nil)
	}

	lowered, err := wgsl.LowerWithWarnings(ast, code)
	if err != nil {
		return rejected(err, nil)
	}
	warnings := make([]Message, 0, len(lowered.Warnings))
	for _, w := range lowered.Warnings {
		warnings = append(warnings, Message{
			Severity: SeverityWarning,
			Position: shaderlive.Position{Line: w.Span.Start.Line, Column: w.Span.Start.Column},
			Text:     w.Message,
		})
	}

	verrs, err := naga.Validate(lowered.Module)
	if err != nil {
		return rejected(err, warnings)
	}
	if len(verrs) > 0 {
		v := rejected(verrs[0], nil)
		for _, ve := range verrs[1:] {
			v.messages = append(v.messages, Message{Severity: SeverityError, Text: ve.Error()})
		}
		v.messages = append(v.messages, warnings...)
		return v
	}

	return &verdict{
		iface:    describe(lowered.Module),
		messages: warnings,
	}
}

func describe(m *ir.Module) Interface {
	var iface Interface
	for _, ep := range m.EntryPoints {
		var st Stage
		switch ep.Stage {
		case ir.StageVertex:
			st = StageVertex
		case ir.StageFragment:
			st = StageFragment
		case ir.StageCompute:
			st = StageCompute
		default:
			continue
		}
		iface.EntryPoints = append(iface.EntryPoints, EntryPoint{Name: ep.Name, Stage: st})
	}
	for _, g := range m.GlobalVariables {
		if g.Binding == nil {
			continue
		}
		iface.Bindings = append(iface.Bindings, Binding{
			Name:    g.Name,
			Group:   g.Binding.Group,
			Binding: g.Binding.Binding,
			Uniform: g.Space == ir.SpaceUniform,
		})
	}
	return iface
}
