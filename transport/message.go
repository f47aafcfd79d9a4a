// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package transport carries shader sources into a preview session and
// status notifications out of it.
//
// Editors talk to the session over a websocket with small JSON messages:
//
//	{"command":"updateShader","code":"@vertex fn vs_main() ..."}
//
// The session answers with notifications:
//
//	{"command":"ready","revision":4}
//	{"command":"diagnostic","revision":5,"kind":"Compilation","message":"...","line":3,"column":9}
//
// A plain HTTP POST of the WGSL text to /shader and a file [Watcher] are
// two further sources producing the same messages.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/gogpu/shaderlive"
)

// Commands.
const (
	// CommandUpdateShader carries new shader source text.
	CommandUpdateShader = "updateShader"
	// CommandReady reports a newly active pipeline.
	CommandReady = "ready"
	// CommandDiagnostic reports a rejected revision.
	CommandDiagnostic = "diagnostic"
)

// ErrNoCommand is returned when a decoded message has no command.
var ErrNoCommand = errors.New("transport: message without command")

// Message is an inbound editor message.
type Message struct {
	Command string `json:"command"`
	Code    string `json:"code,omitempty"`
}

// UpdateShader returns the message carrying code.
func UpdateShader(code string) Message {
	return Message{Command: CommandUpdateShader, Code: code}
}

// Notification is an outbound session status message.
type Notification struct {
	Command  string `json:"command"`
	Revision uint64 `json:"revision"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// Ready returns the notification for an active revision.
func Ready(rev shaderlive.Revision) Notification {
	return Notification{Command: CommandReady, Revision: uint64(rev)}
}

// DiagnosticNotification converts d into a notification.
func DiagnosticNotification(d *shaderlive.Diagnostic) Notification {
	return Notification{
		Command:  CommandDiagnostic,
		Revision: uint64(d.Revision),
		Kind:     d.Kind.String(),
		Message:  d.Message,
		Line:     d.Position.Line,
		Column:   d.Position.Column,
	}
}

// Handler consumes inbound messages.
type Handler interface {
	HandleMessage(msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg Message)

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg Message) { f(msg) }

// Notifier receives outbound notifications.
type Notifier interface {
	Notify(n Notification)
}

// Decode reads one JSON message from r.
func Decode(r io.Reader) (Message, error) {
	var m Message
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Message{}, fmt.Errorf("transport: decode message: %w", err)
	}
	if m.Command == "" {
		return Message{}, ErrNoCommand
	}
	return m, nil
}

// Encode writes v to w as one line of JSON.
func Encode(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	return nil
}

// DecodeSource converts raw shader file bytes to text. A UTF-8 or UTF-16
// byte order mark selects the encoding and is removed; without one the
// bytes are taken as UTF-8 and invalid sequences become U+FFFD.
func DecodeSource(raw []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("transport: decode source: %w", err)
	}
	return string(out), nil
}
