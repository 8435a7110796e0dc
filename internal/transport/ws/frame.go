package ws

import (
	"github.com/bytedance/sonic"

	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/platform/errors"
)

// Inbound frame types reported by the page agent.
const (
	FrameHello       = "hello"
	FrameMutation    = "mutation"
	FrameForm        = "form"
	FrameProbe       = "probe"
	FrameKey         = "key"
	FrameContextMenu = "contextmenu"
	FrameError       = "error"
	FrameRejection   = "rejection"
)

// Outbound directive types sent back to the page agent.
const (
	DirectiveSession    = "session"
	DirectiveFormResult = "form_result"
	DirectiveReload     = "reload"
	DirectiveSuppress   = "suppress"
)

// Frame is one telemetry message from the page. Type selects which payload
// field is populated.
type Frame struct {
	Type     string         `json:"type"`
	Hello    *HelloFrame    `json:"hello,omitempty"`
	Mutation *MutationFrame `json:"mutation,omitempty"`
	Form     *FormFrame     `json:"form,omitempty"`
	Probe    *ProbeFrame    `json:"probe,omitempty"`
	Key      *KeyFrame      `json:"key,omitempty"`
	Error    *ErrorFrame    `json:"error,omitempty"`
}

// HelloFrame opens a telemetry session: page identity plus the DOM baseline.
// SessionID is the identifier issued on a previous load of the same browsing
// session, echoed back so session-scoped detector state carries over.
type HelloFrame struct {
	SessionID  string            `json:"sessionId,omitempty"`
	Page       string            `json:"page"`
	URL        string            `json:"url"`
	Referrer   string            `json:"referrer,omitempty"`
	Title      string            `json:"title"`
	BodyLength int               `json:"bodyLength"`
	Client     events.ClientInfo `json:"client"`
}

// MutationFrame is one observed DOM change-set.
type MutationFrame struct {
	Title            string   `json:"title"`
	BodyLength       int      `json:"bodyLength"`
	BodyText         string   `json:"bodyText"`
	AddedNodes       []string `json:"addedNodes"`
	AttributeTargets []string `json:"attributeTargets"`
}

// FormFrame is a form submission to screen.
type FormFrame struct {
	FormID string            `json:"formId"`
	Token  string            `json:"token"`
	Fields map[string]string `json:"fields"`
}

// ProbeFrame reports one timing-probe measurement.
type ProbeFrame struct {
	DelayMs int64 `json:"delayMs"`
}

// KeyFrame reports a key chord the page wants vetted.
type KeyFrame struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
}

// ErrorFrame carries a script error or an unhandled promise rejection.
type ErrorFrame struct {
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Directive is one instruction sent back to the page agent.
type Directive struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	CSRFToken string            `json:"csrfToken,omitempty"`
	Key       string            `json:"key,omitempty"`
	OK        *bool             `json:"ok,omitempty"`
	Error     string            `json:"error,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// DecodeFrame parses one inbound frame.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := sonic.Unmarshal(data, &frame); err != nil {
		return Frame{}, errors.Wrap(errors.KindValidation, "ws.decode", "malformed telemetry frame", err)
	}
	if frame.Type == "" {
		return Frame{}, errors.New(errors.KindValidation, "ws.decode", "telemetry frame missing type")
	}
	return frame, nil
}

// Encode serializes a directive for transmission.
func (d Directive) Encode() ([]byte, error) {
	return sonic.Marshal(d)
}

func boolPtr(v bool) *bool {
	return &v
}
