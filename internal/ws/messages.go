package ws

import (
	"encoding/json"
	"time"

	"townsquare/internal/services/history"
)

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "square/message"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// MessageRequest is the body for "square/message".
type MessageRequest struct {
	Text string `json:"text"`
}

// TypingRequest is the body for "square/typing".
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// NickRequest is the body for "square/nick".
type NickRequest struct {
	Nick string `json:"nick"`
}

// Empty ACK body (useful for many handlers).
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}

// ──────────────────────────── Outbound frames ────────────────────────────────

const (
	frameMessage = "message"
	frameJoin    = "join"
	frameLeave   = "leave"
	frameTyping  = "typing"
	frameHistory = "history"
)

// Frame is one outbound event as delivered to every room member.
type Frame struct {
	Type   string `json:"type"`
	ConnID string `json:"connection_id"`
	Nick   string `json:"nick"`
	Text   string `json:"text,omitempty"`
	Typing *bool  `json:"typing,omitempty"`
	Ts     int64  `json:"ts"`
}

func messageFrame(ev history.Event) []byte {
	return encodeFrame(Frame{
		Type:   frameMessage,
		ConnID: ev.ConnID,
		Nick:   ev.Nick,
		Text:   ev.Text,
		Ts:     ev.Ts.Unix(),
	})
}

func historyFrame(ev history.Event) []byte {
	return encodeFrame(Frame{
		Type:   frameHistory,
		ConnID: ev.ConnID,
		Nick:   ev.Nick,
		Text:   ev.Text,
		Ts:     ev.Ts.Unix(),
	})
}

func presenceFrame(typ, connID, nick string, ts time.Time) []byte {
	return encodeFrame(Frame{
		Type:   typ,
		ConnID: connID,
		Nick:   nick,
		Ts:     ts.Unix(),
	})
}

func typingFrame(connID, nick string, typing bool, ts time.Time) []byte {
	return encodeFrame(Frame{
		Type:   frameTyping,
		ConnID: connID,
		Nick:   nick,
		Typing: &typing,
		Ts:     ts.Unix(),
	})
}

func encodeFrame(f Frame) []byte {
	b, _ := json.Marshal(f) // fixed field set, cannot fail
	return b
}

// encodeReply builds the {"event":..., "body":...} reply sent back to the
// submitting connection only.
func encodeReply(env Envelope, body any) []byte {
	reply := map[string]any{"event": env.Event}
	if body != nil {
		reply["body"] = body
	}
	b, _ := json.Marshal(reply)
	return b
}
