package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks frames whose type this client does not know.
// They are skipped, not treated as malformed.
var ErrUnknownType = errors.New("unknown frame type")

// Event is a decoded server event. Only the types in this file
// implement it.
type Event interface {
	// Type is the wire discriminator.
	Type() string
	// Session is the server-assigned session id, possibly empty.
	Session() string
	// Correlation is the originating command's id. Empty for tool logs.
	Correlation() string
	event()
}

// Header carries the fields shared by every server event.
type Header struct {
	SessionID string `json:"sessionId"`
}

func (h Header) Session() string { return h.SessionID }

// AssistantDelta is one streamed fragment of assistant text.
type AssistantDelta struct {
	Header
	ClientMessageID string `json:"clientMessageId"`
	Text            string `json:"text"`
}

// AssistantDone carries the authoritative full text of an assistant reply.
type AssistantDone struct {
	Header
	ClientMessageID string `json:"clientMessageId"`
	Text            string `json:"text"`
}

// TerminalOutput is one chunk of command output.
type TerminalOutput struct {
	Header
	ClientMessageID string `json:"clientMessageId"`
	Output          string `json:"output"`
	IsError         bool   `json:"isError"`
}

// ToolLog is a system-level log line from the backend's tools.
type ToolLog struct {
	Header
	Message string `json:"message"`
}

// DownloadReady announces a file that can be fetched.
type DownloadReady struct {
	Header
	ClientMessageID string `json:"clientMessageId"`
	URL             string `json:"url"`
	FileName        string `json:"fileName"`
	FileSize        int64  `json:"fileSize"`
}

func (AssistantDelta) Type() string { return TypeAssistantDelta }
func (AssistantDone) Type() string  { return TypeAssistantDone }
func (TerminalOutput) Type() string { return TypeTerminalOutput }
func (ToolLog) Type() string        { return TypeToolLog }
func (DownloadReady) Type() string  { return TypeDownloadReady }

func (e AssistantDelta) Correlation() string { return e.ClientMessageID }
func (e AssistantDone) Correlation() string  { return e.ClientMessageID }
func (e TerminalOutput) Correlation() string { return e.ClientMessageID }
func (ToolLog) Correlation() string          { return "" }
func (e DownloadReady) Correlation() string  { return e.ClientMessageID }

func (AssistantDelta) event() {}
func (AssistantDone) event()  {}
func (TerminalOutput) event() {}
func (ToolLog) event()        {}
func (DownloadReady) event()  {}

// DecodeEvent parses one inbound frame. Unknown types return an error
// wrapping ErrUnknownType; any other error means the frame is malformed.
func DecodeEvent(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeAssistantDelta:
		return decodeEvent[AssistantDelta](env, true)
	case TypeAssistantDone:
		return decodeEvent[AssistantDone](env, true)
	case TypeTerminalOutput:
		return decodeEvent[TerminalOutput](env, false)
	case TypeToolLog:
		return decodeEvent[ToolLog](env, false)
	case TypeDownloadReady:
		return decodeEvent[DownloadReady](env, false)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
}

// decodeEvent does the single typed decode for a known discriminator.
// Assistant text is keyed by correlation id, so those events must carry one.
func decodeEvent[T Event](env Envelope, needsCorrelation bool) (Event, error) {
	var ev T
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%s: data is not an object", env.Type)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%s: %w", env.Type, err)
	}
	if needsCorrelation && ev.Correlation() == "" {
		return nil, fmt.Errorf("%s: missing clientMessageId", env.Type)
	}
	return ev, nil
}

// EncodeEvent wraps ev in a typed envelope. The client never sends
// server events; test backends use this to script them.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.Type(), Data: data})
}
