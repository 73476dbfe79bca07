package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types. The client sends exactly one type; everything else is
// server → client.
const (
	TypeClientCommand = "client_command"

	TypeAssistantDelta = "assistant_delta"
	TypeAssistantDone  = "assistant_message_done"
	TypeTerminalOutput = "terminal_output"
	TypeToolLog        = "tool_log"
	TypeDownloadReady  = "download_ready"
)

// Envelope wraps every WebSocket frame with a type field for routing.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Command is one user-issued command: its correlation id and payload.
// SessionID is the id known when the command was built; the session
// manager stamps its own cached id at send time.
type Command struct {
	ID        string
	SessionID string
	Payload   Payload
}

// ClientCommand is the data object of a client_command frame.
type ClientCommand struct {
	ClientMessageID string  `json:"clientMessageId"`
	SessionID       *string `json:"sessionId"` // null before the server assigns one
	Payload         Payload `json:"payload"`
}

var errNoPayload = errors.New("command has no payload")

// EncodeCommand serializes cmd as a client_command frame. An empty
// sessionID is encoded as null.
func EncodeCommand(cmd Command, sessionID string) ([]byte, error) {
	if cmd.Payload == nil {
		return nil, errNoPayload
	}
	if cmd.ID == "" {
		return nil, fmt.Errorf("command has no client message id")
	}
	data := ClientCommand{ClientMessageID: cmd.ID, Payload: cmd.Payload}
	if sessionID != "" {
		data.SessionID = &sessionID
	}
	return json.Marshal(struct {
		Type string        `json:"type"`
		Data ClientCommand `json:"data"`
	}{TypeClientCommand, data})
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Command{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != TypeClientCommand {
		return Command{}, fmt.Errorf("unexpected frame type %q", env.Type)
	}
	var data struct {
		ClientMessageID string          `json:"clientMessageId"`
		SessionID       *string         `json:"sessionId"`
		Payload         json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Command{}, fmt.Errorf("decode client_command: %w", err)
	}
	p, err := DecodePayload(data.Payload)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{ID: data.ClientMessageID, Payload: p}
	if data.SessionID != nil {
		cmd.SessionID = *data.SessionID
	}
	return cmd, nil
}
