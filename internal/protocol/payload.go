package protocol

import (
	"encoding/json"
	"fmt"
)

// PayloadKind discriminates command payload variants on the wire.
type PayloadKind string

const (
	KindTerminal     PayloadKind = "terminal"
	KindDownload     PayloadKind = "download"
	KindUploadNotify PayloadKind = "upload_notify"
	KindAIQuestion   PayloadKind = "ai_question"
	KindAIAgentGoal  PayloadKind = "ai_agent_goal"
)

// Payload is a command payload. The set of variants is closed: only the
// types in this file implement it.
type Payload interface {
	Kind() PayloadKind
	payload()
}

// Terminal runs Text as a shell command on the backend.
type Terminal struct {
	Text string `json:"text"`
}

// Download asks the backend to prepare Path for download.
type Download struct {
	Path string `json:"path"`
}

// UploadNotify tells the backend a file was uploaded for DestPath.
type UploadNotify struct {
	DestPath string `json:"destPath"`
	FileName string `json:"fileName"`
}

type QuestionOptions struct {
	Language string `json:"language"`
}

// AIQuestion is a one-shot question to the assistant.
type AIQuestion struct {
	Prompt  string          `json:"prompt"`
	Options QuestionOptions `json:"options"`
}

type AgentOptions struct {
	MaxSteps int `json:"maxSteps"`
}

// AIAgentGoal hands the assistant a goal to pursue over several steps.
type AIAgentGoal struct {
	Goal    string       `json:"goal"`
	Options AgentOptions `json:"options"`
}

func (Terminal) Kind() PayloadKind     { return KindTerminal }
func (Download) Kind() PayloadKind     { return KindDownload }
func (UploadNotify) Kind() PayloadKind { return KindUploadNotify }
func (AIQuestion) Kind() PayloadKind   { return KindAIQuestion }
func (AIAgentGoal) Kind() PayloadKind  { return KindAIAgentGoal }

func (Terminal) payload()     {}
func (Download) payload()     {}
func (UploadNotify) payload() {}
func (AIQuestion) payload()   {}
func (AIAgentGoal) payload()  {}

// withKind splices a "kind" discriminator into the JSON object for body.
func withKind(kind PayloadKind, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	k, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+len(k)+10)
	out = append(out, `{"kind":`...)
	out = append(out, k...)
	if len(b) > 2 {
		out = append(out, ',')
	}
	return append(out, b[1:]...), nil
}

// The wrapper types drop the MarshalJSON method so withKind does not recurse.
type (
	terminalBody     Terminal
	downloadBody     Download
	uploadNotifyBody UploadNotify
	aiQuestionBody   AIQuestion
	aiAgentGoalBody  AIAgentGoal
)

func (p Terminal) MarshalJSON() ([]byte, error) {
	return withKind(KindTerminal, terminalBody(p))
}

func (p Download) MarshalJSON() ([]byte, error) {
	return withKind(KindDownload, downloadBody(p))
}

func (p UploadNotify) MarshalJSON() ([]byte, error) {
	return withKind(KindUploadNotify, uploadNotifyBody(p))
}

func (p AIQuestion) MarshalJSON() ([]byte, error) {
	return withKind(KindAIQuestion, aiQuestionBody(p))
}

func (p AIAgentGoal) MarshalJSON() ([]byte, error) {
	return withKind(KindAIAgentGoal, aiAgentGoalBody(p))
}

// DecodePayload parses a payload object produced by the MarshalJSON
// methods above. Backends written in Go and the test servers use it.
func DecodePayload(raw []byte) (Payload, error) {
	var head struct {
		Kind PayloadKind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	switch head.Kind {
	case KindTerminal:
		return decodeAs[Terminal](raw)
	case KindDownload:
		return decodeAs[Download](raw)
	case KindUploadNotify:
		return decodeAs[UploadNotify](raw)
	case KindAIQuestion:
		return decodeAs[AIQuestion](raw)
	case KindAIAgentGoal:
		return decodeAs[AIAgentGoal](raw)
	default:
		return nil, fmt.Errorf("decode payload: unknown kind %q", head.Kind)
	}
}

func decodeAs[T Payload](raw []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", v.Kind(), err)
	}
	return v, nil
}
