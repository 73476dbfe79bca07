package command

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ehrlich-b/wingterm/internal/protocol"
)

const (
	DownloadPrefix = "/download"
	UploadPrefix   = "/upload"

	DefaultLanguage = "en"
	DefaultMaxSteps = 8
)

// Mode selects how free text is interpreted.
type Mode int

const (
	ModeOff Mode = iota
	ModeQuestion
	ModeAgent
)

func (m Mode) String() string {
	switch m {
	case ModeQuestion:
		return "question"
	case ModeAgent:
		return "agent"
	default:
		return "off"
	}
}

// ErrEmptyInput is returned for a send with no text and no attachment.
// Callers are expected to reject those before encoding.
var ErrEmptyInput = errors.New("nothing to send")

// aiTrigger matches the inline "@ai" token that switches a line to AI mode
// in the input box. It has no meaning once the mode is already set.
var aiTrigger = regexp.MustCompile(`(?i)\B@ai\b`)

// Attachment is a local file picked before sending.
type Attachment struct {
	Path string
	Name string
	Size int64
}

// Input is everything the encoder looks at.
type Input struct {
	Text       string
	Mode       Mode
	Attachment *Attachment
	SessionID  string
}

// ValidationError lists user-correctable problems with an input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Encoder turns user input into typed commands.
type Encoder struct {
	NewID    func() string // correlation id source; uuid v4 when nil
	Language string
	MaxSteps int
}

// NewEncoder returns an encoder with default AI options.
func NewEncoder() *Encoder {
	return &Encoder{Language: DefaultLanguage, MaxSteps: DefaultMaxSteps}
}

// CanSend reports whether a send is worth encoding at all.
func CanSend(text string, att *Attachment) bool {
	return strings.TrimSpace(text) != "" || att != nil
}

// HasAITrigger reports whether text carries the inline "@ai" token, which
// puts a single line in question mode while no mode is set.
func HasAITrigger(text string) bool {
	return aiTrigger.MatchString(text)
}

// Encode builds a command from in. On failure it returns a
// *ValidationError and no command. It has no side effects beyond drawing
// one fresh correlation id.
func (e *Encoder) Encode(in Input) (protocol.Command, error) {
	p, err := e.payload(in)
	if err != nil {
		return protocol.Command{}, err
	}
	return protocol.Command{ID: e.newID(), SessionID: in.SessionID, Payload: p}, nil
}

func (e *Encoder) payload(in Input) (protocol.Payload, error) {
	text := strings.TrimSpace(in.Text)

	if rest, ok := directive(text, DownloadPrefix); ok {
		if rest == "" {
			return nil, invalid("missing download path")
		}
		return protocol.Download{Path: rest}, nil
	}

	if rest, ok := directive(text, UploadPrefix); ok {
		// "/upload to /tmp/x" and "/upload /tmp/x" are the same request.
		if r, ok := directive(rest, "to"); ok {
			rest = r
		}
		var problems []string
		if rest == "" {
			problems = append(problems, "missing upload path")
		}
		if in.Attachment == nil {
			problems = append(problems, "no file selected")
		}
		if len(problems) > 0 {
			return nil, &ValidationError{Problems: problems}
		}
		return protocol.UploadNotify{DestPath: rest, FileName: in.Attachment.Name}, nil
	}

	if in.Mode == ModeQuestion || in.Mode == ModeAgent {
		prompt := strings.TrimSpace(aiTrigger.ReplaceAllString(text, ""))
		if prompt == "" {
			return nil, invalid("empty AI prompt")
		}
		if in.Mode == ModeQuestion {
			return protocol.AIQuestion{
				Prompt:  prompt,
				Options: protocol.QuestionOptions{Language: e.language()},
			}, nil
		}
		return protocol.AIAgentGoal{
			Goal:    prompt,
			Options: protocol.AgentOptions{MaxSteps: e.maxSteps()},
		}, nil
	}

	if text == "" && in.Attachment == nil {
		return nil, ErrEmptyInput
	}
	return protocol.Terminal{Text: text}, nil
}

// directive reports whether text starts with the word prefix (followed by
// whitespace or nothing) and returns the trimmed remainder.
func directive(text, prefix string) (string, bool) {
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	rest := text[len(prefix):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func invalid(msg string) error {
	return &ValidationError{Problems: []string{msg}}
}

func (e *Encoder) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Encoder) language() string {
	if e.Language == "" {
		return DefaultLanguage
	}
	return e.Language
}

func (e *Encoder) maxSteps() int {
	if e.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return e.MaxSteps
}
