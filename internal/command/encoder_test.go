package command

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/ehrlich-b/wingterm/internal/protocol"
)

var notes = &Attachment{Path: "/home/me/notes.txt", Name: "notes.txt", Size: 12}

func TestEncode(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want protocol.Payload
	}{
		{"terminal", Input{Text: "  ls -la  "}, protocol.Terminal{Text: "ls -la"}},
		{"terminal with attachment only", Input{Text: "", Attachment: notes}, protocol.Terminal{Text: ""}},
		{"download", Input{Text: "/download /var/log/app.log"}, protocol.Download{Path: "/var/log/app.log"}},
		{"download beats ai mode", Input{Text: "/download a.txt", Mode: ModeQuestion}, protocol.Download{Path: "a.txt"}},
		{"upload with to", Input{Text: "/upload to /tmp/x", Attachment: notes}, protocol.UploadNotify{DestPath: "/tmp/x", FileName: "notes.txt"}},
		{"upload bare", Input{Text: "/upload /srv/in", Attachment: notes}, protocol.UploadNotify{DestPath: "/srv/in", FileName: "notes.txt"}},
		{"question", Input{Text: "hello", Mode: ModeQuestion}, protocol.AIQuestion{Prompt: "hello", Options: protocol.QuestionOptions{Language: "en"}}},
		{"question strips trigger", Input{Text: "@ai why is disk full", Mode: ModeQuestion}, protocol.AIQuestion{Prompt: "why is disk full", Options: protocol.QuestionOptions{Language: "en"}}},
		{"agent", Input{Text: "rotate the logs @AI", Mode: ModeAgent}, protocol.AIAgentGoal{Goal: "rotate the logs", Options: protocol.AgentOptions{MaxSteps: 8}}},
		{"trigger inside word kept", Input{Text: "mail me@ai.dev", Mode: ModeQuestion}, protocol.AIQuestion{Prompt: "mail me@ai.dev", Options: protocol.QuestionOptions{Language: "en"}}},
		{"prefix must be a word", Input{Text: "/downloads"}, protocol.Terminal{Text: "/downloads"}},
	}
	enc := NewEncoder()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := enc.Encode(tc.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if !reflect.DeepEqual(cmd.Payload, tc.want) {
				t.Errorf("payload = %#v, want %#v", cmd.Payload, tc.want)
			}
			if _, err := uuid.Parse(cmd.ID); err != nil {
				t.Errorf("id %q is not a uuid: %v", cmd.ID, err)
			}
		})
	}
}

func TestEncodeValidation(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want []string
	}{
		{"empty download path", Input{Text: "/download "}, []string{"missing download path"}},
		{"upload without file", Input{Text: "/upload to /tmp/x"}, []string{"no file selected"}},
		{"upload without anything", Input{Text: "/upload"}, []string{"missing upload path", "no file selected"}},
		{"upload without path", Input{Text: "/upload to", Attachment: notes}, []string{"missing upload path"}},
		{"empty question", Input{Text: "  @ai  ", Mode: ModeQuestion}, []string{"empty AI prompt"}},
		{"empty goal", Input{Text: "", Mode: ModeAgent}, []string{"empty AI prompt"}},
	}
	enc := NewEncoder()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := enc.Encode(tc.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if !reflect.DeepEqual(verr.Problems, tc.want) {
				t.Errorf("problems = %q, want %q", verr.Problems, tc.want)
			}
			if cmd.Payload != nil || cmd.ID != "" {
				t.Errorf("got a command alongside validation errors: %+v", cmd)
			}
		})
	}
}

func TestEmptySendIsCallerPrecondition(t *testing.T) {
	if CanSend("   ", nil) {
		t.Error("CanSend accepted an empty send")
	}
	if !CanSend("", notes) {
		t.Error("CanSend rejected an attachment-only send")
	}
	_, err := NewEncoder().Encode(Input{Text: ""})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Error("empty send must not be reported as a validation error")
	}
}

func TestEncodeFreshIDs(t *testing.T) {
	enc := NewEncoder()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		cmd, err := enc.Encode(Input{Text: "date"})
		if err != nil {
			t.Fatal(err)
		}
		if seen[cmd.ID] {
			t.Fatalf("duplicate id %s", cmd.ID)
		}
		seen[cmd.ID] = true
	}
}

func TestEncodeCarriesSessionAndOptions(t *testing.T) {
	enc := &Encoder{NewID: func() string { return "fixed" }, Language: "fr", MaxSteps: 3}
	cmd, err := enc.Encode(Input{Text: "go", Mode: ModeAgent, SessionID: "S1"})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.ID != "fixed" || cmd.SessionID != "S1" {
		t.Errorf("cmd = %+v", cmd)
	}
	if got := cmd.Payload.(protocol.AIAgentGoal).Options.MaxSteps; got != 3 {
		t.Errorf("max steps = %d", got)
	}
	cmd, _ = enc.Encode(Input{Text: "hi", Mode: ModeQuestion})
	if got := cmd.Payload.(protocol.AIQuestion).Options.Language; got != "fr" {
		t.Errorf("language = %q", got)
	}
}

func TestHasAITrigger(t *testing.T) {
	cases := map[string]bool{
		"@ai why is it slow":  true,
		"explain this @AI":    true,
		"mail me@ai.example":  false,
		"@aid the build":      false,
		"ls -la":              false,
		"ask (@ai) something": true,
	}
	for in, want := range cases {
		if got := HasAITrigger(in); got != want {
			t.Errorf("HasAITrigger(%q) = %v, want %v", in, got, want)
		}
	}
}
