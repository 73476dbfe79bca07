package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/ehrlich-b/wingterm/internal/command"
	"github.com/ehrlich-b/wingterm/internal/conversation"
	"github.com/ehrlich-b/wingterm/internal/protocol"
	"github.com/ehrlich-b/wingterm/internal/transport"
)

type fakeSession struct {
	sid  string
	sent []protocol.Command
	err  error
}

func (f *fakeSession) Send(ctx context.Context, cmd protocol.Command) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeSession) SessionID() string { return f.sid }

func newTestShell(t *testing.T) (*shell, *fakeSession, *mockUploader, *bytes.Buffer) {
	t.Helper()
	n := 0
	enc := command.NewEncoder()
	enc.NewID = func() string { n++; return fmt.Sprintf("c%d", n) }
	var buf bytes.Buffer
	sess := &fakeSession{sid: "S1"}
	up := &mockUploader{}
	return &shell{
		sess: sess,
		log:  conversation.NewLog(),
		enc:  enc,
		up:   up,
		out:  newPrinter(&buf),
		open: openFile,
	}, sess, up, &buf
}

func TestShellTerminalCommand(t *testing.T) {
	sh, sess, _, _ := newTestShell(t)
	sh.handleLine(context.Background(), "  df -h  ")

	if len(sess.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(sess.sent))
	}
	cmd := sess.sent[0]
	if cmd.Payload != (protocol.Terminal{Text: "df -h"}) || cmd.SessionID != "S1" || cmd.ID != "c1" {
		t.Errorf("cmd = %+v", cmd)
	}
	entries := sh.log.Entries()
	if len(entries) != 1 || entries[0].Role != conversation.RoleUser || entries[0].CorrelationID != "c1" || entries[0].Text != "df -h" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestShellModes(t *testing.T) {
	sh, sess, _, _ := newTestShell(t)
	ctx := context.Background()

	sh.handleLine(ctx, "/ai why is the disk full")
	if sh.mode != command.ModeOff {
		t.Errorf("one-shot /ai changed mode to %v", sh.mode)
	}
	sh.handleLine(ctx, "/agent")
	sh.handleLine(ctx, "clean up /tmp")
	sh.handleLine(ctx, "/off")
	sh.handleLine(ctx, "@ai what is load average")
	sh.handleLine(ctx, "uptime")

	want := []protocol.Payload{
		protocol.AIQuestion{Prompt: "why is the disk full", Options: protocol.QuestionOptions{Language: "en"}},
		protocol.AIAgentGoal{Goal: "clean up /tmp", Options: protocol.AgentOptions{MaxSteps: 8}},
		protocol.AIQuestion{Prompt: "what is load average", Options: protocol.QuestionOptions{Language: "en"}},
		protocol.Terminal{Text: "uptime"},
	}
	if len(sess.sent) != len(want) {
		t.Fatalf("sent %d commands, want %d", len(sess.sent), len(want))
	}
	for i, w := range want {
		if sess.sent[i].Payload != w {
			t.Errorf("command %d payload = %#v, want %#v", i, sess.sent[i].Payload, w)
		}
	}
}

func TestShellValidationErrorSendsNothing(t *testing.T) {
	sh, sess, _, buf := newTestShell(t)
	sh.handleLine(context.Background(), "/download")
	sh.handleLine(context.Background(), "/upload /srv")

	if len(sess.sent) != 0 {
		t.Errorf("sent %+v", sess.sent)
	}
	if sh.log.Len() != 0 {
		t.Errorf("log has %d entries", sh.log.Len())
	}
	out := buf.String()
	if !strings.Contains(out, "! missing download path") || !strings.Contains(out, "! no file selected") {
		t.Errorf("output = %q", out)
	}
}

func TestShellBlankLineIgnored(t *testing.T) {
	sh, sess, _, buf := newTestShell(t)
	sh.handleLine(context.Background(), "   ")
	if len(sess.sent) != 0 || buf.Len() != 0 {
		t.Errorf("blank line produced output %q or sends %+v", buf.String(), sess.sent)
	}
}

func attachTemp(t *testing.T, sh *shell, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	sh.handleLine(context.Background(), "/attach "+path)
	if sh.attached == nil {
		t.Fatal("attachment not set")
	}
	return path
}

func TestShellUploadSendsFileFirst(t *testing.T) {
	sh, sess, up, buf := newTestShell(t)
	attachTemp(t, sh, "hello world")

	var body string
	up.On("Upload", mock.Anything, mock.MatchedBy(func(r transport.UploadRequest) bool {
		return r.SessionID == "S1" && r.ClientMessageID == "c1" && r.DestPath == "/srv/in" && r.FileName == "notes.txt"
	})).Run(func(args mock.Arguments) {
		data, _ := io.ReadAll(args.Get(1).(transport.UploadRequest).Body)
		body = string(data)
	}).Return(&transport.UploadResult{RemotePath: "/srv/in/notes.txt", FileName: "notes.txt", FileSize: 11}, nil).Once()

	sh.handleLine(context.Background(), "/upload to /srv/in")

	up.AssertExpectations(t)
	if body != "hello world" {
		t.Errorf("uploaded body = %q", body)
	}
	if len(sess.sent) != 1 || sess.sent[0].Payload != (protocol.UploadNotify{DestPath: "/srv/in", FileName: "notes.txt"}) {
		t.Fatalf("sent = %+v", sess.sent)
	}
	if sh.attached != nil {
		t.Error("attachment should be cleared after upload")
	}
	if !strings.Contains(buf.String(), "uploaded notes.txt (11 B) to /srv/in/notes.txt") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestShellUploadFailureKeepsAttachment(t *testing.T) {
	sh, sess, up, buf := newTestShell(t)
	attachTemp(t, sh, "x")
	up.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("HTTP 507: disk full")).Once()

	sh.handleLine(context.Background(), "/upload /srv")

	up.AssertExpectations(t)
	if len(sess.sent) != 0 {
		t.Errorf("sent %+v after failed upload", sess.sent)
	}
	if sh.attached == nil {
		t.Error("attachment dropped after failed upload")
	}
	if !strings.Contains(buf.String(), "upload failed: HTTP 507: disk full") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestShellAttachErrors(t *testing.T) {
	sh, _, _, buf := newTestShell(t)
	sh.handleLine(context.Background(), "/attach "+filepath.Join(t.TempDir(), "missing"))
	sh.handleLine(context.Background(), "/attach "+t.TempDir())
	if sh.attached != nil {
		t.Errorf("attached = %+v", sh.attached)
	}
	if got := strings.Count(buf.String(), "! attach:"); got != 2 {
		t.Errorf("output = %q", buf.String())
	}

	attachTemp(t, sh, "abc")
	sh.handleLine(context.Background(), "/attach")
	if sh.attached != nil {
		t.Error("bare /attach should clear the attachment")
	}
}

func TestShellSendFailure(t *testing.T) {
	sh, sess, _, _ := newTestShell(t)
	sess.err = errors.New("not connected")
	sh.handleLine(context.Background(), "ls")

	entries := sh.log.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Role != conversation.RoleSystem || !entries[1].IsError || !strings.Contains(entries[1].Text, "not connected") {
		t.Errorf("error entry = %+v", entries[1])
	}
}

func TestShellRunStopsOnQuit(t *testing.T) {
	sh, sess, _, _ := newTestShell(t)
	in := strings.NewReader("whoami\n/quit\nls\n")
	if err := sh.run(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(sess.sent) != 1 {
		t.Errorf("sent %d commands, want 1", len(sess.sent))
	}
}

func TestShellRunStopsOnEOF(t *testing.T) {
	sh, sess, _, _ := newTestShell(t)
	if err := sh.run(context.Background(), strings.NewReader("a\nb")); err != nil {
		t.Fatal(err)
	}
	if len(sess.sent) != 2 {
		t.Errorf("sent %d commands, want 2", len(sess.sent))
	}
}

func TestShellAnySendConsumesAttachment(t *testing.T) {
	sh, sess, up, _ := newTestShell(t)
	attachTemp(t, sh, "abc")
	sh.handleLine(context.Background(), "wc -c")

	up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	if len(sess.sent) != 1 || sess.sent[0].Payload != (protocol.Terminal{Text: "wc -c"}) {
		t.Fatalf("sent = %+v", sess.sent)
	}
	if sh.attached != nil {
		t.Error("attachment survived a send")
	}
}
