package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ehrlich-b/wingterm/internal/command"
	"github.com/ehrlich-b/wingterm/internal/conversation"
	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/protocol"
	"github.com/ehrlich-b/wingterm/internal/transport"
)

const helpText = `commands:
  /ai [question]    question mode, or ask one question
  /agent [goal]     agent mode, or hand over one goal
  /off              back to shell commands
  /attach [file]    pick a file for /upload (no argument clears it)
  /upload <dir>     upload the attached file to <dir> on the server
  /download <path>  fetch a file from the server
  /quit             disconnect and exit
anything else runs as a shell command; "@ai" in a line asks the assistant`

// sessionClient is the part of session.Manager the shell uses.
type sessionClient interface {
	Send(ctx context.Context, cmd protocol.Command) error
	SessionID() string
}

type uploader interface {
	Upload(ctx context.Context, up transport.UploadRequest) (*transport.UploadResult, error)
}

// shell reads lines from the user and turns them into commands.
type shell struct {
	sess sessionClient
	log  *conversation.Log
	enc  *command.Encoder
	up   uploader
	out  *printer
	open func(path string) (io.ReadCloser, error)

	mode     command.Mode
	attached *command.Attachment
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if s.handleLine(ctx, line) {
				return nil
			}
		}
	}
}

// handleLine runs one line of input and reports whether the user asked
// to quit.
func (s *shell) handleLine(ctx context.Context, line string) (quit bool) {
	word, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch word {
	case "/quit", "/exit":
		return true
	case "/help":
		s.out.Notice(helpText, false)
	case "/ai":
		s.modeCommand(ctx, command.ModeQuestion, rest)
	case "/agent":
		s.modeCommand(ctx, command.ModeAgent, rest)
	case "/off":
		s.mode = command.ModeOff
		s.out.Notice("shell mode", false)
	case "/attach":
		s.attach(rest)
	default:
		s.submit(ctx, line, s.mode)
	}
	return false
}

func (s *shell) modeCommand(ctx context.Context, mode command.Mode, text string) {
	if text != "" {
		s.submit(ctx, text, mode)
		return
	}
	s.mode = mode
	s.out.Notice(fmt.Sprintf("AI %s mode", mode), false)
}

func (s *shell) attach(path string) {
	if path == "" {
		s.attached = nil
		s.out.Notice("attachment cleared", false)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		s.out.Notice(fmt.Sprintf("attach: %v", err), true)
		return
	}
	if info.IsDir() {
		s.out.Notice(fmt.Sprintf("attach: %s is a directory", path), true)
		return
	}
	s.attached = &command.Attachment{Path: path, Name: filepath.Base(path), Size: info.Size()}
	s.out.Notice(fmt.Sprintf("attached %s (%s)", s.attached.Name, humanize.Bytes(uint64(info.Size()))), false)
}

func (s *shell) submit(ctx context.Context, text string, mode command.Mode) {
	if !command.CanSend(text, s.attached) {
		return
	}
	if mode == command.ModeOff && command.HasAITrigger(text) {
		mode = command.ModeQuestion
	}

	cmd, err := s.enc.Encode(command.Input{
		Text:       text,
		Mode:       mode,
		Attachment: s.attached,
		SessionID:  s.sess.SessionID(),
	})
	var verr *command.ValidationError
	if errors.As(err, &verr) {
		for _, p := range verr.Problems {
			s.out.Notice(p, true)
		}
		return
	}
	if err != nil {
		s.out.Notice(err.Error(), true)
		return
	}

	note, isUpload := cmd.Payload.(protocol.UploadNotify)
	if isUpload {
		if err := s.upload(ctx, cmd.ID, note); err != nil {
			s.out.Notice(fmt.Sprintf("upload failed: %v", err), true)
			return
		}
	}

	s.log.AddUser(strings.TrimSpace(text), cmd.ID)
	if err := s.sess.Send(ctx, cmd); err != nil {
		logger.Warn("send failed", "id", cmd.ID, "err", err)
		s.log.AddSystem(fmt.Sprintf("send failed: %v", err), true)
		return
	}
	// A successful send consumes the attachment.
	s.attached = nil
}

func (s *shell) upload(ctx context.Context, id string, note protocol.UploadNotify) error {
	f, err := s.open(s.attached.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := s.up.Upload(ctx, transport.UploadRequest{
		SessionID:       s.sess.SessionID(),
		ClientMessageID: id,
		DestPath:        note.DestPath,
		FileName:        note.FileName,
		Body:            f,
	})
	if err != nil {
		return err
	}
	s.out.Notice(fmt.Sprintf("uploaded %s (%s) to %s", res.FileName, humanize.Bytes(uint64(max(res.FileSize, 0))), res.RemotePath), false)
	return nil
}

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
