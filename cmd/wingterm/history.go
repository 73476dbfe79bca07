package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/conversation"
	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/store"
)

// recorder saves finalized entries of one connection to the transcript
// store. A nil recorder records nothing.
type recorder struct {
	store        *store.Store
	transcriptID string
}

func newRecorder(s *store.Store, conn config.Connection) (*recorder, error) {
	t := &store.Transcript{ID: uuid.NewString(), Host: conn.Host, Username: conn.Username}
	if err := s.CreateTranscript(t); err != nil {
		return nil, err
	}
	return &recorder{store: s, transcriptID: t.ID}, nil
}

func (r *recorder) save(e conversation.Entry) {
	if r == nil || !e.Final() {
		return
	}
	if err := r.store.SaveEntry(toRecord(r.transcriptID, e)); err != nil {
		logger.Warn("save transcript entry", "entry", e.ID, "err", err)
	}
}

func (r *recorder) setSession(id string) {
	if r == nil || id == "" {
		return
	}
	if err := r.store.SetTranscriptSession(r.transcriptID, id); err != nil {
		logger.Warn("save session id", "session", id, "err", err)
	}
}

func toRecord(transcriptID string, e conversation.Entry) *store.TranscriptEntry {
	rec := &store.TranscriptEntry{
		ID:            e.ID,
		TranscriptID:  transcriptID,
		Role:          string(e.Role),
		Kind:          string(e.Kind),
		Text:          e.Text,
		IsError:       e.IsError,
		CorrelationID: e.CorrelationID,
		CreatedAt:     e.Timestamp,
	}
	if e.Download != nil {
		rec.DownloadURL = e.Download.URL
		rec.DownloadName = e.Download.Name
		rec.DownloadSize = e.Download.Size
	}
	return rec
}

func fromRecord(rec *store.TranscriptEntry) conversation.Entry {
	e := conversation.Entry{
		ID:            rec.ID,
		Role:          conversation.Role(rec.Role),
		Kind:          conversation.Kind(rec.Kind),
		Text:          rec.Text,
		IsError:       rec.IsError,
		CorrelationID: rec.CorrelationID,
		Timestamp:     rec.CreatedAt,
	}
	if e.Kind == conversation.KindDownload {
		e.Download = &conversation.Download{URL: rec.DownloadURL, Name: rec.DownloadName, Size: rec.DownloadSize}
	}
	return e
}

func historyCmd() *cobra.Command {
	var limitFlag int
	var deleteFlag bool

	cmd := &cobra.Command{
		Use:   "history [transcript-id]",
		Short: "List past sessions or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, err := cfg.HistoryPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Println("no history yet")
				return nil
			}
			s, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer s.Close()

			if len(args) == 0 {
				return listTranscripts(os.Stdout, s, limitFlag)
			}
			if deleteFlag {
				if err := s.DeleteTranscript(args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			}
			return printTranscript(os.Stdout, s, args[0])
		},
	}

	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "how many sessions to list (0 for all)")
	cmd.Flags().BoolVar(&deleteFlag, "delete", false, "delete the given transcript")
	return cmd
}

func listTranscripts(w io.Writer, s *store.Store, limit int) error {
	ts, err := s.ListTranscripts(limit)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		fmt.Fprintln(w, "no history yet")
		return nil
	}
	for _, t := range ts {
		who := t.Host
		if t.Username != "" {
			who = t.Username + "@" + t.Host
		}
		fmt.Fprintf(w, "%s  %-24s  %4d entries  %s\n", t.ID, who, t.EntryCount, humanize.Time(t.UpdatedAt))
	}
	return nil
}

func printTranscript(w io.Writer, s *store.Store, id string) error {
	t, err := s.GetTranscript(id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("no transcript %s", id)
	}
	entries, err := s.ListEntries(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s started %s", t.Host, t.StartedAt.Local().Format("2006-01-02 15:04"))
	if t.SessionID != "" {
		fmt.Fprintf(w, " (session %s)", t.SessionID)
	}
	fmt.Fprintln(w)
	for _, rec := range entries {
		fmt.Fprintln(w, formatEntry(fromRecord(rec)))
	}
	return nil
}
