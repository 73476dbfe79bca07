package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Transcript is one recorded connection to a backend.
type Transcript struct {
	ID         string
	Host       string
	Username   string
	SessionID  string
	StartedAt  time.Time
	UpdatedAt  time.Time
	EntryCount int
}

// TranscriptEntry is a finalized conversation entry.
type TranscriptEntry struct {
	ID            string
	TranscriptID  string
	Role          string
	Kind          string
	Text          string
	IsError       bool
	CorrelationID string
	DownloadURL   string
	DownloadName  string
	DownloadSize  int64
	CreatedAt     time.Time
}

func (s *Store) CreateTranscript(t *Transcript) error {
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.StartedAt
	_, err := s.db.Exec(
		`INSERT INTO transcripts (id, host, username, session_id, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Host, t.Username, t.SessionID, t.StartedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	return nil
}

// SetTranscriptSession records the latest server-assigned session id.
func (s *Store) SetTranscriptSession(id, sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE transcripts SET session_id = ?, updated_at = ? WHERE id = ?`,
		sessionID, time.Now().UTC(), id,
	)
	return err
}

// GetTranscript returns nil, nil when id is unknown.
func (s *Store) GetTranscript(id string) (*Transcript, error) {
	row := s.db.QueryRow(
		`SELECT t.id, t.host, t.username, t.session_id, t.started_at, t.updated_at,
			(SELECT COUNT(*) FROM transcript_entries e WHERE e.transcript_id = t.id)
		FROM transcripts t WHERE t.id = ?`, id,
	)
	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTranscripts returns the most recently active transcripts first.
// A limit of zero or less returns all of them.
func (s *Store) ListTranscripts(limit int) ([]*Transcript, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT t.id, t.host, t.username, t.session_id, t.started_at, t.updated_at,
			(SELECT COUNT(*) FROM transcript_entries e WHERE e.transcript_id = t.id)
		FROM transcripts t ORDER BY t.updated_at DESC, t.started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) DeleteTranscript(id string) error {
	_, err := s.db.Exec(`DELETE FROM transcripts WHERE id = ?`, id)
	return err
}

// SaveEntry writes e under its transcript. Saving an entry id again
// overwrites its content but keeps its original position.
func (s *Store) SaveEntry(e *TranscriptEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO transcript_entries
			(entry_id, transcript_id, role, kind, text, is_error, correlation_id, download_url, download_name, download_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			role = excluded.role,
			kind = excluded.kind,
			text = excluded.text,
			is_error = excluded.is_error,
			download_url = excluded.download_url,
			download_name = excluded.download_name,
			download_size = excluded.download_size`,
		e.ID, e.TranscriptID, e.Role, e.Kind, e.Text, e.IsError, e.CorrelationID,
		e.DownloadURL, e.DownloadName, e.DownloadSize, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	if _, err := tx.Exec(`UPDATE transcripts SET updated_at = ? WHERE id = ?`, time.Now().UTC(), e.TranscriptID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEntries returns a transcript's entries in the order they were first saved.
func (s *Store) ListEntries(transcriptID string) ([]*TranscriptEntry, error) {
	rows, err := s.db.Query(
		`SELECT entry_id, transcript_id, role, kind, text, is_error, correlation_id,
			download_url, download_name, download_size, created_at
		FROM transcript_entries WHERE transcript_id = ? ORDER BY seq ASC`, transcriptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.TranscriptID, &e.Role, &e.Kind, &e.Text, &e.IsError, &e.CorrelationID,
			&e.DownloadURL, &e.DownloadName, &e.DownloadSize, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row scanner) (*Transcript, error) {
	var t Transcript
	if err := row.Scan(&t.ID, &t.Host, &t.Username, &t.SessionID, &t.StartedAt, &t.UpdatedAt, &t.EntryCount); err != nil {
		return nil, err
	}
	return &t, nil
}
