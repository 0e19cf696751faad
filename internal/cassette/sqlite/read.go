package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/recording"
)

// ErrCorrupt is returned when a stored document no longer matches its digest.
var ErrCorrupt = errors.New("recording document does not match digest")

// Summary describes a stored recording without decoding it.
type Summary struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Digest   string `json:"digest" yaml:"digest"`
	SavedAt  string `json:"saved_at" yaml:"saved_at"`
	Bytes    int    `json:"bytes" yaml:"bytes"`
}

// GetRecording loads and verifies the recording with the given id.
func (s *Store) GetRecording(ctx context.Context, id string) (recording.Recording, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return nil, err
	}
	return recording.Decode(doc)
}

// Verify checks that the stored document for id matches its digest.
func (s *Store) Verify(ctx context.Context, id string) error {
	_, err := s.document(ctx, id)
	return err
}

func (s *Store) document(ctx context.Context, id string) ([]byte, error) {
	var doc, digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT document, digest
		FROM recordings
		WHERE id = ?
	`, id).Scan(&doc, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get recording %s: %w", id, cassette.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}

	if got := canon.Digest(canon.DomainRecording, []byte(doc)); got != digest {
		return nil, fmt.Errorf("get recording %s: %w (stored %s, computed %s)", id, ErrCorrupt, digest, got)
	}
	return []byte(doc), nil
}

// ListRecordings returns all recording ids in save order.
func (s *Store) ListRecordings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM recordings
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return ids, nil
}

// Summaries returns stored recordings in save order, optionally filtered by
// category. An empty category matches all recordings.
func (s *Store) Summaries(ctx context.Context, category string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, digest, saved_at, length(document)
		FROM recordings
		WHERE ? = '' OR category = ?
		ORDER BY seq ASC
	`, category, category)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Category, &sum.Digest, &sum.SavedAt, &sum.Bytes); err != nil {
			return nil, fmt.Errorf("list summaries: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return out, nil
}
