package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/recording"
)

// SaveRecording closes rec and writes it. rec stays closed when the write fails.
// Uses ON CONFLICT(id) DO NOTHING: saving an id twice keeps the first document.
func (s *Store) SaveRecording(ctx context.Context, rec recording.Recording) error {
	rec.Close()
	doc, err := recording.Encode(rec)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, category, document, digest, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID(),
		rec.Category(),
		string(doc),
		canon.Digest(canon.DomainRecording, doc),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save recording %s: %w", rec.ID(), err)
	}

	s.logger.Debug("recording saved", "id", rec.ID(), "bytes", len(doc))
	return nil
}
