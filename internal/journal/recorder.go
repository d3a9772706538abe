package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Recorder appends every committed dispatch of a store to a journal.
//
// Store listeners cannot fail a dispatch, so the first write error is kept
// and reported by Err; later updates are dropped.
type Recorder struct {
	j   *Journal
	ctx context.Context
	ids IDGenerator

	recorded int
	err      error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIDGenerator sets the entry ID generator. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) RecorderOption {
	return func(r *Recorder) {
		r.ids = g
	}
}

// NewRecorder creates a recorder writing to j. ctx bounds every write.
func NewRecorder(ctx context.Context, j *Journal, opts ...RecorderOption) *Recorder {
	r := &Recorder{j: j, ctx: ctx, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers the recorder as a listener of s.
func (r *Recorder) Attach(s *engine.Store) (detach func()) {
	return s.Listen(r.Record)
}

// Record appends u. It is the listener Attach registers.
func (r *Recorder) Record(u engine.Update) {
	if r.err != nil {
		return
	}

	hash, err := tree.Hash(u.State)
	if err == nil {
		err = r.j.Append(r.ctx, Entry{
			ID:        r.ids.Generate(),
			Seq:       u.Seq,
			Action:    u.Action,
			Payload:   u.Payload,
			Changed:   u.Changed,
			StateHash: hash,
		})
	}
	if err != nil {
		r.err = fmt.Errorf("record seq %d: %w", u.Seq, err)
		slog.Error("journal write failed", "action", u.Action, "seq", u.Seq, "error", err)
		return
	}
	r.recorded++
}

// Recorded returns the number of entries written.
func (r *Recorder) Recorded() int {
	return r.recorded
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	return r.err
}
