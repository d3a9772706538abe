package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Entry is one journaled dispatch.
type Entry struct {
	ID        string
	Seq       int64
	Action    string
	Payload   tree.Value
	Changed   []string
	StateHash string
}

// Filter narrows Read. Zero values match everything.
type Filter struct {
	// Action keeps only entries for this action.
	Action string

	// AfterSeq keeps entries with seq greater than this.
	AfterSeq int64

	// Limit caps the number of entries returned.
	Limit int
}

// Append writes e. Writing the same ID twice is a no-op; a different ID
// with an existing seq is an error.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	payload, err := tree.MarshalCanonical(orNull(e.Payload))
	if err != nil {
		return fmt.Errorf("append entry %d: payload: %w", e.Seq, err)
	}
	changed := e.Changed
	if changed == nil {
		changed = []string{}
	}
	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return fmt.Errorf("append entry %d: changed: %w", e.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO entries (id, seq, action, payload, changed, state_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Seq, e.Action, string(payload), string(changedJSON), e.StateHash)
	if err != nil {
		return fmt.Errorf("append entry %d: %w", e.Seq, err)
	}
	return nil
}

// Read returns matching entries ordered by seq.
func (j *Journal) Read(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := `SELECT id, seq, action, payload, changed, state_hash FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest recorded seq, 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Count returns the number of entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e           Entry
		payload     string
		changedJSON string
	)
	if err := rows.Scan(&e.ID, &e.Seq, &e.Action, &payload, &changedJSON, &e.StateHash); err != nil {
		return e, fmt.Errorf("scan entry: %w", err)
	}

	v, err := tree.UnmarshalValue([]byte(payload))
	if err != nil {
		return e, fmt.Errorf("entry %d: payload: %w", e.Seq, err)
	}
	e.Payload = v

	if err := json.Unmarshal([]byte(changedJSON), &e.Changed); err != nil {
		return e, fmt.Errorf("entry %d: changed: %w", e.Seq, err)
	}
	return e, nil
}

func orNull(v tree.Value) tree.Value {
	if v == nil {
		return tree.Null{}
	}
	return v
}
