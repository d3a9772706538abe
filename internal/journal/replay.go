package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Stamp binds the journal to a definition. An unstamped journal records
// name and the hash of initial; a stamped one must match both.
func Stamp(ctx context.Context, j *Journal, name string, initial *tree.Map) error {
	hash, err := tree.Hash(initial)
	if err != nil {
		return fmt.Errorf("stamp: %w", err)
	}

	want := []struct{ key, value string }{
		{MetaDefinition, name},
		{MetaInitialHash, hash},
	}
	for _, kv := range want {
		got, ok, err := j.Meta(ctx, kv.key)
		if err != nil {
			return fmt.Errorf("stamp: %w", err)
		}
		if !ok {
			if err := j.SetMeta(ctx, kv.key, kv.value); err != nil {
				return fmt.Errorf("stamp: %w", err)
			}
			continue
		}
		if got != kv.value {
			return &MismatchError{Key: kv.key, Want: got, Got: kv.value}
		}
	}
	return nil
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// Entries is the number of entries re-dispatched.
	Entries int

	// LastSeq is the seq of the last replayed entry.
	LastSeq int64

	// StateHash is the hash of the final state.
	StateHash string
}

// Replay re-dispatches every journaled action into s, which must not have
// dispatched yet, and verifies the seq and state hash of each entry. The
// first divergence stops the replay with a *DivergenceError.
func Replay(ctx context.Context, j *Journal, s *engine.Store) (ReplayResult, error) {
	var res ReplayResult

	if seq := s.Seq(); seq != 0 {
		return res, fmt.Errorf("replay: store already at seq %d", seq)
	}

	entries, err := j.Read(ctx, Filter{})
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		u, err := s.Dispatch(e.Action, e.Payload)
		if err != nil {
			return res, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if u.Seq != e.Seq {
			return res, &DivergenceError{
				Seq:    e.Seq,
				Action: e.Action,
				Field:  "seq",
				Want:   strconv.FormatInt(e.Seq, 10),
				Got:    strconv.FormatInt(u.Seq, 10),
			}
		}

		hash, err := tree.Hash(s.State())
		if err != nil {
			return res, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if hash != e.StateHash {
			return res, &DivergenceError{
				Seq:    e.Seq,
				Action: e.Action,
				Field:  "state_hash",
				Want:   e.StateHash,
				Got:    hash,
			}
		}

		res.Entries++
		res.LastSeq = e.Seq
		res.StateHash = hash
	}

	slog.Debug("journal replayed", "entries", res.Entries, "last_seq", res.LastSeq)
	return res, nil
}
