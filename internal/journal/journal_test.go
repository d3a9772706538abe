package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/testutil"
	"github.com/ESETdropout/kframe/internal/tree"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

// recordSession runs a few dispatches against a fresh counter store with a
// recorder attached.
func recordSession(t *testing.T, j *Journal) *engine.Store {
	t.Helper()
	ctx := context.Background()
	s := engine.New(testutil.CounterDefinition())
	rec := NewRecorder(ctx, j, WithIDGenerator(testutil.NewSequentialIDs("entry")))
	detach := rec.Attach(s)
	defer detach()

	_, err := s.Dispatch("increment", nil)
	require.NoError(t, err)
	_, err = s.Dispatch("push", tree.MapOf(tree.P("id", tree.String("a")), tree.P("hp", tree.Int(3))))
	require.NoError(t, err)
	_, err = s.Dispatch("noop", nil)
	require.NoError(t, err)
	_, err = s.Dispatch("add", tree.Int(5))
	require.NoError(t, err)

	require.NoError(t, rec.Err())
	assert.Equal(t, 4, rec.Recorded())
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTestJournal(t)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, j.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j, _ := openTestJournal(t)

	mode, err := j.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	version, err := j.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestMeta_SetAndGet(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	_, ok, err := j.Meta(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, j.SetMeta(ctx, "k", "v1"))
	require.NoError(t, j.SetMeta(ctx, "k", "v2"))
	v, ok, err := j.Meta(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestRecorder_WritesEntries(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	s := recordSession(t, j)

	entries, err := j.Read(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "entry-0001", entries[0].ID)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, "increment", entries[0].Action)
	assert.Equal(t, tree.Null{}, entries[0].Payload)
	assert.Equal(t, []string{"count"}, entries[0].Changed)

	assert.Equal(t, []string{}, entries[1].Changed, "in-place list mutation is signalled by the dirty flag")
	assert.Equal(t, tree.Int(3), entries[1].Payload.(*tree.Map).Lookup("hp"))
	assert.Equal(t, []string{}, entries[2].Changed, "no-op dispatch is still journaled")

	want, err := tree.Hash(s.State())
	require.NoError(t, err)
	assert.Equal(t, want, entries[3].StateHash)

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRead_Filter(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	recordSession(t, j)

	tests := []struct {
		name    string
		filter  Filter
		wantSeq []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3, 4}},
		{"by action", Filter{Action: "push"}, []int64{2}},
		{"after seq", Filter{AfterSeq: 2}, []int64{3, 4}},
		{"limit", Filter{Limit: 2}, []int64{1, 2}},
		{"no match", Filter{Action: "ghost"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := j.Read(ctx, tt.filter)
			require.NoError(t, err)
			seqs := []int64{}
			for _, e := range entries {
				seqs = append(seqs, e.Seq)
			}
			assert.Equal(t, tt.wantSeq, seqs)
		})
	}
}

func TestAppend_DuplicateIDIsNoop(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	e := Entry{ID: "same", Seq: 1, Action: "increment", StateHash: "h"}
	require.NoError(t, j.Append(ctx, e))
	require.NoError(t, j.Append(ctx, e))

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = j.Append(ctx, Entry{ID: "other", Seq: 1, Action: "increment", StateHash: "h"})
	assert.Error(t, err, "seq is unique")
}

func TestRecorder_KeepsFirstError(t *testing.T) {
	j, _ := openTestJournal(t)
	s := engine.New(testutil.CounterDefinition())
	rec := NewRecorder(context.Background(), j, WithIDGenerator(testutil.NewSequentialIDs("e")))
	rec.Attach(s)

	require.NoError(t, j.Close())
	_, err := s.Dispatch("increment", nil)
	require.NoError(t, err, "listener errors never fail a dispatch")
	_, err = s.Dispatch("increment", nil)
	require.NoError(t, err)

	require.Error(t, rec.Err())
	assert.Contains(t, rec.Err().Error(), "record seq 1")
	assert.Equal(t, 0, rec.Recorded())
}

func TestReplay_ReproducesState(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	original := recordSession(t, j)

	fresh := engine.New(testutil.CounterDefinition())
	res, err := Replay(ctx, j, fresh)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Entries)
	assert.Equal(t, int64(4), res.LastSeq)
	want, err := tree.Hash(original.State())
	require.NoError(t, err)
	assert.Equal(t, want, res.StateHash)
	assert.Equal(t, tree.Int(6), fresh.State().Lookup("count"))
	assert.Equal(t, 1, fresh.State().Lookup("items").(*tree.List).Len())
}

func TestReplay_DetectsDivergence(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	recordSession(t, j)

	def := testutil.CounterDefinition()
	def.Handlers["add"] = func(state *tree.Map, payload tree.Value) error {
		state.Set("count", tree.Int(-1))
		return nil
	}

	_, err := Replay(ctx, j, engine.New(def))
	require.Error(t, err)
	assert.True(t, IsDivergence(err))

	var de *DivergenceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, int64(4), de.Seq)
	assert.Equal(t, "add", de.Action)
	assert.Equal(t, "state_hash", de.Field)
}

func TestReplay_UnknownAction(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	recordSession(t, j)

	def := testutil.CounterDefinition()
	delete(def.Handlers, "push")

	_, err := Replay(ctx, j, engine.New(def))
	require.Error(t, err)
	assert.True(t, engine.IsUnknownAction(err))
}

func TestReplay_RequiresFreshStore(t *testing.T) {
	j, _ := openTestJournal(t)
	s := engine.New(testutil.CounterDefinition())
	_, err := s.Dispatch("increment", nil)
	require.NoError(t, err)

	_, err = Replay(context.Background(), j, s)
	assert.ErrorContains(t, err, "already at seq 1")
}

func TestReplay_CanceledContext(t *testing.T) {
	j, _ := openTestJournal(t)
	recordSession(t, j)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Replay(ctx, j, engine.New(testutil.CounterDefinition()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStamp(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	initial := testutil.CounterDefinition().InitialState

	require.NoError(t, Stamp(ctx, j, "counter", initial))
	require.NoError(t, Stamp(ctx, j, "counter", initial), "same definition stamps again")

	err := Stamp(ctx, j, "other", initial)
	require.Error(t, err)
	assert.True(t, IsMismatch(err))

	changed := tree.MapOf(tree.P("count", tree.Int(7)))
	err = Stamp(ctx, j, "counter", changed)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, MetaInitialHash, me.Key)
}
