package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAssignsIDAndTime(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	e, err := s.Record(ctx, Entry{Kind: KindRestart, Detail: "too many attempts"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Time.IsZero())

	_, err = s.Record(ctx, Entry{})
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i, kind := range []Kind{KindQuestion, KindNavigation, KindQuestion, KindRestart} {
		_, err := s.Record(ctx, Entry{
			Kind:    kind,
			Subject: string(rune('a' + i)),
			Time:    base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, KindRestart, all[0].Kind)
	assert.Equal(t, "a", all[3].Subject)
	assert.True(t, all[0].Time.Equal(base.Add(3*time.Second)))

	questions, err := s.Recent(ctx, KindQuestion, 10)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "c", questions[0].Subject)

	limited, err := s.Recent(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestCount(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Record(ctx, Entry{Kind: KindEscalation, Outcome: "stop"})
		require.NoError(t, err)
	}
	_, err := s.Record(ctx, Entry{Kind: KindState, Subject: "running"})
	require.NoError(t, err)

	n, err := s.Count(ctx, KindEscalation)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Kind: KindLocation, Subject: "lab", Outcome: "confirmed"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.Recent(ctx, KindLocation, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lab", entries[0].Subject)
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Record(context.Background(), Entry{Kind: KindState})
	require.NoError(t, err)
	n, err := s.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
