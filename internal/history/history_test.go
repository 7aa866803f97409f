package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func exerciseRecorder(t *testing.T, rec Recorder) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, rec.Record(ctx, Event{SessionID: "s1", UserID: "u1", Name: "kim", Cause: CauseCoins, At: at}))
	require.NoError(t, rec.Record(ctx, Event{SessionID: "s1", UserID: "u2", Name: "lee", Cause: CauseTimeout, At: at.Add(time.Minute)}))
	require.NoError(t, rec.Record(ctx, Event{SessionID: "s2", UserID: "u3", Name: "park", Cause: CauseCoins, At: at}))

	events, err := rec.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "u1", events[0].UserID)
	require.Equal(t, CauseTimeout, events[1].Cause)
	require.True(t, events[1].At.Equal(at.Add(time.Minute)))

	events, err = rec.List(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestMemoryRecorder(t *testing.T) {
	rec, err := Open("")
	require.NoError(t, err)
	defer rec.Close()
	exerciseRecorder(t, rec)
}

func TestBoltRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	rec, err := Open(path)
	require.NoError(t, err)
	exerciseRecorder(t, rec)
	require.NoError(t, rec.Close())

	reopened, err := OpenBolt(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.List(context.Background(), "s2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "park", events[0].Name)
}

func TestBoltRecordHonoursCancelledContext(t *testing.T) {
	rec, err := OpenBolt(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, rec.Record(ctx, Event{SessionID: "s1"}), context.Canceled)
}
