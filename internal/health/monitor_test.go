package health

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name      string
	connected bool
	lastMsg   time.Time
}

func (f fakeSource) Name() string           { return f.name }
func (f fakeSource) IsConnected() bool      { return f.connected }
func (f fakeSource) LastMsgTime() time.Time { return f.lastMsg }

type fakeQueue struct {
	size  int
	drops uint64
}

func (f fakeQueue) QueueDepth() int { return f.size }
func (f fakeQueue) Drops() uint64   { return f.drops }

func TestSnapshot_WritesAtomicFileWithExpectedShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.json")
	now := time.Now()
	sources := []Source{
		fakeSource{name: "upbit", connected: true, lastMsg: now},
		fakeSource{name: "bithumb", connected: false, lastMsg: now.Add(-2 * time.Minute)},
	}
	m := New(path, 3, sources, fakeQueue{size: 12, drops: 4}, zerolog.Nop())

	require.NoError(t, m.Snapshot())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	assert.Equal(t, 3, snap.SchemaVersion)
	assert.True(t, snap.WSConnected["upbit"])
	assert.False(t, snap.WSConnected["bithumb"])
	assert.Equal(t, 12, snap.QueueSize)
	assert.Equal(t, uint64(4), snap.QueueDrops)
	assert.Equal(t, now.Unix(), snap.LastTradeTime)
	assert.WithinDuration(t, time.Now(), time.Unix(snap.HeartbeatTS, 0), 5*time.Second)
}

func TestSnapshot_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health.json")
	m := New(path, 1, nil, nil, zerolog.Nop())

	require.NoError(t, m.Snapshot())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "health.json", entries[0].Name())
}

func TestSnapshot_OverwritesPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.json")
	m := New(path, 1, []Source{fakeSource{name: "upbit", connected: true, lastMsg: time.Now()}}, nil, zerolog.Nop())

	require.NoError(t, m.Snapshot())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	m.Sources = []Source{fakeSource{name: "upbit", connected: false, lastMsg: time.Now()}}
	require.NoError(t, m.Snapshot())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, string(first), string(second))
}

func TestRun_WritesFinalSnapshotOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.json")
	m := New(path, 1, nil, nil, zerolog.Nop())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Run(stop)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was closed")
	}

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSnapshot_NoSources_LastTradeTimeIsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.json")
	m := New(path, 1, nil, nil, zerolog.Nop())
	require.NoError(t, m.Snapshot())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Zero(t, snap.LastTradeTime)
}
