package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSchedule = `{
  "news": {
    "category": "News",
    "service_channels": [
      {
        "id": "n1",
        "channel_name": "News One",
        "icon_url": "http://icons/n1.png",
        "programs": [
          {
            "start_dt": "2026-03-10T12:00:00Z",
            "stop_dt": "2026-03-10T13:00:00Z",
            "start_str": "20260310120000 +0000",
            "stop_str": "20260310130000 +0000",
            "program_name": "Noon Bulletin",
            "description": "Headlines",
            "stream_url": "http://src/a.ts"
          }
        ]
      }
    ]
  }
}`

func writeSchedule(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileStoreLoadsDocument(t *testing.T) {
	store := NewFileStore(writeSchedule(t, sampleSchedule), time.Minute)

	doc := store.Get()
	require.Len(t, doc, 1)
	assert.Equal(t, "News", doc["news"].Category)
	require.Len(t, doc["news"].ServiceChannels, 1)
	assert.Equal(t, "News One", doc["news"].ServiceChannels[0].ChannelName)
	assert.Equal(t, 1, doc.TotalChannels())
}

func TestFileStoreCachesWithinTTL(t *testing.T) {
	path := writeSchedule(t, sampleSchedule)
	store := NewFileStore(path, time.Hour)

	first := store.Get()
	require.Len(t, first, 1)

	// replace the file; the cached snapshot must still be served
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	second := store.Get()
	assert.Len(t, second, 1)
}

func TestFileStoreRefreshesAfterTTL(t *testing.T) {
	path := writeSchedule(t, sampleSchedule)
	store := NewFileStore(path, 10*time.Millisecond)

	require.Len(t, store.Get(), 1)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	assert.Eventually(t, func() bool {
		return len(store.Get()) == 0
	}, time.Second, 20*time.Millisecond)
}

func TestFileStoreServesStaleOnCorruptReload(t *testing.T) {
	path := writeSchedule(t, sampleSchedule)
	store := NewFileStore(path, 10*time.Millisecond)

	require.Len(t, store.Get(), 1)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	time.Sleep(30 * time.Millisecond)

	// the corrupt reload is absorbed and the last good snapshot survives
	doc := store.Get()
	assert.Len(t, doc, 1)
}

func TestFileStoreEmptyOnMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"), time.Minute)
	doc := store.Get()
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestProgramTimeParsing(t *testing.T) {
	p := Program{StartDt: "2026-03-10T12:00:00Z", StopDt: "2026-03-10T13:00:00Z"}
	start, ok := p.StartTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), start.UTC())
	assert.True(t, p.Resolvable())

	offset := Program{StartDt: "2026-03-10T12:00:00+0100", StopDt: "2026-03-10T13:00:00+0100"}
	_, ok = offset.StartTime()
	assert.True(t, ok)
	assert.True(t, offset.Resolvable())

	bad := Program{StartDt: "yesterday", StopDt: "2026-03-10T13:00:00Z"}
	_, ok = bad.StartTime()
	assert.False(t, ok)
	assert.False(t, bad.Resolvable())

	inverted := Program{StartDt: "2026-03-10T14:00:00Z", StopDt: "2026-03-10T13:00:00Z"}
	assert.False(t, inverted.Resolvable())
}
