package schedule

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"epg-relay/work/logger"
)

// Store provides read access to the current schedule snapshot. Handlers and
// the resolver depend on this interface so tests can substitute a fixed
// document.
type Store interface {
	Get() Document
}

// FileStore caches the schedule document loaded from a JSON file, re-reading
// it at most once per TTL. Load and parse failures are absorbed: the last
// good snapshot (or an empty document) is served instead. Get never fails.
type FileStore struct {
	path string
	ttl  time.Duration

	mu       sync.RWMutex
	doc      Document
	loadedAt time.Time
}

// NewFileStore creates a FileStore for the schedule at path with the given
// refresh TTL. The first Get performs the initial load.
func NewFileStore(path string, ttl time.Duration) *FileStore {
	return &FileStore{
		path: path,
		ttl:  ttl,
		doc:  Document{},
	}
}

// Get returns the current schedule snapshot, refreshing from disk when the
// cached one has expired. Concurrent readers always observe a fully formed
// document: the snapshot is replaced under the write lock, never mutated.
func (s *FileStore) Get() Document {
	s.mu.RLock()
	if !s.loadedAt.IsZero() && time.Since(s.loadedAt) < s.ttl {
		doc := s.doc
		s.mu.RUnlock()
		return doc
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// another goroutine may have refreshed while we waited for the lock
	if !s.loadedAt.IsZero() && time.Since(s.loadedAt) < s.ttl {
		return s.doc
	}

	doc, err := loadFile(s.path)
	if err != nil {
		logger.Warn("schedule load failed, serving cached snapshot (%d groups): %v", len(s.doc), err)
		// stamp the failed attempt too, so a missing file is not re-statted
		// on every request
		s.loadedAt = time.Now()
		return s.doc
	}

	s.doc = doc
	s.loadedAt = time.Now()
	logger.Debug("schedule refreshed from %s: %d groups, %d channels", s.path, len(doc), doc.TotalChannels())
	return s.doc
}

func loadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// FixedStore serves a static document; used by tests and tooling.
type FixedStore struct {
	Doc Document
}

// Get returns the fixed document.
func (f *FixedStore) Get() Document {
	if f.Doc == nil {
		return Document{}
	}
	return f.Doc
}
