// Package store persists admitted packets to per-flow files: a
// bounded LRU of open file descriptors, each record an 8-byte
// little-endian length prefix followed by the raw frame bytes.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/groupcache/lru"

	"github.com/pavelkim/flowtap/internal/flow"
	"github.com/pavelkim/flowtap/internal/handoff"
	"github.com/pavelkim/flowtap/internal/logger"
)

type cachedFile struct {
	f *os.File
}

// Store is a single-consumer packet sink: exactly one goroutine drains
// a hand-off shard into a Store, so the LRU needs no internal locking
// of its own.
type Store struct {
	outputDir string
	cache     *lru.Cache
	log       *logger.Logger
}

// New creates a Store rooted at outputDir, keeping at most capacity
// open file descriptors at a time. Evicted entries are closed via the
// LRU's OnEvicted hook.
func New(outputDir string, capacity int, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create output dir: %w", err)
	}

	s := &Store{outputDir: outputDir, log: log}
	s.cache = lru.New(capacity)
	s.cache.OnEvicted = func(key lru.Key, value interface{}) {
		value.(*cachedFile).f.Close()
	}
	return s, nil
}

// Run drains messages until the channel closes, writing each frame to
// its flow's file and releasing it back to its pool, then flushes and
// closes every remaining open file.
func (s *Store) Run(messages <-chan handoff.Message) {
	for msg := range messages {
		if err := s.write(msg.Flow, msg.Frame.Bytes()); err != nil {
			s.log.Error("packet store write failed", "error", err, "flow", msg.Flow.Filename())
		}
		msg.Frame.Release()
	}
	s.closeAll()
}

func (s *Store) write(f flow.Flow, payload []byte) error {
	file, err := s.fileFor(f)
	if err != nil {
		return err
	}

	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(payload)))

	if _, err := file.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("store: write length prefix: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		return fmt.Errorf("store: write payload: %w", err)
	}
	return nil
}

// fileFor returns the open file for f, promoting it to
// most-recently-used, opening and caching it on a miss.
func (s *Store) fileFor(f flow.Flow) (*os.File, error) {
	if v, ok := s.cache.Get(f); ok {
		return v.(*cachedFile).f, nil
	}

	path := filepath.Join(s.outputDir, f.Filename())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s.cache.Add(f, &cachedFile{f: file})
	return file, nil
}

// closeAll evicts every cached entry, closing its file via OnEvicted.
func (s *Store) closeAll() {
	for s.cache.Len() > 0 {
		s.cache.RemoveOldest()
	}
}
