package threadmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileStore keeps the mapping in memory and rewrites a JSON object file on
// every mutation. The file is human-readable: {"<guild>:<user>": <thread id>}.
type FileStore struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]uint64

	stopWatch context.CancelFunc
	watchWG   sync.WaitGroup
}

// NewFileStore loads path into memory. A missing file starts empty; an
// unreadable or corrupt file is logged and also starts empty.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("threadmap: file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		path:    path,
		logger:  logger.With("component", "threadmap", "path", path),
		entries: make(map[string]uint64),
	}
	s.load()
	return s, nil
}

func (s *FileStore) load() {
	entries, err := readEntries(s.path)
	if err != nil {
		s.logger.Warn("thread map unreadable, starting empty", "error", err)
		return
	}
	s.entries = entries
	s.logger.Debug("thread map loaded", "entries", len(s.entries))
}

// Reload replaces the in-memory map with the file contents. On error the
// current map is kept.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := readEntries(s.path)
	if err != nil {
		return err
	}
	s.entries = entries
	s.logger.Info("thread map reloaded", "entries", len(entries))
	return nil
}

// readEntries parses path. A missing or empty file is an empty map.
func readEntries(path string) (map[string]uint64, error) {
	entries := make(map[string]uint64)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return entries, nil
	}
	var raw map[string]uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("threadmap: corrupt file: %w", err)
	}
	for key, threadID := range raw {
		normalized, err := normalizeKey(key)
		if err != nil || threadID == 0 {
			continue
		}
		entries[normalized] = threadID
	}
	return entries, nil
}

// Watch reloads the map whenever another process rewrites the file. It
// returns once the watcher is registered; watching ends when ctx is done or
// the store is closed.
func (s *FileStore) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("threadmap: create dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("threadmap: watch: %w", err)
	}
	// Watch the directory: atomic writes replace the file itself.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("threadmap: watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopWatch != nil {
		s.mu.Unlock()
		cancel()
		_ = watcher.Close()
		return errors.New("threadmap: already watching")
	}
	s.stopWatch = cancel
	s.mu.Unlock()

	s.watchWG.Add(1)
	go s.watchLoop(ctx, watcher, debounce)
	return nil
}

func (s *FileStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	defer s.watchWG.Done()
	defer watcher.Close()

	target := filepath.Clean(s.path)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}
		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Warn("thread map reload failed, keeping current entries", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("thread map watcher error", "error", err)
		}
	}
}

// Get returns the thread mapped to key.
func (s *FileStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	threadID, ok := s.entries[key]
	return threadID, ok, nil
}

// Set maps key to threadID and flushes the file. On flush failure the
// in-memory map is restored.
func (s *FileStore) Set(ctx context.Context, key string, threadID uint64) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if threadID == 0 {
		return fmt.Errorf("threadmap: thread id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.entries[key]
	s.entries[key] = threadID
	if err := s.flushLocked(); err != nil {
		if existed {
			s.entries[key] = previous
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// Remove deletes key and flushes the file.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.entries[key]
	if !existed {
		return nil
	}
	delete(s.entries, key)
	if err := s.flushLocked(); err != nil {
		s.entries[key] = previous
		return err
	}
	return nil
}

// RemoveIf deletes key if it is still mapped to threadID.
func (s *FileStore) RemoveIf(ctx context.Context, key string, threadID uint64) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[key]; !ok || current != threadID {
		return false, nil
	}
	delete(s.entries, key)
	if err := s.flushLocked(); err != nil {
		s.entries[key] = threadID
		return false, err
	}
	return true, nil
}

// KeyForThread scans for the key mapped to threadID.
func (s *FileStore) KeyForThread(ctx context.Context, threadID uint64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Iterate in key order so duplicates resolve deterministically.
	keys := make([]string, 0, len(s.entries))
	for key, mapped := range s.entries {
		if mapped == threadID {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	sort.Strings(keys)
	return keys[0], true, nil
}

// Snapshot returns a copy of every mapping.
func (s *FileStore) Snapshot(ctx context.Context) (map[string]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.entries))
	for key, threadID := range s.entries {
		out[key] = threadID
	}
	return out, nil
}

// Close stops any watcher. Every mutation is already on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.watchWG.Wait()
	return nil
}

func (s *FileStore) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("threadmap: create dir: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("threadmap: encode: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("threadmap: write: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
