package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/knechtdev/knecht/internal/fsys"
)

// Files inside the ledger directory.
const (
	TasksFile    = "tasks"
	BlockersFile = "blockers"
	SeqFile      = "seq"
	LockFile     = "lock"
	EventsFile   = "events.jsonl"
	ConfigFile   = "config.toml"
)

// lockRetry is how often a contended lock is retried.
const lockRetry = 10 * time.Millisecond

// FileStore is a Store persisted as flat files in a ledger directory. Every
// call reloads the files, applies its change and rewrites only the files
// whose content changed, each through a temp file and rename. All file I/O
// goes through an fsys.FS for testability.
type FileStore struct {
	ops
	mu          sync.Mutex
	fs          fsys.FS
	dir         string
	lock        *flock.Flock
	lockTimeout time.Duration
}

var _ Store = (*FileStore)(nil)

// OpenFileStore opens the ledger in dir, creating the directory if needed.
// The existing files are loaded once so a corrupt ledger is reported at
// open time. Missing files mean an empty ledger.
func OpenFileStore(fs fsys.FS, dir string, opts ...Option) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}
	o := buildOptions(opts)
	s := &FileStore{fs: fs, dir: dir}
	if o.locking {
		s.lock = flock.New(filepath.Join(dir, LockFile))
		s.lockTimeout = o.lockTimeout
	}
	s.ops = ops{b: s, rec: o.rec, actor: o.actor}
	if err := s.view(func(*ledger) error { return nil }); err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}
	return s, nil
}

// Dir returns the ledger directory.
func (s *FileStore) Dir() string { return s.dir }

// Format reports the row format of the tasks file as it is on disk now.
func (s *FileStore) Format() (Format, error) {
	var f Format
	err := s.withLock(false, func() error {
		snap, err := s.load()
		f = snap.format
		return err
	})
	return f, err
}

// Compact rewrites the ledger in the current row format, raises the
// high-water mark to the highest live id and drops blocker edges whose
// blocker no longer exists. Ready sets are unchanged because a missing
// blocker already counts as resolved. Returns whether any file changed.
func (s *FileStore) Compact() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed bool
	err := s.withLock(true, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}
		live := make(map[int]bool, len(snap.tasks))
		for _, t := range snap.tasks {
			live[t.ID] = true
			snap.seq = max(snap.seq, t.ID)
		}
		for i := range snap.tasks {
			snap.tasks[i].BlockedBy = slices.DeleteFunc(snap.tasks[i].BlockedBy, func(b int) bool {
				return !live[b]
			})
		}
		changed = (snap.seq > 0 && !bytes.Equal(encodeSeq(snap.seq), snap.raw[SeqFile])) ||
			!bytes.Equal(Encode(snap.tasks), snap.raw[TasksFile]) ||
			!bytes.Equal(EncodeBlockers(snap.tasks), snap.raw[BlockersFile])
		if !changed {
			return nil
		}
		return s.save(snap)
	})
	return changed, err
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) view(fn func(l *ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withLock(false, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}
		return fn(&snap.ledger)
	})
}

func (s *FileStore) update(fn func(l *ledger) (bool, error), committed func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withLock(true, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}
		changed, err := fn(&snap.ledger)
		if err != nil || !changed {
			return err
		}
		if err := s.save(snap); err != nil {
			return err
		}
		committed()
		return nil
	})
}

// withLock runs fn holding the advisory lock, shared for reads and
// exclusive for writes. It is a plain call when locking is off.
func (s *FileStore) withLock(exclusive bool, fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	var ok bool
	var err error
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetry)
	}
	switch {
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("locking %s: %w", s.lock.Path(), err)
	case err != nil || !ok:
		return fmt.Errorf("locking %s after %s: %w", s.lock.Path(), s.lockTimeout, ErrBusy)
	}
	defer s.lock.Unlock() //nolint:errcheck // released on close anyway
	return fn()
}

// snapshot is a loaded ledger plus the raw bytes it came from, so save can
// skip files whose content did not change. present records which files
// existed, so a failed save can put the directory back as it was.
type snapshot struct {
	ledger
	format  Format
	raw     map[string][]byte
	present map[string]bool
}

func (s *FileStore) readOptional(name string) ([]byte, bool, error) {
	data, err := s.fs.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", s.path(name), err)
	}
	return data, true, nil
}

func (s *FileStore) load() (*snapshot, error) {
	snap := &snapshot{raw: make(map[string][]byte, 3), present: make(map[string]bool, 3)}
	for _, name := range []string{SeqFile, TasksFile, BlockersFile} {
		data, ok, err := s.readOptional(name)
		if err != nil {
			return nil, err
		}
		snap.raw[name] = data
		snap.present[name] = ok
	}

	seq, err := decodeSeq(snap.raw[SeqFile])
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path(SeqFile), err)
	}
	ts, format, err := Decode(snap.raw[TasksFile])
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path(TasksFile), err)
	}
	edges, err := DecodeBlockers(snap.raw[BlockersFile])
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.path(BlockersFile), err)
	}
	attachBlockers(ts, edges)

	snap.seq = seq
	snap.tasks = ts
	snap.format = format
	return snap, nil
}

// save writes seq, then blockers, then tasks. If any write fails, the
// files already replaced are restored from the snapshot, so a mutation
// lands whole or not at all. A crash between files can leave an unused id
// or edges owned by a task that was never written; load drops those edges.
func (s *FileStore) save(snap *snapshot) error {
	files := []struct {
		name string
		data []byte
	}{
		{SeqFile, encodeSeq(snap.seq)},
		{BlockersFile, EncodeBlockers(snap.tasks)},
		{TasksFile, Encode(snap.tasks)},
	}
	var written []string
	for _, f := range files {
		if bytes.Equal(f.data, snap.raw[f.name]) {
			continue
		}
		if err := fsys.WriteAtomic(s.fs, s.path(f.name), f.data, 0o644); err != nil {
			if rbErr := s.rollback(snap, written); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return fmt.Errorf("saving %s: %w: %w", s.path(f.name), ErrWriteFailed, err)
		}
		written = append(written, f.name)
	}
	return nil
}

// rollback puts the named files back to their snapshot content, newest
// first. A file that did not exist before is removed.
func (s *FileStore) rollback(snap *snapshot, names []string) error {
	var errs []error
	for _, name := range slices.Backward(names) {
		var err error
		if snap.present[name] {
			err = fsys.WriteAtomic(s.fs, s.path(name), snap.raw[name], 0o644)
		} else {
			err = s.fs.Remove(s.path(name))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", s.path(name), err))
		}
	}
	return errors.Join(errs...)
}

func decodeSeq(data []byte) (int, error) {
	txt := strings.TrimSpace(string(data))
	if txt == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(txt)
	if err != nil || n < 0 {
		return 0, recordErr(1, ErrInvalidNumber, "high-water mark %q", txt)
	}
	return n, nil
}

func encodeSeq(seq int) []byte {
	return []byte(strconv.Itoa(seq) + "\n")
}
