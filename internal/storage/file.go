package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"campbot/pkg/logx"
)

const auditFileName = "audit.jsonl"

// fileStore keeps every collection in its own JSON file under one directory.
//
// Files:
//   - <dir>/<collection>.json  (replaced atomically on save)
//   - <dir>/audit.jsonl        (append-only JSON Lines)
type fileStore struct {
	dir string
	log logx.Logger

	mu    sync.Mutex
	audit *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(filepath.Join(dir, auditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("dir", dir))
	return &fileStore{dir: dir, log: log, audit: af}, nil
}

func (s *fileStore) collectionPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *fileStore) LoadCollection(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.collectionPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func (s *fileStore) SaveCollection(ctx context.Context, name string, body []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	return writeFileAtomic(s.collectionPath(name), body)
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, body []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	// persist the rename itself; not every platform supports syncing a directory
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(stamp(e))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	_, err = s.audit.Write(append(b, '\n'))
	return err
}

// PruneAudit rewrites the audit file without the old entries.
// Lines that do not decode are kept.
func (s *fileStore) PruneAudit(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return 0, ErrClosed
	}

	path := filepath.Join(s.dir, auditFileName)
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	var (
		kept    bytes.Buffer
		removed int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		var e AuditEntry
		if json.Unmarshal(line, &e) == nil && !e.At.IsZero() && e.At.Before(before) {
			removed++
			continue
		}
		kept.Write(line)
		kept.WriteByte('\n')
	}
	_ = f.Close()
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read audit: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.audit.Close(); err != nil {
		s.log.Warn("audit close failed", logx.Err(err))
	}
	s.audit = nil
	werr := writeFileAtomic(path, kept.Bytes())
	af, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, errors.Join(werr, err)
	}
	s.audit = af
	if werr != nil {
		return 0, werr
	}
	return removed, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return nil
	}
	err := s.audit.Close()
	s.audit = nil
	return err
}
