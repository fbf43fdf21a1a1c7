package notelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"notithing/internal/note"
	logx "notithing/pkg/logx"
)

// fileStore writes lines like
//
//	2024-03-01 12:00:00 :: 1a2b3c4d ! :: -- summary
//	2024-03-01 12:00:00 :: 1a2b3c4d ! ::    body line
//
// The file is reopened when it was moved away (inode change) and rotated to
// <path>.1 .. <path>.N once it grows past MaxSize.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	path    string
	backups int
	maxSize int64

	f   *os.File
	dev uint64
	ino uint64
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, err
	}
	s := &fileStore{
		log:     log,
		path:    cfg.Path,
		backups: max(0, cfg.Backups),
		maxSize: max(0, cfg.MaxSize),
	}
	if s.maxSize == 0 {
		s.maxSize = 1 << 20
	}
	if err := s.reopen(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) reopen() error {
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		_ = f.Close()
		return err
	}
	s.f, s.dev, s.ino = f, uint64(st.Dev), uint64(st.Ino)
	return nil
}

func (s *fileStore) rotate() error {
	for n := s.backups - 1; n > 0; n-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", s.path, n), fmt.Sprintf("%s.%d", s.path, n+1))
	}
	return os.Rename(s.path, s.path+".1")
}

func (s *fileStore) stream() (*os.File, error) {
	reopen := s.f == nil
	var st unix.Stat_t
	exists := unix.Stat(s.path, &st) == nil
	if !exists || uint64(st.Dev) != s.dev || uint64(st.Ino) != s.ino {
		reopen = true
	}
	if exists && s.backups > 0 && st.Size >= s.maxSize {
		if err := s.rotate(); err != nil {
			return nil, fmt.Errorf("rotate %s: %w", s.path, err)
		}
		reopen = true
	}
	if reopen {
		if err := s.reopen(); err != nil {
			return nil, err
		}
	}
	return s.f, nil
}

func urgencyMark(u note.Urgency) string {
	switch u {
	case note.UrgencyCritical:
		return "!"
	case note.UrgencyLow:
		return "."
	default:
		return " "
	}
}

func formatEntry(e Entry) string {
	prefix := fmt.Sprintf("%s :: %s %s ::", e.At.Local().Format(time.DateTime), e.UID, urgencyMark(e.Urgency))
	var sb strings.Builder
	sb.WriteString(prefix + " -- " + e.Summary + "\n")
	if e.Body != "" {
		for _, line := range strings.Split(e.Body, "\n") {
			sb.WriteString(prefix + "    " + line + "\n")
		}
	}
	return sb.String()
}

func (s *fileStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.stream()
	if err != nil {
		return err
	}
	_, err = f.WriteString(formatEntry(e))
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
