package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

// Token is the on-disk run token: the owning PID and the acquisition time.
// Format is "pid,unix_seconds" with fractional seconds, one line.
type Token struct {
	PID      int
	Acquired time.Time
}

func (t Token) String() string {
	return fmt.Sprintf("%d,%.6f", t.PID, float64(t.Acquired.UnixMicro())/1e6)
}

// ConflictError reports a live collector already owning the directory. The
// caller must exit without touching the other instance's lock file.
type ConflictError struct {
	Other Token
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("another collector is running on PID %d (started %s)",
		e.Other.PID, e.Other.Acquired.Format(time.RFC3339))
}

// Lock guards a collector working directory against concurrent instances via
// a token file. The filesystem is the coordination medium: no in-process
// state survives a crash, so Acquire must judge whether a leftover token
// still belongs to a live run.
type Lock struct {
	path  string
	dir   string // working directory the token protects
	owned bool

	// probes, replaceable in tests
	bootTime func() (time.Time, error)
	procCwd  func(pid int) (string, bool, error)
	now      func() time.Time
}

// New creates a Lock for the token file at path, protecting dir.
func New(path, dir string) *Lock {
	return &Lock{
		path:     path,
		dir:      dir,
		bootTime: hostBootTime,
		procCwd:  processCwd,
		now:      time.Now,
	}
}

// Acquire takes ownership of the directory. A leftover token that is judged
// stale is removed and acquisition retried once. A live token yields a
// *ConflictError; any read/write failure is returned as-is and the caller
// must abort before mutating data.
func (l *Lock) Acquire() error {
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := ReadToken(l.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return l.write()
		case err != nil:
			return fmt.Errorf("read lock %s: %w", l.path, err)
		}
		stale, err := l.stale(tok)
		if err != nil {
			return fmt.Errorf("check lock %s: %w", l.path, err)
		}
		if !stale {
			return &ConflictError{Other: tok}
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock %s: %w", l.path, err)
		}
	}
	return fmt.Errorf("lock %s: still present after stale removal", l.path)
}

// Release removes the token. It is a no-op unless this process owns it, so a
// Conflict caller can never delete the other instance's lock.
func (l *Lock) Release() error {
	if !l.owned {
		return nil
	}
	l.owned = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Owned reports whether this process currently holds the lock.
func (l *Lock) Owned() bool { return l.owned }

func (l *Lock) write() error {
	tok := Token{PID: os.Getpid(), Acquired: l.now()}
	if err := os.WriteFile(l.path, []byte(tok.String()), 0o600); err != nil {
		return fmt.Errorf("write lock %s: %w", l.path, err)
	}
	l.owned = true
	return nil
}

// stale applies the three-part heuristic: the machine rebooted after the
// token was written, the recorded PID is gone, or the PID now belongs to a
// process running in a different directory (PID recycled). This is a
// heuristic, not a proof; a recycled PID running in the same directory is
// indistinguishable from a live collector.
func (l *Lock) stale(tok Token) (bool, error) {
	if bt, err := l.bootTime(); err == nil && bt.After(tok.Acquired) {
		return true, nil
	}
	cwd, running, err := l.procCwd(tok.PID)
	if err != nil {
		return false, err
	}
	if !running {
		return true, nil
	}
	if cwd == "" {
		// Alive but cwd unreadable (permissions). Assume it is the real owner.
		return false, nil
	}
	same, err := sameDir(cwd, l.dir)
	if err != nil {
		return false, err
	}
	return !same, nil
}

// ReadToken parses a token file.
func ReadToken(path string) (Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Token{}, err
	}
	pidStr, tsStr, ok := strings.Cut(strings.TrimSpace(string(b)), ",")
	if !ok {
		return Token{}, fmt.Errorf("malformed lock token %q", string(b))
	}
	pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
	if err != nil {
		return Token{}, fmt.Errorf("invalid pid in lock token: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(tsStr), 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid timestamp in lock token: %w", err)
	}
	return Token{PID: pid, Acquired: time.UnixMicro(int64(secs * 1e6))}, nil
}

func hostBootTime() (time.Time, error) {
	secs, err := host.BootTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

func sameDir(a, b string) (bool, error) {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		return false, err
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		return false, err
	}
	return ra == rb, nil
}
