package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live server owns the file.
var ErrAlreadyRunning = errors.New("server already running")

// Record is what a running server leaves in its PID file.
type Record struct {
	PID     int
	Addr    string
	Started time.Time
}

// PIDFile tracks the background API server.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process serving on addr.
func (p *PIDFile) Write(addr string) error {
	return p.WriteRecord(Record{PID: os.Getpid(), Addr: addr, Started: time.Now()})
}

// WriteRecord writes r as three lines: pid, listen address, start time.
func (p *PIDFile) WriteRecord(r Record) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	content := fmt.Sprintf("%d\n%s\n%d\n", r.PID, r.Addr, r.Started.Unix())
	return os.WriteFile(p.Path, []byte(content), 0o644)
}

// Read parses the PID file. Files holding only a PID are accepted.
func (p *PIDFile) Read() (*Record, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}
	r := &Record{PID: pid}
	if len(lines) > 1 {
		r.Addr = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		if sec, err := strconv.ParseInt(strings.TrimSpace(lines[2]), 10, 64); err == nil {
			r.Started = time.Unix(sec, 0)
		}
	}
	return r, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire claims the PID file for this process. A file left behind by a
// dead process is overwritten.
func (p *PIDFile) Acquire(addr string) error {
	if r, running := p.IsRunning(); running && r.PID != os.Getpid() {
		return fmt.Errorf("%w (pid %d on %s)", ErrAlreadyRunning, r.PID, r.Addr)
	}
	return p.Write(addr)
}

// Release removes the PID file if this process owns it.
func (p *PIDFile) Release() error {
	r, err := p.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if r.PID != os.Getpid() {
		return nil
	}
	if err := p.Remove(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stop sends SIGTERM to the recorded server and waits for it to exit.
func (p *PIDFile) Stop(ctx context.Context) (*Record, error) {
	r, running := p.IsRunning()
	if !running {
		return r, errors.New("server is not running")
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return r, fmt.Errorf("signal pid %d: %w", r.PID, err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return r, fmt.Errorf("pid %d still running: %w", r.PID, ctx.Err())
		case <-ticker.C:
			if _, alive := p.IsRunning(); !alive {
				_ = p.Remove()
				return r, nil
			}
		}
	}
}
