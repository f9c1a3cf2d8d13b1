package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when another run holds the output directory.
var ErrLocked = errors.New("another run is in progress")

// LockInfo is the content of out/.run.lock.
type LockInfo struct {
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	PID       int    `json:"pid"`
}

// RunLock is a held run lock.
type RunLock struct {
	Path string
	Info LockInfo
}

// AcquireLock creates the lock file exclusively.
func AcquireLock(path, runID string, now time.Time) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		if holder, rerr := ReadLock(path); rerr == nil && holder.RunID != "" {
			return nil, fmt.Errorf("%w: %s held by run %s", ErrLocked, path, holder.RunID)
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}
	defer f.Close()

	info := LockInfo{
		RunID:     runID,
		CreatedAt: now.UTC().Format(time.RFC3339),
		PID:       os.Getpid(),
	}
	data, _ := json.MarshalIndent(info, "", "  ")
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock: %w", err)
	}
	return &RunLock{Path: path, Info: info}, nil
}

// Release removes the lock file. Releasing twice is harmless.
func (l *RunLock) Release() error {
	if err := os.Remove(l.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadLock returns the holder recorded in a lock file.
func ReadLock(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock %s: %w", path, err)
	}
	return &info, nil
}

// RemoveLock deletes a lock left by another process. It reports whether a
// lock existed.
func RemoveLock(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
