package usecase

import (
	"errors"
	"io/fs"
	"os"

	"bytemomo/autopen/internal/config"
)

// StatusInfo is what `autopen status` reports.
type StatusInfo struct {
	Home      string
	OutExists bool
	Locked    bool
	Holder    *LockInfo // nil when unlocked or unreadable
}

// Status inspects the home directory without touching it.
func Status(paths config.Paths) StatusInfo {
	info := StatusInfo{Home: paths.Home}

	if st, err := os.Stat(paths.OutDir()); err == nil && st.IsDir() {
		info.OutExists = true
	}
	if _, err := os.Stat(paths.LockFile()); err == nil {
		info.Locked = true
		if holder, err := ReadLock(paths.LockFile()); err == nil {
			info.Holder = holder
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		info.Locked = true
	}
	return info
}
