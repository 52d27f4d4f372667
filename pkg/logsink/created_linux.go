//go:build linux

package logsink

import (
	"os"
	"syscall"
	"time"
)

// createdAt approximates creation time with the inode change time
func createdAt(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return fi.ModTime()
}
