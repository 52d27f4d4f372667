//go:build !linux && !darwin

package logsink

import (
	"os"
	"time"
)

func createdAt(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
