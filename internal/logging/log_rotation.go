package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogRotation renames an oversized or stale log file aside before it is reopened.
type LogRotation struct {
	maxSize int64
	maxAge  time.Duration
	now     func() time.Time
}

func NewLogRotation(maxSize int64, maxAge time.Duration) *LogRotation {
	return &LogRotation{
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (lr *LogRotation) ShouldRotate(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}

	if lr.maxSize > 0 && info.Size() >= lr.maxSize {
		return true
	}

	return lr.maxAge > 0 && lr.now().Sub(info.ModTime()) >= lr.maxAge
}

func (lr *LogRotation) Rotate(path string) (string, error) {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	newPath := fmt.Sprintf("%s-%s%s", base, lr.now().Format("20060102-150405"), ext)

	if err := os.Rename(path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}
