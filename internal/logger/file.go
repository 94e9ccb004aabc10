package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds configuration for file-based log output with rotation.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept on disk.
	MaxFiles int
}

// NewFileWriter returns a size-rotated, gzip-compressed log file writer.
func NewFileWriter(cfg FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		LocalTime:  true,
		Compress:   true,
	}
}
