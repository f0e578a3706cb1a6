// Package logger provides levelled logging on top of the standard log package.
package logger

import (
	"log"
	"strings"
	"sync/atomic"
)

// Level is a logging threshold.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var level atomic.Int32

func init() {
	level.Store(int32(LevelInfo))
}

// SetLevel sets the global threshold from "DEBUG", "INFO", "WARN" or "ERROR"
// (case-insensitive). Unknown values fall back to INFO.
func SetLevel(s string) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		level.Store(int32(LevelDebug))
	case "WARN", "WARNING":
		level.Store(int32(LevelWarn))
	case "ERROR":
		level.Store(int32(LevelError))
	case "INFO", "":
		level.Store(int32(LevelInfo))
	default:
		log.Printf("[WARN] unknown log level %q; using INFO", s)
		level.Store(int32(LevelInfo))
	}
}

// Enabled reports whether messages at l are currently written.
func Enabled(l Level) bool {
	return Level(level.Load()) <= l
}

func Debugf(format string, v ...any) {
	if Enabled(LevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Infof(format string, v ...any) {
	if Enabled(LevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warnf(format string, v ...any) {
	if Enabled(LevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Errorf(format string, v ...any) {
	if Enabled(LevelError) {
		log.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf logs and exits the process.
func Fatalf(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}
