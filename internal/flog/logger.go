// Package flog provides the leveled logger shared by every fastd-core
// component, modeled on wireguard-go's device.Logger: a small struct of
// function values rather than an interface, so call sites read as plain
// function calls (log.Verbosef(...)) and tests can swap in a silent logger
// cheaply.
package flog

import (
	"fmt"
	"log/slog"
	"os"
)

// Level selects which of Verbosef/Errorf actually emit output.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelVerbose
)

// ParseLevel maps the config/CLI string form onto a Level.
func ParseLevel(s string) Level {
	switch s {
	case "verbose", "debug":
		return LevelVerbose
	case "error":
		return LevelError
	case "silent", "":
		return LevelSilent
	default:
		return LevelVerbose
	}
}

// Logger is a pair of logging functions bound to a level and a component
// tag. The zero value discards everything.
type Logger struct {
	Verbosef func(format string, args ...any)
	Errorf   func(format string, args ...any)
}

// New builds a Logger backed by slog, tagging every line with component.
func New(level Level, component string) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler).With(slog.String("component", component))

	logger := new(Logger)

	if level >= LevelVerbose {
		logger.Verbosef = func(format string, args ...any) {
			base.Debug(sprintf(format, args...))
		}
	} else {
		logger.Verbosef = func(string, ...any) {}
	}

	if level >= LevelError {
		logger.Errorf = func(format string, args ...any) {
			base.Error(sprintf(format, args...))
		}
	} else {
		logger.Errorf = func(string, ...any) {}
	}

	return logger
}

// Silent discards everything; useful as a test default.
func Silent() *Logger {
	return &Logger{
		Verbosef: func(string, ...any) {},
		Errorf:   func(string, ...any) {},
	}
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
