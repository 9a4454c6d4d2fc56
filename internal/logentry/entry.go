// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logentry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stack identifies the side of the application that produced an entry.
type Stack string

const (
	StackFrontend Stack = "frontend"
	StackBackend  Stack = "backend"
)

// Level is the severity of an entry.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

var (
	ErrInvalidStack = errors.New("invalid stack")
	ErrInvalidLevel = errors.New("invalid level")

	// Stacks lists the accepted stack values.
	Stacks = []Stack{StackFrontend, StackBackend}
	// Levels lists the accepted level values, from the most to the least severe.
	Levels = []Level{LevelError, LevelWarn, LevelInfo, LevelDebug}
)

// ParseStack normalizes value and checks that it is a known stack.
func ParseStack(value string) (Stack, error) {
	stack := Stack(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Stacks {
		if stack == known {
			return stack, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStack, value)
}

// ParseLevel normalizes value and checks that it is a known level.
func ParseLevel(value string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Levels {
		if level == known {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, value)
}

// LogEntry is one observation to be shipped to the remote collector.
type LogEntry struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Stack     Stack     `json:"stack" yaml:"stack"`
	Level     Level     `json:"level" yaml:"level"`
	Package   string    `json:"package" yaml:"package"`
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// New builds an entry stamped with now. Stack, level and package are lower-cased,
// the message is kept as is.
func New(stack Stack, level Level, packageTag, message string, now time.Time) LogEntry {
	return LogEntry{
		ID:        uuid.NewString(),
		Stack:     Stack(strings.ToLower(string(stack))),
		Level:     Level(strings.ToLower(string(level))),
		Package:   strings.ToLower(packageTag),
		Message:   message,
		Timestamp: now.UTC(),
	}
}

// Payload is the body sent to the collector. Timestamp and id never leave the process.
type Payload struct {
	Stack   Stack  `json:"stack"`
	Level   Level  `json:"level"`
	Package string `json:"package"`
	Message string `json:"message"`
}

// Payload returns the wire representation of the entry.
func (e LogEntry) Payload() Payload {
	return Payload{
		Stack:   e.Stack,
		Level:   e.Level,
		Package: e.Package,
		Message: e.Message,
	}
}

// FailedRecord is a delivery attempt that did not succeed.
type FailedRecord struct {
	LogEntry LogEntry  `json:"logEntry" yaml:"logEntry"`
	Error    string    `json:"error" yaml:"error"`
	FailedAt time.Time `json:"failedAt" yaml:"failedAt"`
	Attempts int       `json:"attempts" yaml:"attempts"`
}

// NewFailedRecord records the first failed attempt of entry.
func NewFailedRecord(entry LogEntry, err error, now time.Time) FailedRecord {
	return FailedRecord{
		LogEntry: entry,
		Error:    errorMessage(err),
		FailedAt: now.UTC(),
		Attempts: 1,
	}
}

// Retried returns a copy of r updated after another failed attempt.
func (r FailedRecord) Retried(err error, now time.Time) FailedRecord {
	r.Error = errorMessage(err)
	r.FailedAt = now.UTC()
	r.Attempts++
	return r
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
