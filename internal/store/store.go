// Package store implements the three durable tables a replica keeps: the
// account list, the logged-in session table, and the undelivered message
// queues. Each table pairs an in-memory structure with a plain-text log
// file; the file is the source of truth across restarts and the memory view
// is rebuilt from it on open.
//
// Mutations write the file first and update memory only on success, so a
// failed disk write leaves memory untouched and the caller can report the
// error without corrupting state.
//
// The stores embed their mutex instead of hiding it: request handlers must
// hold a store's lock across whole check-replicate-apply sequences, not just
// single calls, so the lock is part of the API. Every method below assumes
// the caller holds the lock.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// appendLine appends one record to a store log. Open-per-write keeps the
// file position honest after a rewrite replaced the file underneath.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// rewrite replaces a store log with the given records.
func rewrite(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to rewrite %s: %w", path, err)
	}
	return nil
}

// readLines loads a store log, skipping blank lines. A missing file is an
// empty store, not an error.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
