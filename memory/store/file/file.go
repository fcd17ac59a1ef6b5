// Package file implements the durable conversation and document logs on local files.
//
// Both logs are append-only, one record per line. Every record is written with a
// single write on an O_APPEND file followed by fsync, so a record is either fully
// on disk or absent. A final line without a trailing newline is a torn write from a
// crash: it is ignored on load and cut off when the log is opened, so the next
// record starts on a fresh line.
package file

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// appendLine writes line plus a newline in one call and syncs the file.
func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat: %w", err)
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := f.Write(buf); err != nil {
		// Drop whatever part of the record made it to disk.
		_ = f.Truncate(info.Size())
		f.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync: %w", err)
	}
	return f.Close()
}

// readLines returns every complete, non-empty line of path.
// A missing file yields no lines.
func readLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	parts := bytes.Split(data, []byte{'\n'})
	if tail := parts[len(parts)-1]; len(tail) > 0 {
		log.Printf("[STORE] Ignoring torn final record in %s (%d bytes)", filepath.Base(path), len(tail))
	}
	parts = parts[:len(parts)-1]

	lines := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		lines = append(lines, p)
	}
	return lines, nil
}

// truncate empties path, creating it if needed.
func truncate(path string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync: %w", err)
	}
	return f.Close()
}

// ensureFile creates path and its directory when absent and cuts off a torn
// final record.
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return repairTail(path)
}

// repairTail truncates path to just after its last newline.
func repairTail(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}

	keep := bytes.LastIndexByte(data, '\n') + 1
	log.Printf("[STORE] Truncating torn final record in %s (%d bytes)", filepath.Base(path), len(data)-keep)

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if err := f.Truncate(int64(keep)); err != nil {
		f.Close()
		return fmt.Errorf("truncate: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync: %w", err)
	}
	return f.Close()
}
