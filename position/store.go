package position

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultPath is the log file used when none is configured.
const DefaultPath = "motor_positions.jsonl"

// A Store persists position records.
type Store interface {
	// Append adds rec after every existing record.
	Append(rec Record) error

	// Latest returns the most recently appended record. ok is false
	// when nothing has been stored yet.
	Latest() (rec Record, ok bool, err error)
}

// FileStore is a Store backed by a JSON-lines file, one record per line.
//
// It assumes a single writer.
type FileStore struct {
	Path string
}

var _ Store = &FileStore{}

// NewFileStore returns a store writing to path, or DefaultPath if empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{Path: path}
}

func (s *FileStore) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.Path); dir != "." {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err != nil {
		f.Close()
		return fmt.Errorf("append '%s': %w", s.Path, err)
	}
	err = f.Sync()
	if err != nil {
		f.Close()
		return fmt.Errorf("sync '%s': %w", s.Path, err)
	}
	return f.Close()
}

func (s *FileStore) Latest() (Record, bool, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	defer f.Close()

	last, err := lastLine(f)
	if err != nil {
		return Record{}, false, fmt.Errorf("read '%s': %w", s.Path, err)
	}
	if last == nil {
		return Record{}, false, nil
	}

	var rec Record
	err = json.Unmarshal(last, &rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, s.Path, err)
	}
	return rec, true, nil
}

// lastLine returns the last non-blank line of r, or nil if there is none.
func lastLine(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var last []byte
	for {
		ln, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(ln); len(trimmed) > 0 {
			last = trimmed
		}
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
