package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stablePool/internal/model"
)

// JsonlStorage writes JSON lines to a file. The file is opened on first
// write, truncated unless appendMode is set, and kept open until Close.
type JsonlStorage struct {
	path       string
	appendMode bool

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewJsonlStorage(path string, appendMode bool) *JsonlStorage {
	return &JsonlStorage{path: path, appendMode: appendMode}
}

// PutLogBatch appends a batch of log records.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range logs {
		if err := s.writeLocked(record); err != nil {
			return err
		}
	}
	return s.flushLocked()
}

// Record appends one pool event.
func (s *JsonlStorage) Record(event model.PoolEvent) error {
	return s.Write(event)
}

// Write appends any JSON-serialisable value as one line.
func (s *JsonlStorage) Write(value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(value); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *JsonlStorage) writeLocked(value interface{}) error {
	if s.writer == nil {
		if err := s.openLocked(); err != nil {
			return err
		}
	}
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (s *JsonlStorage) openLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY
	if s.appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	s.file = file
	s.writer = bufio.NewWriter(file)
	return nil
}

func (s *JsonlStorage) flushLocked() error {
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes and closes the file. It is safe to call on a storage that
// never wrote.
func (s *JsonlStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file, s.writer = nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	return closeErr
}

// ReadJSONL streams path line by line, skipping blank lines. fn receives the
// 1-based line number and the raw line; returning an error stops the scan.
func ReadJSONL(path string, fn func(line int, raw []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
