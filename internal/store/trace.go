package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry records one replayed instruction. Each entry is serialized as
// a JSON line in trace.jsonl.
type TraceEntry struct {
	// Step is the position of the instruction in the recipe
	Step int `json:"step"`

	// Op is the instruction's operation
	Op string `json:"op"`

	// Cost is the objective value after the instruction
	Cost float64 `json:"cost"`

	// Free is the number of parameters the stage optimized
	Free int `json:"free"`

	Timestamp time.Time `json:"timestamp"`

	// Params are the free parameter values after a PSO stage, keyed
	// "<category>/<index>/<name>" (optional)
	Params map[string]float64 `json:"params,omitempty"`
}

const traceFile = "trace.jsonl"

func tracePath(baseDir, id string) string {
	return filepath.Join(recipeDir(baseDir, id), traceFile)
}

// TraceWriter appends replay entries to a recipe's trace.jsonl. Writes are
// buffered until Flush or Close; it is safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewTraceWriter opens <baseDir>/recipes/<id>/trace.jsonl, truncating it
// unless appendMode is set.
func NewTraceWriter(baseDir, id string, appendMode bool) (*TraceWriter, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(recipeDir(baseDir, id), 0755); err != nil {
		return nil, fmt.Errorf("trace %s: %w", id, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	path := tracePath(baseDir, id)
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", id, err)
	}

	buf := bufio.NewWriter(file)
	return &TraceWriter{file: file, buf: buf, enc: json.NewEncoder(buf), path: path}, nil
}

// Write buffers one entry as a JSON line.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("trace step %d: %w", entry.Step, err)
	}
	return nil
}

// Flush pushes buffered entries to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.flushLocked()
}

func (tw *TraceWriter) flushLocked() error {
	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", tw.path, err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tw.path, err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.flushLocked()
	if err := tw.file.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("close %s: %w", tw.path, err)
	}
	return flushErr
}

// Path is the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader decodes entries from a recipe's trace.jsonl in order.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
	line int
}

// NewTraceReader opens the trace of the recipe with the given id. A recipe
// that was never replayed yields a NotFoundError.
func NewTraceReader(baseDir, id string) (*TraceReader, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	file, err := os.Open(tracePath(baseDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", id, err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("trace entry %d: %w", tr.line+1, err)
	}
	tr.line++
	return &entry, nil
}

// ReadAll returns the remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

func (tr *TraceReader) Close() error {
	return tr.file.Close()
}

// DeleteTrace removes a recipe's trace; a missing trace is not an error.
func DeleteTrace(baseDir, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(tracePath(baseDir, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete trace %s: %w", id, err)
	}
	return nil
}
