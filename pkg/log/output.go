package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to standard output.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput creates a console output writing to stdout.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stdout}
}

// NewWriterOutput creates an output writing to an arbitrary writer.
// Useful for capturing logs in tests.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

// Write implements Output.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

// Close implements Output. Console outputs hold no resources.
func (o *ConsoleOutput) Close() error { return nil }

// FileOutput appends formatted entries to a file.
type FileOutput struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileOutput opens (or creates) the file at path for appending.
func NewFileOutput(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{f: f}, nil
}

// Write implements Output.
func (o *FileOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.f.Write(formatted)
	return err
}

// Close implements Output.
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.f.Close()
}
