package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a capture file. A new file starts with a
// FileHeader; an existing one must carry a header this package can read.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	enc     *cbor.Encoder
	header  FileHeader
	written int
	err     error
	closed  bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &FileLogger{file: f, enc: encMode.NewEncoder(f)}
	if info.Size() == 0 {
		l.header = newFileHeader()
		err = l.enc.Encode(l.header)
	} else {
		l.header, err = readHeader(decMode.NewDecoder(f))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture file %s: %w", path, err)
	}
	return l, nil
}

// Header returns the header of the underlying file.
func (l *FileLogger) Header() FileHeader { return l.header }

// Log appends event. Events logged after Close are dropped. The first
// write error is kept and returned by Close.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.err != nil {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.err = err
		return
	}
	l.written++
}

// Written returns the number of events appended by this logger.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close closes the file. It is safe to call more than once.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Close(); err != nil {
		return err
	}
	return l.err
}

var _ Logger = (*FileLogger)(nil)
