package irc

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"sync"
)

// Framer turns a byte stream into protocol lines and back.
//
// Inbound lines are returned with their CRLF (or bare LF) stripped; a final
// line without a terminator is still returned before io.EOF. Outbound lines
// get CRLF appended and are flushed immediately. Every line in either
// direction is passed to the trace func when one is set.
type Framer struct {
	reader *textproto.Reader

	writeLock sync.Mutex
	writer    *bufio.Writer

	trace func(direction, line string)
}

// Trace directions
const (
	Inbound  = "<="
	Outbound = "=>"
)

// NewFramer wraps rw. trace may be nil.
func NewFramer(rw io.ReadWriter, trace func(direction, line string)) *Framer {
	return &Framer{
		reader: textproto.NewReader(bufio.NewReader(rw)),
		writer: bufio.NewWriter(rw),
		trace:  trace,
	}
}

// ReadLine returns the next inbound line. Read errors, including io.EOF,
// are returned unchanged.
func (f *Framer) ReadLine() (string, error) {
	line, err := f.reader.ReadLine()
	if err != nil {
		return "", err
	}
	if f.trace != nil {
		f.trace(Inbound, line)
	}
	return line, nil
}

// WriteLine writes line followed by CRLF and flushes. Safe for concurrent
// use; outbound traces are in wire order.
func (f *Framer) WriteLine(line string) error {
	f.writeLock.Lock()
	defer f.writeLock.Unlock()

	if f.trace != nil {
		f.trace(Outbound, line)
	}

	if _, err := f.writer.WriteString(line + "\r\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
