package sse

import (
	"io"
)

const (
	DataPrefix = "data:"
	Done       = "[DONE]"
)

// Flusher is implemented by writers that can push buffered frames to the
// client, such as the HTTP stream writer.
type Flusher interface {
	Flush() error
}

// WriteData writes payload as a single "data: <payload>\n\n" frame and
// flushes dst when it supports flushing.
func WriteData(dst io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(DataPrefix)+len(payload)+3)
	frame = append(frame, DataPrefix...)
	frame = append(frame, ' ')
	frame = append(frame, payload...)
	frame = append(frame, Delimiter...)

	if _, err := dst.Write(frame); err != nil {
		return err
	}
	if f, ok := dst.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteDone writes the terminal "data: [DONE]" frame.
func WriteDone(dst io.Writer) error {
	return WriteData(dst, []byte(Done))
}
