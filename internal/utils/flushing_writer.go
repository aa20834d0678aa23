package utils

import "io"

type flushableWriter interface {
	Flush() error
}

type flushingWriter struct {
	delegate io.Writer
}

// NewFlushingWriter wraps the provided writer so every write is flushed
// immediately when the underlying writer supports flushing.
func NewFlushingWriter(delegate io.Writer) io.Writer {
	return &flushingWriter{delegate: delegate}
}

func (writer *flushingWriter) Write(data []byte) (int, error) {
	bytesWritten, writeError := writer.delegate.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	if flusher, flushSupported := writer.delegate.(flushableWriter); flushSupported {
		if flushError := flusher.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}
	return bytesWritten, nil
}
