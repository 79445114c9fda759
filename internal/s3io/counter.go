package s3io

import (
	"io"
	"sync/atomic"
)

// ReadCounter counts the bytes read through it. Bytes is safe to call
// while another goroutine reads.
type ReadCounter struct {
	in    io.Reader
	reads atomic.Int64
	bytes atomic.Int64
}

func NewReadCounter(in io.Reader) *ReadCounter {
	return &ReadCounter{in: in}
}

func (rc *ReadCounter) Read(p []byte) (int, error) {
	size, err := rc.in.Read(p)
	rc.reads.Add(1)
	rc.bytes.Add(int64(size))
	return size, err
}

func (rc *ReadCounter) Reads() int64 {
	return rc.reads.Load()
}

func (rc *ReadCounter) Bytes() int64 {
	return rc.bytes.Load()
}
