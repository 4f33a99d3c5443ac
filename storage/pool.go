package storage

import (
	"bytes"
	"sync"
)

// Serialization buffers are pooled: Document.Serialize takes its encoder's
// scratch space from here and returns it afterwards.
var defaultBufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer gets a buffer from the pool
func GetBuffer() *bytes.Buffer {
	return defaultBufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	buf.Reset()
	defaultBufferPool.Put(buf)
}
