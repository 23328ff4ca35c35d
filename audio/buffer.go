package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrStreamFailed marks a file stream that ended with an error instead of EOF
var ErrStreamFailed = errors.New("audio stream failed")

const chunkSize = 32 * 1024

// Buffer is the fully received audio payload of one file part
type Buffer struct {
	data   []byte
	chunks int
}

// Read accumulates r chunk by chunk, in arrival order, until EOF. Any other
// error discards the partial data and is returned wrapped in ErrStreamFailed.
func Read(r io.Reader) (*Buffer, error) {
	var (
		buf    bytes.Buffer
		chunks int
		chunk  = make([]byte, chunkSize)
	)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			chunks++
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w after %d bytes: %v", ErrStreamFailed, buf.Len(), err)
		}
	}
	return &Buffer{data: buf.Bytes(), chunks: chunks}, nil
}

// Bytes returns the raw payload
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the payload size in bytes
func (b *Buffer) Len() int { return len(b.data) }

// Chunks returns how many reads delivered data
func (b *Buffer) Chunks() int { return b.chunks }

// Empty reports whether no audio bytes were received
func (b *Buffer) Empty() bool { return len(b.data) == 0 }

// Base64 returns the standard base64 encoding used on the recognition wire
func (b *Buffer) Base64() string {
	return base64.StdEncoding.EncodeToString(b.data)
}
