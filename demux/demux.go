// Package demux splits a streaming multipart/form-data body into named text
// fields and named file streams.
//
// File parts are handed to the consumer through an io.Pipe, so the consumer
// reads them while the body is still being parsed. Run returning means every
// part has been delimited, not that every consumer has finished with its bytes.
package demux

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

const defaultMaxFieldBytes = 1 << 20

var (
	// ErrMalformed is returned for a body that is not valid multipart/form-data.
	ErrMalformed = errors.New("malformed multipart body")
	// ErrTooLarge is returned once the body exceeds the configured limit.
	ErrTooLarge = errors.New("multipart body exceeds size limit")
	// ErrFileStream is returned when a file part ends before its boundary.
	ErrFileStream = errors.New("file stream interrupted")
)

// FilePart is one file part offered to the Sink
type FilePart struct {
	Field    string
	Filename string
	Body     io.ReadCloser
}

// Sink receives parts in wire order.
//
// OnFile reports whether the consumer takes the part. An accepted Body must be
// read until EOF or closed, or Run blocks. A declined part is discarded.
type Sink interface {
	OnField(name, value string)
	OnFile(part FilePart) bool
}

// Reader demultiplexes one request body
type Reader struct {
	mr            *multipart.Reader
	body          *limitReader
	maxFieldBytes int64
}

// NewReader validates contentType and prepares to parse body. maxBytes <= 0
// disables the size limit.
func NewReader(body io.Reader, contentType string, maxBytes int64) (*Reader, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !strings.EqualFold(mediaType, "multipart/form-data") {
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrMalformed, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: missing boundary", ErrMalformed)
	}

	lr := &limitReader{r: body, remaining: maxBytes, unlimited: maxBytes <= 0}
	return &Reader{
		mr:            multipart.NewReader(lr, boundary),
		body:          lr,
		maxFieldBytes: defaultMaxFieldBytes,
	}, nil
}

// Run parses every part and feeds it to sink. It returns nil once the closing
// boundary has been read.
func (r *Reader) Run(sink Sink) error {
	for {
		part, err := r.mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return r.classify(ErrMalformed, err)
		}

		name := part.FormName()
		if name == "" {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return r.classify(ErrMalformed, err)
			}
			continue
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, r.maxFieldBytes+1))
			if err != nil {
				return r.classify(ErrMalformed, err)
			}
			if int64(len(value)) > r.maxFieldBytes {
				return fmt.Errorf("%w: field %q larger than %d bytes", ErrMalformed, name, r.maxFieldBytes)
			}
			sink.OnField(name, string(value))
			continue
		}

		if err := r.file(part, name, sink); err != nil {
			return err
		}
	}
}

func (r *Reader) file(part *multipart.Part, name string, sink Sink) error {
	pr, pw := io.Pipe()
	accepted := sink.OnFile(FilePart{Field: name, Filename: part.FileName(), Body: pr})
	if !accepted {
		pr.Close()
		if _, err := io.Copy(io.Discard, part); err != nil {
			return r.classify(ErrFileStream, err)
		}
		return nil
	}

	_, err := io.Copy(pw, part)
	switch {
	case err == nil:
		pw.Close()
		return nil
	case errors.Is(err, io.ErrClosedPipe):
		// The consumer gave up early; it reports its own failure.
		if _, err := io.Copy(io.Discard, part); err != nil {
			return r.classify(ErrFileStream, err)
		}
		return nil
	default:
		cause := r.classify(ErrFileStream, err)
		pw.CloseWithError(cause)
		return cause
	}
}

func (r *Reader) classify(kind, err error) error {
	if r.body.exceeded {
		return ErrTooLarge
	}
	return fmt.Errorf("%w: %v", kind, err)
}

type limitReader struct {
	r         io.Reader
	remaining int64
	unlimited bool
	exceeded  bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.unlimited {
		return l.r.Read(p)
	}
	if l.remaining <= 0 {
		// A body of exactly the limit is fine; only real extra bytes trip it.
		var peek [1]byte
		n, err := l.r.Read(peek[:])
		if n == 0 {
			return 0, err
		}
		l.exceeded = true
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
