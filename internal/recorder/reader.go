package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"main/internal/schema"
)

var ErrChecksumMismatch = errors.New("wal checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes WAL frames sequentially. It reuses one payload buffer, so
// the slice returned by Next is valid only until the following call.
type Reader struct {
	src  *bufio.Reader
	opts ReaderOptions
	head []byte
	body []byte
}

// NewReader wraps an io.Reader with WAL frame decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		src:  bufio.NewReader(r),
		opts: opts,
		head: make([]byte, frameHeadLen),
	}
}

// Next returns the next record's event header and payload. A clean end of
// stream is io.EOF; a frame cut short mid-record surfaces as
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	n, err := io.ReadFull(r.src, r.head)
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.EventHeader{}, nil, io.EOF
		}
		return schema.EventHeader{}, nil, err
	}

	header, payloadLen, err := parseFrameHead(r.head)
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && payloadLen > uint32(r.opts.MaxPayloadSize) {
		return header, nil, ErrPayloadTooLarge
	}

	// Payload and trailing checksum are read as one chunk.
	want := int(payloadLen) + frameCRCLen
	if cap(r.body) < want {
		r.body = make([]byte, want)
	}
	r.body = r.body[:want]
	if _, err := io.ReadFull(r.src, r.body); err != nil {
		return header, nil, err
	}
	payload := r.body[:payloadLen]

	if !r.opts.DisableChecksum {
		stored := binary.LittleEndian.Uint32(r.body[payloadLen:])
		if frameCRC(r.head, payload) != stored {
			return header, nil, ErrChecksumMismatch
		}
	}
	return header, payload, nil
}
