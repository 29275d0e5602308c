package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// TrailerFlag marks a frame whose payload carries ASCII status headers
// instead of a message.
const TrailerFlag = 0x80

// frameHeaderLen is the flags byte plus the big-endian u32 length.
const frameHeaderLen = 5

// Frame is one length-prefixed envelope from the streaming transport.
type Frame struct {
	Flags   byte
	Payload []byte
}

// IsTrailer reports whether the frame carries trailer headers.
func (f *Frame) IsTrailer() bool {
	return f.Flags&TrailerFlag != 0
}

// EncodeFrame wraps payload in a data frame: [0x00, be_u32(len)] ++ payload.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[1:frameHeaderLen], uint32(len(payload)))
	copy(out[frameHeaderLen:], payload)
	return out
}

// FrameReader incrementally extracts frames from a byte stream. Bytes are
// buffered until a whole frame is available; leftovers stay in the buffer
// for the next call, so arbitrary stream splits parse identically.
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader wraps the streaming HTTP body.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Feed appends raw bytes to the internal buffer. It is used when the caller
// pumps the stream itself instead of handing over an io.Reader.
func (fr *FrameReader) Feed(data []byte) {
	fr.buf = append(fr.buf, data...)
}

// Pop returns the next buffered frame, or nil when the buffer does not yet
// hold a complete one.
func (fr *FrameReader) Pop() *Frame {
	if len(fr.buf) < frameHeaderLen {
		return nil
	}
	length := binary.BigEndian.Uint32(fr.buf[1:frameHeaderLen])
	if uint64(len(fr.buf)) < frameHeaderLen+uint64(length) {
		return nil
	}
	// The payload is always non-nil, so empty frames compare equal to
	// the empty slices callers build.
	payload := make([]byte, length)
	copy(payload, fr.buf[frameHeaderLen:])
	frame := &Frame{Flags: fr.buf[0], Payload: payload}
	fr.buf = fr.buf[frameHeaderLen+length:]
	return frame
}

// Next blocks until one whole frame has been read from the underlying
// reader. It returns io.EOF once the stream ends cleanly between frames.
func (fr *FrameReader) Next() (*Frame, error) {
	chunk := make([]byte, 4096)
	for {
		if frame := fr.Pop(); frame != nil {
			return frame, nil
		}
		n, err := fr.r.Read(chunk)
		if n > 0 {
			fr.Feed(chunk[:n])
			continue
		}
		if err != nil {
			if err == io.EOF && len(fr.buf) > 0 {
				return nil, fmt.Errorf("wire: stream ended mid-frame with %d trailing bytes", len(fr.buf))
			}
			return nil, err
		}
	}
}

// StatusError is a non-zero grpc-status delivered in a trailer frame. Any
// such status aborts the session.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stream closed with grpc-status %d", e.Code)
	}
	return e.Message
}

// ParseTrailer parses the \r\n-separated ASCII headers of a trailer frame
// and returns a StatusError when grpc-status is present and non-zero. The
// error message is URL-decoded from grpc-message.
func ParseTrailer(payload []byte) error {
	status := 0
	message := ""
	for _, line := range strings.Split(string(payload), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "grpc-status":
			if n, err := strconv.Atoi(value); err == nil {
				status = n
			}
		case "grpc-message":
			if decoded, err := url.QueryUnescape(value); err == nil {
				message = decoded
			} else {
				message = value
			}
		}
	}
	if status != 0 {
		return &StatusError{Code: status, Message: message}
	}
	return nil
}
