// Package wire implements the request/response protocol spoken between
// the server and its clients: length-prefixed frames over a stream
// socket, carrying tagged messages encoded in msgpack with a JSON
// fallback on decode.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single payload. A frame announcing more is a
// protocol violation and terminates the connection.
const MaxFrameSize = 1 << 20

// ReadFrame reads one length-prefixed payload: a 4-byte big-endian
// unsigned length followed by that many bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload with its 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
