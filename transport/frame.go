package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxBlobSize bounds a single signaling frame. Sealed envelopes are a
// few hundred bytes; anything near this limit is garbage or abuse.
const MaxBlobSize = 64 * 1024

// frameHeaderSize is the length prefix in bytes.
const frameHeaderSize = 4

// ErrBlobTooLarge is returned for frames exceeding MaxBlobSize.
var ErrBlobTooLarge = errors.New("signaling blob exceeds maximum frame size")

// ErrEmptyBlob is returned when a zero-length frame is read or written.
var ErrEmptyBlob = errors.New("signaling blob is empty")

// WriteFrame writes one length-prefixed blob to w.
func WriteFrame(w io.Writer, blob []byte) error {
	if len(blob) == 0 {
		return ErrEmptyBlob
	}
	if len(blob) > MaxBlobSize {
		return fmt.Errorf("%w: %d bytes", ErrBlobTooLarge, len(blob))
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(blob)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(blob); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed blob from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyBlob
	}
	if size > MaxBlobSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlobTooLarge, size)
	}

	blob := make([]byte, size)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return blob, nil
}
