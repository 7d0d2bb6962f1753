package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	blob := []byte("sealed signaling envelope")

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, blob))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestWriteFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteFrame(&buf, nil), ErrEmptyBlob)
}

func TestWriteFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxBlobSize+1))
	assert.ErrorIs(t, err, ErrBlobTooLarge)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	// Header claims a frame far over the limit; no body follows.
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := ReadFrame(buf)
	assert.ErrorIs(t, err, ErrBlobTooLarge)
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("full frame")))

	truncated := bytes.NewBuffer(buf.Bytes()[:buf.Len()-3])
	_, err := ReadFrame(truncated)
	assert.Error(t, err)
}
