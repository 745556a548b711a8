package store

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectEncoderDecoderRoundTrip(t *testing.T) {
	payload := []byte("commit\x00tree deadbeef\nparent cafefeed\n")

	var buf bytes.Buffer
	zw := getObjectEncoder(&buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, putObjectEncoder(zw))

	zr, err := getObjectDecoder(&buf)
	require.NoError(t, err)
	defer putObjectDecoder(zr)

	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestObjectEncoderPoolReusedAcrossWrites(t *testing.T) {
	for range 8 {
		var buf bytes.Buffer
		zw := getObjectEncoder(&buf)
		_, err := zw.Write([]byte("blob\x00hello\n"))
		require.NoError(t, err)
		require.NoError(t, putObjectEncoder(zw))

		zr, err := getObjectDecoder(&buf)
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		putObjectDecoder(zr)
		require.NoError(t, err)
		assert.Equal(t, "blob\x00hello\n", string(got))
	}
}
