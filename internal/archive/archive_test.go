package archive

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = content
	}
	return out
}

func TestZipRoundTrip(t *testing.T) {
	z := NewZip(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, z.Add("compressed-a.jpg", []byte("first")))
	require.NoError(t, z.Add("b.png", bytes.Repeat([]byte{7}, 4096)))
	assert.Equal(t, 2, z.Len())

	data, err := z.Close()
	require.NoError(t, err)

	entries := readZip(t, data)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("first"), entries["compressed-a.jpg"])
	assert.Len(t, entries["b.png"], 4096)
}

func TestZipEmpty(t *testing.T) {
	data, err := NewZip(time.Now()).Close()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Empty(t, readZip(t, data))
}

func TestZipRejectsDuplicatesAndUseAfterClose(t *testing.T) {
	z := NewZip(time.Now())

	require.NoError(t, z.Add("a.png", []byte("x")))
	assert.ErrorIs(t, z.Add("a.png", []byte("y")), ErrDuplicateEntry)

	_, err := z.Close()
	require.NoError(t, err)

	assert.ErrorIs(t, z.Add("b.png", nil), ErrClosed)
	_, err = z.Close()
	assert.ErrorIs(t, err, ErrClosed)
}
