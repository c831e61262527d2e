package nativeimg

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestClassifySource(t *testing.T) {
	k, err := ClassifySource("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, SourcePath, k)

	k, err = ClassifySource([]byte{1})
	require.NoError(t, err)
	assert.Equal(t, SourceBytes, k)

	k, err = ClassifySource(strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, SourceReader, k)

	var nilReader *bytes.Reader
	_, err = ClassifySource(nilReader)
	assert.Equal(t, ErrUnsupportedInput, err)

	_, err = ClassifySource(42)
	assert.Equal(t, ErrUnsupportedInput, err)
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	b, err := ReadSource("pil", path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	b, err = ReadSource("pil", strings.NewReader("stream"))
	require.NoError(t, err)
	assert.Equal(t, "stream", string(b))

	_, err = ReadSource("pil", filepath.Join(dir, "missing.jpg"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = ReadSource("pil", dir)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = ReadSource("pil", []byte{})
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = ReadSource("pil", 3.14)
	assert.True(t, errors.Is(err, ErrUnsupportedInput))
}

func TestOpenSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	r, closer, err := OpenSource("vips", path)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	assert.NoError(t, closer())

	_, _, err = OpenSource("vips", []byte(nil))
	assert.True(t, errors.Is(err, ErrDecode))

	_, _, err = OpenSource("vips", filepath.Join(dir, "nope"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWriteDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")

	require.NoError(t, WriteBlob("pil", path, []byte("abc")))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	var buf bytes.Buffer
	require.NoError(t, WriteBlob("pil", &buf, []byte("xyz")))
	assert.Equal(t, "xyz", buf.String())

	err = WriteBlob("pil", failingWriter{}, []byte("xyz"))
	assert.True(t, errors.Is(err, ErrWrite))

	err = WriteBlob("pil", filepath.Join(dir, "no", "such", "dir.jpg"), []byte("x"))
	assert.True(t, errors.Is(err, ErrWrite))

	err = WriteBlob("pil", 12, []byte("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedInput))
}

func TestWriteDestinationRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")

	encodeErr := NewError(ErrWrite, "pil", "save", errors.New("encoder gave up"))
	err := WriteDestination("pil", path, func(w io.Writer) error {
		w.Write([]byte("half an image"))
		return encodeErr
	})
	assert.Equal(t, encodeErr, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
