package nativeimg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxWithin(t *testing.T) {
	s := NewSize(128, 128)
	assert.True(t, NewBox(32, 32, 96, 96).Within(s))
	assert.True(t, NewBox(0, 0, 128, 128).Within(s))
	assert.False(t, NewBox(0, 0, 129, 128).Within(s))
	assert.False(t, NewBox(-1, 0, 10, 10).Within(s))
	assert.False(t, NewBox(10, 10, 10, 20).Within(s))
	assert.False(t, NewBox(20, 10, 10, 20).Within(s))
	assert.Equal(t, NewSize(64, 64), NewBox(32, 32, 96, 96).Size())
}

func TestSize(t *testing.T) {
	s := NewSize(1024, 680)
	assert.Equal(t, "1024x680", s.String())
	assert.InDelta(t, 1.5058, s.AspectRatio(), 0.0001)
	assert.False(t, s.Empty())
	assert.True(t, NewSize(0, 10).Empty())
}

func TestFiltersLookup(t *testing.T) {
	f := Filters{Nearest: 10, Antialias: 11, Bilinear: 12, Bicubic: 13}
	for name, want := range map[string]Filter{"": 11, "nearest": 10, "Antialias": 11, "bilinear": 12, "BICUBIC": 13} {
		got, ok := f.Lookup(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := f.Lookup("mitchell")
	assert.False(t, ok)
}

func TestInfo(t *testing.T) {
	b := &stubBackend{name: "stub"}
	data := []byte("1024x680")

	imfo, err := Info(b, data)
	require.NoError(t, err)
	assert.Equal(t, "stub", imfo.Backend)
	assert.Equal(t, 1024, imfo.Width)
	assert.Equal(t, 680, imfo.Height)
	assert.Equal(t, 1.5058, imfo.AspectRatio)
	assert.Equal(t, "jpeg", imfo.Format)
	assert.Equal(t, "image/jpeg", imfo.Mimetype)
	assert.Equal(t, len(data), imfo.ContentLength)

	_, err = Info(b, []byte("garbage"))
	assert.True(t, errors.Is(err, ErrDecode))
}
