//go:build gocv

package opencv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/conformance"
)

func TestConformance(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)
	conformance.Run(t, b)
}

func TestUnknownFilter(t *testing.T) {
	b, _ := Load()
	im, err := b.Open(conformance.Fixture())
	require.NoError(t, err)
	defer im.Release()

	_, err = im.Resize(nativeimg.NewSize(10, 10), nativeimg.Filter(1234))
	assert.True(t, errors.Is(err, nativeimg.ErrBackend))
}

func TestCropIsDetached(t *testing.T) {
	b, _ := Load()
	im, err := b.Open(conformance.Fixture())
	require.NoError(t, err)

	c, err := im.Crop(nativeimg.NewBox(0, 0, 10, 10))
	require.NoError(t, err)
	defer c.Release()

	im.Release()
	assert.Equal(t, nativeimg.NewSize(10, 10), c.Size())
	assert.Equal(t, "jpg", c.Format())
}
