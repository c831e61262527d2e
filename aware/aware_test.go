package aware

import (
	"bytes"
	"errors"
	"image"
	"io"
	"testing"

	"github.com/mrjoshuak/go-jpeg2000"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/conformance"
)

func jp2Fixture(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg2000.Encode(&buf, conformance.FixtureImage(), jpeg2000.DefaultOptions()))
	return buf.Bytes()
}

func TestConformanceJPEG(t *testing.T) {
	conformance.Run(t, New())
}

func TestConformanceJP2(t *testing.T) {
	conformance.RunWith(t, New(), "sample.jp2", jp2Fixture(t))
}

func TestOpenJP2(t *testing.T) {
	im, err := New().Open(jp2Fixture(t))
	require.NoError(t, err)
	defer im.Release()

	assert.Equal(t, "jp2", im.Format())
	assert.Equal(t, conformance.FixtureSize, im.Size())
	assert.True(t, im.(*Image).Pending())
}

func TestPendingUntilPixelsNeeded(t *testing.T) {
	im, err := New().Open(jp2Fixture(t))
	require.NoError(t, err)
	defer im.Release()

	c, err := im.Crop(nativeimg.NewBox(100, 100, 612, 356))
	require.NoError(t, err)
	r, err := c.Resize(nativeimg.NewSize(64, 32), Antialias)
	require.NoError(t, err)
	assert.True(t, r.(*Image).Pending())
	assert.Equal(t, nativeimg.NewSize(64, 32), r.Size())

	var buf bytes.Buffer
	require.NoError(t, r.Save(&buf, "png"))
	assert.False(t, r.(*Image).Pending())
	assert.Equal(t, nativeimg.NewSize(64, 32), r.Size())

	back, err := New().Open(buf.Bytes())
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, nativeimg.NewSize(64, 32), back.Size())
}

func TestCropOfCrop(t *testing.T) {
	im, err := New().Open(conformance.Fixture())
	require.NoError(t, err)
	defer im.Release()

	c1, err := im.Crop(nativeimg.NewBox(100, 100, 500, 400))
	require.NoError(t, err)
	c2, err := c1.Crop(nativeimg.NewBox(10, 20, 110, 70))
	require.NoError(t, err)
	assert.Equal(t, nativeimg.NewBox(110, 120, 210, 170), c2.(*Image).region)
	assert.Equal(t, nativeimg.NewSize(100, 50), c2.Size())

	_, err = c1.Crop(nativeimg.NewBox(0, 0, 401, 10))
	assert.True(t, errors.Is(err, nativeimg.ErrInvalidRegion))
}

func TestSaveJP2RoundTrip(t *testing.T) {
	im, err := New().Open(conformance.Fixture())
	require.NoError(t, err)
	defer im.Release()

	require.NoError(t, im.Thumbnail(nativeimg.NewSize(256, 256), Antialias))

	for _, format := range []string{"jp2", "j2k"} {
		var buf bytes.Buffer
		require.NoError(t, im.Save(&buf, format, nativeimg.Lossless(true)), format)

		md, err := jpeg2000.DecodeMetadata(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err, format)
		assert.Equal(t, 256, md.Width, format)
		assert.Equal(t, 170, md.Height, format)

		back, err := New().Open(buf.Bytes())
		require.NoError(t, err, format)
		assert.Equal(t, format, back.Format())
		back.Release()
	}
}

func TestUnknownFilter(t *testing.T) {
	im, err := New().Open(conformance.Fixture())
	require.NoError(t, err)
	defer im.Release()

	_, err = im.Resize(nativeimg.NewSize(10, 10), nativeimg.Filter(7))
	assert.True(t, errors.Is(err, nativeimg.ErrBackend))
}

func recordDecodes(t *testing.T) *[]jpeg2000.Config {
	var seen []jpeg2000.Config
	orig := decodeJ2K
	decodeJ2K = func(r io.Reader, cfg *jpeg2000.Config) (image.Image, error) {
		seen = append(seen, *cfg)
		return orig(r, cfg)
	}
	t.Cleanup(func() { decodeJ2K = orig })
	return &seen
}

func TestCropDecodesOnlyRegion(t *testing.T) {
	seen := recordDecodes(t)

	im, err := New().Open(jp2Fixture(t))
	require.NoError(t, err)
	defer im.Release()

	c, err := im.Crop(nativeimg.NewBox(32, 32, 96, 96))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf, "png"))
	assert.Equal(t, nativeimg.NewSize(64, 64), c.Size())

	require.Len(t, *seen, 1)
	cfg := (*seen)[0]
	assert.Equal(t, 0, cfg.ReduceResolution)
	require.NotNil(t, cfg.DecodeArea)
	assert.Equal(t, image.Rect(32, 32, 96, 96), *cfg.DecodeArea)
}

func TestCropResizeDecodesScaledRegion(t *testing.T) {
	seen := recordDecodes(t)

	im, err := New().Open(jp2Fixture(t))
	require.NoError(t, err)
	defer im.Release()

	c, err := im.Crop(nativeimg.NewBox(100, 100, 612, 356))
	require.NoError(t, err)
	r, err := c.Resize(nativeimg.NewSize(64, 32), Antialias)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Save(&buf, "png"))
	assert.Equal(t, nativeimg.NewSize(64, 32), r.Size())

	require.Len(t, *seen, 1)
	cfg := (*seen)[0]
	level := cfg.ReduceResolution
	assert.Greater(t, level, 0)
	require.NotNil(t, cfg.DecodeArea)
	assert.Equal(t, image.Rect(100>>level, 100>>level, ceilDiv(612, 1<<level), ceilDiv(356, 1<<level)), *cfg.DecodeArea)
}

func TestFullImageDecodesWithoutArea(t *testing.T) {
	seen := recordDecodes(t)

	im, err := New().Open(jp2Fixture(t))
	require.NoError(t, err)
	defer im.Release()

	require.NoError(t, im.Thumbnail(nativeimg.NewSize(128, 256), Antialias))
	var buf bytes.Buffer
	require.NoError(t, im.Save(&buf, "png"))
	assert.Equal(t, nativeimg.NewSize(128, 85), im.Size())

	require.Len(t, *seen, 1)
	assert.Nil(t, (*seen)[0].DecodeArea)
}
