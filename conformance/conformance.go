// Package conformance checks that a nativeimg.Backend honours the shared
// Image contract. Backend packages call Run from their own tests.
package conformance

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pressly/nativeimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FixtureSize is the size of the generated sample photo.
var FixtureSize = nativeimg.NewSize(1024, 680)

var (
	fixtureOnce sync.Once
	fixtureJPEG []byte
)

// FixtureImage draws the sample as a gradient with a few solid blocks so that
// crops and rotations are not uniform.
func FixtureImage() *image.NRGBA {
	w, h := FixtureSize.Width, FixtureSize.Height
	img := imaging.New(w, h, color.White)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	block := imaging.New(w/8, h/8, color.NRGBA{R: 200, G: 20, B: 20, A: 255})
	img = imaging.Paste(img, block, image.Pt(w/16, h/16))
	return imaging.Paste(img, block, image.Pt(w-w/4, h-h/4))
}

// Fixture returns the sample encoded as JPEG.
func Fixture() []byte {
	fixtureOnce.Do(func() {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, FixtureImage(), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			panic(err)
		}
		fixtureJPEG = buf.Bytes()
	})
	return fixtureJPEG
}

// WriteFixture writes data to a file named name in a temp dir and returns
// its path.
func WriteFixture(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// Pixels encodes im as PNG and decodes it back, so every backend is compared
// through the same pure Go decoder.
func Pixels(t testing.TB, im nativeimg.Image) *image.NRGBA {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, im.Save(&buf, "png"))
	m, err := imaging.Decode(&buf)
	require.NoError(t, err)
	return imaging.Clone(m)
}

// MeanDiff is the mean absolute difference per colour channel of two
// images of equal size.
func MeanDiff(t testing.TB, a, b image.Image) float64 {
	t.Helper()
	na, nb := imaging.Clone(a), imaging.Clone(b)
	require.Equal(t, na.Rect.Size(), nb.Rect.Size())

	var sum, n float64
	for i := 0; i < len(na.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := float64(na.Pix[i+c]) - float64(nb.Pix[i+c])
			if d < 0 {
				d = -d
			}
			sum += d
			n++
		}
	}
	return sum / n
}

// maxDiff allows for lossy samples and differing resampling kernels.
const maxDiff = 10

// Run exercises b against the JPEG fixture.
func Run(t *testing.T, b nativeimg.Backend) {
	RunWith(t, b, "sample.jpg", Fixture())
}

// RunWith exercises b against an arbitrary sample, which must have the
// dimensions of FixtureSize.
func RunWith(t *testing.T, b nativeimg.Backend, name string, sample []byte) {
	path := WriteFixture(t, name, sample)
	flt := b.Filters()

	open := func(t *testing.T) nativeimg.Image {
		t.Helper()
		im, err := b.Open(path)
		require.NoError(t, err)
		t.Cleanup(im.Release)
		return im
	}

	t.Run("OpenPath", func(t *testing.T) {
		im := open(t)
		assert.Equal(t, b.Name(), im.Backend())
		assert.NotEmpty(t, im.Format())

		_, err := b.Open(filepath.Join(t.TempDir(), "this test image does not exist.jpg"))
		assert.True(t, errors.Is(err, nativeimg.ErrNotFound), "%v", err)

		_, err = b.Open(t.TempDir())
		assert.True(t, errors.Is(err, nativeimg.ErrNotFound), "%v", err)
	})

	t.Run("OpenReader", func(t *testing.T) {
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		im, err := b.Open(f)
		require.NoError(t, err)
		defer im.Release()
		assert.Equal(t, FixtureSize, im.Size())
	})

	t.Run("OpenBytes", func(t *testing.T) {
		im, err := b.Open(sample)
		require.NoError(t, err)
		defer im.Release()
		assert.Equal(t, FixtureSize, im.Size())

		im2, err := b.Open(bytes.NewReader(sample))
		require.NoError(t, err)
		defer im2.Release()
		assert.Equal(t, FixtureSize, im2.Size())
	})

	t.Run("OpenInvalid", func(t *testing.T) {
		_, err := b.Open([]byte("this is not an image"))
		assert.True(t, errors.Is(err, nativeimg.ErrDecode), "%v", err)

		_, err = b.Open([]byte{})
		assert.True(t, errors.Is(err, nativeimg.ErrDecode), "%v", err)

		_, err = b.Open(42)
		assert.True(t, errors.Is(err, nativeimg.ErrUnsupportedInput), "%v", err)
	})

	t.Run("Size", func(t *testing.T) {
		assert.Equal(t, FixtureSize, open(t).Size())
	})

	t.Run("Resize", func(t *testing.T) {
		im := open(t)
		small, err := im.Resize(nativeimg.NewSize(128, 256), flt.Antialias)
		require.NoError(t, err)
		defer small.Release()

		// resize stretches, unlike thumbnail
		assert.Equal(t, nativeimg.NewSize(128, 256), small.Size())
		assert.Equal(t, FixtureSize, im.Size())

		want := imaging.Resize(FixtureImage(), 128, 256, imaging.Lanczos)
		assert.Less(t, MeanDiff(t, want, Pixels(t, small)), float64(maxDiff))

		for _, f := range []nativeimg.Filter{flt.Nearest, flt.Bilinear, flt.Bicubic} {
			r, err := im.Resize(nativeimg.NewSize(100, 50), f)
			require.NoError(t, err)
			assert.Equal(t, nativeimg.NewSize(100, 50), r.Size())
			r.Release()
		}

		_, err = im.Resize(nativeimg.NewSize(0, 10), flt.Antialias)
		assert.True(t, errors.Is(err, nativeimg.ErrInvalidRegion), "%v", err)
	})

	t.Run("Thumbnail", func(t *testing.T) {
		im := open(t)
		require.NoError(t, im.Thumbnail(nativeimg.NewSize(128, 256), flt.Antialias))
		assert.Equal(t, nativeimg.NewSize(128, 85), im.Size())

		// already inside the bound
		require.NoError(t, im.Thumbnail(nativeimg.NewSize(512, 512), flt.Antialias))
		assert.Equal(t, nativeimg.NewSize(128, 85), im.Size())

		err := im.Thumbnail(nativeimg.NewSize(0, 0), flt.Antialias)
		assert.True(t, errors.Is(err, nativeimg.ErrInvalidRegion), "%v", err)
	})

	t.Run("Crop", func(t *testing.T) {
		im := open(t)
		c, err := im.Crop(nativeimg.NewBox(32, 32, 96, 96))
		require.NoError(t, err)
		defer c.Release()
		assert.Equal(t, nativeimg.NewSize(64, 64), c.Size())
		assert.Equal(t, FixtureSize, im.Size())

		got := Pixels(t, c)
		want := imaging.Crop(FixtureImage(), image.Rect(32, 32, 96, 96))
		assert.Less(t, MeanDiff(t, want, got), float64(maxDiff))

		// (40, 40) falls inside the red block pasted at (64, 42)
		px := got.NRGBAAt(40, 40)
		assert.Greater(t, int(px.R), 150, "%v", px)
		assert.Less(t, int(px.G), 80, "%v", px)
		px = got.NRGBAAt(2, 2)
		assert.Less(t, int(px.R), 60, "%v", px)

		// a crop away from the origin
		far, err := im.Crop(nativeimg.NewBox(700, 400, 1024, 680))
		require.NoError(t, err)
		defer far.Release()
		want = imaging.Crop(FixtureImage(), image.Rect(700, 400, 1024, 680))
		assert.Less(t, MeanDiff(t, want, Pixels(t, far)), float64(maxDiff))

		for _, box := range []nativeimg.Box{
			nativeimg.NewBox(0, 0, 2000, 10),
			nativeimg.NewBox(-1, 0, 10, 10),
			nativeimg.NewBox(50, 50, 50, 60),
			nativeimg.NewBox(60, 50, 50, 60),
		} {
			_, err := im.Crop(box)
			assert.True(t, errors.Is(err, nativeimg.ErrInvalidRegion), "%s: %v", box, err)
		}
	})

	t.Run("Rotate90", func(t *testing.T) {
		im := open(t)
		r, err := im.Rotate(90, flt.Bilinear, false)
		require.NoError(t, err)
		defer r.Release()
		assert.Equal(t, FixtureSize, r.Size())

		r2, err := im.Rotate(90, flt.Bilinear, true)
		require.NoError(t, err)
		defer r2.Release()
		assert.Equal(t, nativeimg.NewSize(680, 1024), r2.Size())

		r3, err := im.Rotate(180, flt.Nearest, true)
		require.NoError(t, err)
		defer r3.Release()
		assert.Equal(t, FixtureSize, r3.Size())
	})

	t.Run("RotateArbitrary", func(t *testing.T) {
		im := open(t)
		r, err := im.Rotate(43, flt.Bicubic, false)
		require.NoError(t, err)
		defer r.Release()
		assert.Equal(t, FixtureSize, r.Size())

		r2, err := im.Rotate(43, flt.Bicubic, true)
		require.NoError(t, err)
		defer r2.Release()
		assert.Greater(t, r2.Size().Width, FixtureSize.Width)
		assert.Greater(t, r2.Size().Height, FixtureSize.Height)
	})

	t.Run("Clone", func(t *testing.T) {
		im := open(t)
		before := Pixels(t, im)

		c, err := im.Clone()
		require.NoError(t, err)
		defer c.Release()
		assert.Equal(t, before.Pix, Pixels(t, c).Pix)

		require.NoError(t, c.Thumbnail(nativeimg.NewSize(64, 64), flt.Antialias))
		assert.Equal(t, nativeimg.NewSize(64, 43), c.Size())
		assert.Equal(t, FixtureSize, im.Size())
		assert.Equal(t, before.Pix, Pixels(t, im).Pix)

		im.Release()
		assert.Equal(t, nativeimg.NewSize(64, 43), c.Size())
	})

	t.Run("SaveStream", func(t *testing.T) {
		im := open(t)
		for _, format := range []string{"JPEG", "png"} {
			var buf bytes.Buffer
			require.NoError(t, im.Save(&buf, format, nativeimg.Quality(75)), format)
			require.NotZero(t, buf.Len(), format)

			back, err := b.Open(buf.Bytes())
			require.NoError(t, err, format)
			assert.Equal(t, FixtureSize, back.Size(), format)
			back.Release()
		}

		var buf bytes.Buffer
		err := im.Save(&buf, "")
		assert.True(t, errors.Is(err, nativeimg.ErrUnknownFormat), "%v", err)
		err = im.Save(&buf, "psd")
		assert.True(t, errors.Is(err, nativeimg.ErrUnknownFormat), "%v", err)
	})

	t.Run("SavePath", func(t *testing.T) {
		im := open(t)
		thumb, err := im.Clone()
		require.NoError(t, err)
		defer thumb.Release()
		require.NoError(t, thumb.Thumbnail(nativeimg.NewSize(256, 256), flt.Antialias))

		out := filepath.Join(t.TempDir(), "thumb_"+b.Name()+".jpg")
		require.NoError(t, thumb.Save(out, ""))

		back, err := b.Open(out)
		require.NoError(t, err)
		defer back.Release()
		assert.Equal(t, nativeimg.NewSize(256, 170), back.Size())

		err = thumb.Save(filepath.Join(t.TempDir(), "missing", "dir", "x.jpg"), "")
		assert.True(t, errors.Is(err, nativeimg.ErrWrite), "%v", err)
	})

	t.Run("Released", func(t *testing.T) {
		im, err := b.Open(path)
		require.NoError(t, err)
		assert.False(t, im.Released())

		im.Release()
		im.Release()
		assert.True(t, im.Released())
		assert.Equal(t, nativeimg.Size{}, im.Size())

		_, err = im.Resize(nativeimg.NewSize(10, 10), flt.Antialias)
		assert.True(t, errors.Is(err, nativeimg.ErrReleased), "%v", err)
		_, err = im.Crop(nativeimg.NewBox(0, 0, 10, 10))
		assert.True(t, errors.Is(err, nativeimg.ErrReleased), "%v", err)
		_, err = im.Clone()
		assert.True(t, errors.Is(err, nativeimg.ErrReleased), "%v", err)
		err = im.Save(&bytes.Buffer{}, "png")
		assert.True(t, errors.Is(err, nativeimg.ErrReleased), "%v", err)
	})

	t.Run("Info", func(t *testing.T) {
		imfo, err := nativeimg.Info(b, sample)
		require.NoError(t, err)
		assert.Equal(t, b.Name(), imfo.Backend)
		assert.Equal(t, FixtureSize.Width, imfo.Width)
		assert.Equal(t, FixtureSize.Height, imfo.Height)
		assert.Equal(t, 1.5058, imfo.AspectRatio)
		assert.Equal(t, len(sample), imfo.ContentLength)
	})

	t.Run("SizeIt", func(t *testing.T) {
		im := open(t)
		sz, err := nativeimg.NewSizingFromQuery("s=200x200&op=cover&fp=0.25,0.5")
		require.NoError(t, err)

		out, err := nativeimg.SizeIt(im, sz, flt.Antialias)
		require.NoError(t, err)
		defer out.Release()
		assert.Equal(t, nativeimg.NewSize(200, 200), out.Size())
		assert.Equal(t, FixtureSize, im.Size())
	})
}
