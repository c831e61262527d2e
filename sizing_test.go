package nativeimg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSize1 = NewSize(300, 300)
	testSize2 = NewSize(300, 200)
	testSize3 = NewSize(200, 300)
	testSize4 = NewSize(1000, 667)
)

func TestThumbnailSize(t *testing.T) {
	cases := []struct {
		cur, bound, want Size
	}{
		{NewSize(1024, 680), NewSize(128, 256), NewSize(128, 85)},
		{NewSize(680, 1024), NewSize(128, 128), NewSize(85, 128)},
		{NewSize(100, 50), NewSize(200, 200), NewSize(100, 50)},
		{NewSize(1000, 1), NewSize(10, 10), NewSize(10, 1)},
		{NewSize(1, 1000), NewSize(10, 10), NewSize(1, 10)},
		{NewSize(640, 480), NewSize(320, 120), NewSize(160, 120)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ThumbnailSize(c.cur, c.bound), "%s in %s", c.cur, c.bound)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 85, round(84.5))
	assert.Equal(t, 84, round(84.49))
	assert.Equal(t, -3, round(-2.5))
	assert.Equal(t, 0, round(0.2))
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("500.50x500.123")
	require.NoError(t, err)
	assert.Equal(t, NewSize(500, 500), s)

	s, err = ParseSize("x150")
	require.NoError(t, err)
	assert.Equal(t, NewSize(0, 150), s)

	_, err = ParseSize("150")
	assert.Error(t, err)
	_, err = ParseSize("-1x5")
	assert.Error(t, err)
}

func TestParseSizeBounds(t *testing.T) {
	s, err := ParseSize("16384x0")
	require.NoError(t, err)
	assert.Equal(t, NewSize(16384, 0), s)

	for _, q := range []string{"1e9x1e9", "1e19x10", "16385x1", "10x40000"} {
		_, err := ParseSize(q)
		assert.True(t, errors.Is(err, ErrTooLarge), "%s: %v", q, err)
	}
	for _, q := range []string{"NaNx10", "10xInf", "-Infx1"} {
		_, err := ParseSize(q)
		assert.Error(t, err, q)
	}

	_, err = NewSizingFromQuery("s=1e19x10")
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestScaleToHeight(t *testing.T) {
	sz, err := NewSizingFromQuery("s=x150")
	require.NoError(t, err)
	rr, crop := sz.CalcResizeRect(testSize2)
	assert.Equal(t, NewSize(225, 150), rr)
	assert.Nil(t, crop)

	rr, _ = sz.CalcResizeRect(testSize3)
	assert.Equal(t, NewSize(100, 150), rr)
}

func TestScaleToWidth(t *testing.T) {
	sz, err := NewSizingFromQuery("s=150x")
	require.NoError(t, err)
	rr, _ := sz.CalcResizeRect(testSize2)
	assert.Equal(t, NewSize(150, 100), rr)

	rr, _ = sz.CalcResizeRect(testSize3)
	assert.Equal(t, NewSize(150, 225), rr)
}

func TestExactOp(t *testing.T) {
	sz, err := NewSizingFromQuery("s=500x500")
	require.NoError(t, err)
	rr, crop := sz.CalcResizeRect(testSize2)
	assert.Equal(t, NewSize(500, 500), rr)
	assert.Nil(t, crop)

	sz, err = NewSizingFromQuery("")
	require.NoError(t, err)
	rr, _ = sz.CalcResizeRect(testSize4)
	assert.Equal(t, testSize4, rr)
}

func TestContainOp(t *testing.T) {
	sz, err := NewSizingFromQuery("s=400x400&op=contain")
	require.NoError(t, err)
	rr, crop := sz.CalcResizeRect(testSize4)
	assert.Equal(t, NewSize(400, 267), rr)
	assert.Nil(t, crop)

	// never upscales
	rr, _ = sz.CalcResizeRect(testSize2)
	assert.Equal(t, testSize2, rr)

	sz, err = NewSizingFromQuery("s=x100&op=contain")
	require.NoError(t, err)
	rr, _ = sz.CalcResizeRect(testSize4)
	assert.Equal(t, NewSize(150, 100), rr)
}

func TestCoverOp(t *testing.T) {
	sz, err := NewSizingFromQuery("s=100x100&op=cover")
	require.NoError(t, err)
	rr, crop := sz.CalcResizeRect(testSize2)
	assert.Equal(t, NewSize(150, 100), rr)
	require.NotNil(t, crop)
	assert.Equal(t, NewBox(25, 0, 125, 100), *crop)

	sz, err = NewSizingFromQuery("s=100x100&op=cover&fp=0.01,0.01")
	require.NoError(t, err)
	_, crop = sz.CalcResizeRect(testSize2)
	assert.Equal(t, NewBox(0, 0, 100, 100), *crop)

	sz, err = NewSizingFromQuery("s=100x100&op=cover&fp=100,50")
	require.NoError(t, err)
	_, crop = sz.CalcResizeRect(testSize2)
	assert.Equal(t, NewBox(50, 0, 150, 100), *crop)
}

func TestCalcCropBox(t *testing.T) {
	sz, err := NewSizingFromQuery("cb=0.25,0.25,0.75,0.75")
	require.NoError(t, err)
	box, ok, err := sz.CalcCropBox(NewSize(400, 200))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, NewBox(100, 50, 300, 150), box)

	sz, err = NewSizingFromQuery("cb=0.75,0.25,0.25,0.75")
	require.NoError(t, err)
	_, _, err = sz.CalcCropBox(NewSize(400, 200))
	assert.True(t, errors.Is(err, ErrInvalidRegion))

	_, ok, err = NewSizing().CalcCropBox(NewSize(400, 200))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSizingQuery(t *testing.T) {
	sz, err := NewSizingFromQuery("s=300x200&op=cover&fp=0.5,0.3&q=90&format=png&filter=nearest&backend=pil")
	require.NoError(t, err)
	assert.Equal(t, NewSize(300, 200), sz.Size)
	assert.Equal(t, OpCover, sz.Op)
	assert.Equal(t, FloatPoint{0.5, 0.3}, sz.FocalPoint)
	assert.Equal(t, 90, sz.Quality)
	assert.Equal(t, "png", sz.Format)
	assert.Equal(t, "nearest", sz.Filter)
	assert.Equal(t, "pil", sz.Backend)

	q := sz.ToQuery()
	assert.Equal(t, "300x200", q.Get("s"))
	assert.Equal(t, "cover", q.Get("op"))
	assert.Equal(t, "0.50,0.30", q.Get("fp"))

	_, err = NewSizingFromQuery("op=stretch")
	assert.Error(t, err)
	_, err = NewSizingFromQuery("cb=1,2,3")
	assert.Error(t, err)
}

func TestSizeIt(t *testing.T) {
	orig := newStubImage(NewSize(300, 200))

	sz, err := NewSizingFromQuery("s=100x100&op=cover")
	require.NoError(t, err)

	out, err := SizeIt(orig, sz, 0)
	require.NoError(t, err)
	assert.Equal(t, NewSize(100, 100), out.Size())
	assert.Equal(t, NewSize(300, 200), orig.Size())
	assert.False(t, orig.Released())

	stub := out.(*stubImage)
	assert.Equal(t, []string{"clone", "resize 150x100", "crop (25,0,125,100)"}, stub.ops)
	out.Release()
}

func TestSizeItCropError(t *testing.T) {
	orig := newStubImage(NewSize(300, 200))
	orig.failCrop = true

	sz, err := NewSizingFromQuery("cb=0,0,0.5,0.5")
	require.NoError(t, err)
	_, err = SizeIt(orig, sz, 0)
	assert.True(t, errors.Is(err, ErrBackend))
}

func TestSizeItMaxSize(t *testing.T) {
	orig := newStubImage(NewSize(300, 200))

	sz, err := NewSizingFromQuery("s=100x100&op=cover")
	require.NoError(t, err)
	sz.MaxSize = 150
	out, err := SizeIt(orig, sz, 0)
	require.NoError(t, err)
	assert.Equal(t, NewSize(100, 100), out.Size())
	out.Release()

	// the intermediate 150x100 is over the cap
	sz.MaxSize = 120
	_, err = SizeIt(orig, sz, 0)
	assert.True(t, errors.Is(err, ErrTooLarge), "%v", err)
	assert.Equal(t, NewSize(300, 200), orig.Size())

	tall := newStubImage(NewSize(100, 10000))
	sz, err = NewSizingFromQuery("s=1024x10&op=cover")
	require.NoError(t, err)
	sz.MaxSize = 1024
	_, err = SizeIt(tall, sz, 0)
	assert.True(t, errors.Is(err, ErrTooLarge), "%v", err)

	// sizing down to the source size never trips the cap
	sz, err = NewSizingFromQuery("")
	require.NoError(t, err)
	sz.MaxSize = 10
	out, err = SizeIt(orig, sz, 0)
	require.NoError(t, err)
	assert.Equal(t, NewSize(300, 200), out.Size())
	out.Release()
}
