package aware

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pressly/nativeimg"
)

func TestScaledDimension(t *testing.T) {
	assert.Equal(t, 1024.0, ScaledDimension(0, 1024))
	assert.Equal(t, 512.0, ScaledDimension(1, 1024))
	assert.Equal(t, 16.0, ScaledDimension(6, 1024))
	assert.Equal(t, 0.5, ScaledDimension(1, 1))
}

func TestDesiredResolutionLevel(t *testing.T) {
	full := nativeimg.NewBox(0, 0, 4096, 4096)

	cases := []struct {
		box    nativeimg.Box
		target nativeimg.Size
		want   int
	}{
		// tiny thumbnails come from the coarsest level
		{full, nativeimg.NewSize(64, 64), 6},
		{full, nativeimg.NewSize(32, 32), 6},
		{full, nativeimg.NewSize(65, 65), 5},
		{full, nativeimg.NewSize(128, 128), 5},
		{full, nativeimg.NewSize(1024, 1024), 2},
		{full, nativeimg.NewSize(2048, 2048), 1},
		// upscaling needs the full resolution
		{full, nativeimg.NewSize(3000, 3000), 0},
		{nativeimg.NewBox(0, 0, 100, 100), nativeimg.NewSize(200, 200), 0},
		// a region of interest
		{nativeimg.NewBox(1000, 1000, 1512, 1256), nativeimg.NewSize(128, 64), 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DesiredResolutionLevel(c.box, c.target), "%s -> %s", c.box, c.target)
	}
}

func TestDesiredResolutionLevelMismatchedAspect(t *testing.T) {
	// wide target from a tall region: the width decides, never undersampled
	box := nativeimg.NewBox(0, 0, 1024, 4096)
	level := DesiredResolutionLevel(box, nativeimg.NewSize(512, 64))
	assert.Equal(t, 1, level)
	assert.GreaterOrEqual(t, ScaledDimension(level, 1024), 512.0)
	assert.GreaterOrEqual(t, ScaledDimension(level, 4096), 64.0)
}

func TestDesiredResolutionLevelRefinesBelowOne(t *testing.T) {
	box := nativeimg.NewBox(0, 0, 1000, 1000)

	// the heuristic alone never goes under 1
	assert.Equal(t, 1, DesiredResolutionLevel(box, nativeimg.NewSize(500, 500)))

	// one pixel more than level 1 holds drops to full resolution
	assert.Equal(t, 0, DesiredResolutionLevel(box, nativeimg.NewSize(501, 500)))
	assert.Equal(t, 0, DesiredResolutionLevel(box, nativeimg.NewSize(500, 501)))

	// a narrow target stops the heuristic at the top, refinement still
	// walks down to 0
	assert.Equal(t, 0, DesiredResolutionLevel(box, nativeimg.NewSize(501, 10)))
}
