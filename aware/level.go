package aware

import "github.com/pressly/nativeimg"

// MaxResolutionLevel is the coarsest resolution level the decoder is asked
// for.
const MaxResolutionLevel = 6

// ScaledDimension is d at the given resolution level, where each level
// halves the previous one.
func ScaledDimension(level, d int) float64 {
	return float64(d) / float64(int(1)<<level)
}

// DesiredResolutionLevel picks the coarsest level at which the source region
// box still covers target, starting from MaxResolutionLevel. Any level that
// would leave the region smaller than target on either side is refined down,
// to full resolution if need be, so the result never has to be upsampled
// from a reduced decode.
func DesiredResolutionLevel(box nativeimg.Box, target nativeimg.Size) int {
	bs := box.Size()
	level := MaxResolutionLevel
	for level > 1 &&
		float64(target.Width) > ScaledDimension(level, bs.Width) &&
		float64(target.Height) > ScaledDimension(level, bs.Height) {
		level--
	}
	for level > 0 &&
		(float64(target.Width) > ScaledDimension(level, bs.Width) ||
			float64(target.Height) > ScaledDimension(level, bs.Height)) {
		level--
	}
	return level
}
