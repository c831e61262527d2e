// Package magick is the ImageMagick backend, built on MagickWand through
// gographics/imagick. The adapter needs the "imagick" build tag and the
// MagickWand development headers; without them Load reports the backend as
// unavailable.
package magick

const (
	Name     = "magick"
	BuildTag = "imagick"
)
