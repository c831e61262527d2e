// Package nativeimg is a uniform image manipulation surface that can be backed
// by different native imaging engines, chosen at runtime by name.
//
// Every engine lives in its own package (pil, magick, aware, vips, opencv) and
// is reached through a Registry, see the backends package for the default one.
package nativeimg

import (
	"fmt"
	"math"
	"runtime/debug"
	"strings"
)

const (
	VERSION = "1.0.0"
)

// Backend is an imaging engine. Open accepts a path string, a []byte buffer
// or an io.Reader.
type Backend interface {
	Name() string
	Version() string
	Filters() Filters
	Open(src any) (Image, error)
}

// Image is a handle to decoded image state owned by exactly one backend.
//
// Resize, Crop, Rotate and Clone return new handles and leave the receiver
// untouched. Thumbnail resizes in place. An Image must not be used from more
// than one goroutine at a time, and must be released with Release.
type Image interface {
	Backend() string
	Size() Size
	Format() string

	Resize(size Size, filter Filter) (Image, error)
	Crop(box Box) (Image, error)
	Thumbnail(max Size, filter Filter) error
	Rotate(angle float64, filter Filter, expand bool) (Image, error)
	Clone() (Image, error)

	Save(dst any, format string, opts ...EncodeOption) error

	Release()
	Released() bool
}

// Filter is a resample filter. Its value is only meaningful to the backend
// that defined it; use the constants exported by each backend package.
type Filter int

// Filters is the set of symbolic resample filters of one backend.
type Filters struct {
	Nearest   Filter
	Antialias Filter
	Bilinear  Filter
	Bicubic   Filter
}

// Lookup maps a symbolic filter name to the backend's value. An empty name
// selects Antialias.
func (f Filters) Lookup(name string) (Filter, bool) {
	switch strings.ToLower(name) {
	case "", "antialias", "lanczos":
		return f.Antialias, true
	case "nearest":
		return f.Nearest, true
	case "bilinear", "linear":
		return f.Bilinear, true
	case "bicubic", "cubic":
		return f.Bicubic, true
	}
	return 0, false
}

type Size struct {
	Width, Height int
}

func NewSize(w, h int) Size {
	return Size{Width: w, Height: h}
}

func (s Size) AspectRatio() float64 {
	return float64(s.Width) / float64(s.Height)
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Box is a pixel rectangle given as (left, upper, right, lower).
type Box struct {
	Left, Upper, Right, Lower int
}

func NewBox(left, upper, right, lower int) Box {
	return Box{Left: left, Upper: upper, Right: right, Lower: lower}
}

func (b Box) Size() Size {
	return Size{Width: b.Right - b.Left, Height: b.Lower - b.Upper}
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", b.Left, b.Upper, b.Right, b.Lower)
}

// Within reports whether the box is non-degenerate and fits inside an image
// of the given size.
func (b Box) Within(s Size) bool {
	if b.Right <= b.Left || b.Lower <= b.Upper {
		return false
	}
	return b.Left >= 0 && b.Upper >= 0 && b.Right <= s.Width && b.Lower <= s.Height
}

type ImageInfo struct {
	URL           string  `json:"url,omitempty"`
	Backend       string  `json:"backend"`
	Format        string  `json:"format"`
	Mimetype      string  `json:"mimetype"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	AspectRatio   float64 `json:"aspect_ratio"`
	ContentLength int     `json:"content_length,omitempty"`
}

// Info opens src with b and reports its dimensions and format. The image is
// released before returning.
func Info(b Backend, src any) (*ImageInfo, error) {
	im, err := b.Open(src)
	if err != nil {
		return nil, err
	}
	defer im.Release()

	sz := im.Size()
	imfo := &ImageInfo{
		Backend:     b.Name(),
		Format:      im.Format(),
		Width:       sz.Width,
		Height:      sz.Height,
		AspectRatio: math.Floor(sz.AspectRatio()*10000) / 10000,
	}
	if f, err := ParseFormat(imfo.Format); err == nil {
		imfo.Mimetype = f.MimeType()
	}
	if data, ok := src.([]byte); ok {
		imfo.ContentLength = len(data)
	}
	return imfo, nil
}

// ModuleVersion reports the version of a module compiled into the running
// binary, for use in Backend.Version.
func ModuleVersion(path string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, m := range bi.Deps {
		if m.Path != path {
			continue
		}
		if m.Replace != nil {
			return m.Replace.Version
		}
		return m.Version
	}
	return "unknown"
}
