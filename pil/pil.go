// Package pil is the pure Go backend, built on disintegration/imaging with
// extra codecs from golang.org/x/image and chai2010/webp. It is always
// available.
package pil

import (
	"errors"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pressly/nativeimg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const Name = "pil"

// Resample filters understood by this backend.
const (
	Nearest nativeimg.Filter = iota
	Antialias
	Bilinear
	Bicubic
)

var filters = map[nativeimg.Filter]imaging.ResampleFilter{
	Nearest:   imaging.NearestNeighbor,
	Antialias: imaging.Lanczos,
	Bilinear:  imaging.Linear,
	Bicubic:   imaging.CatmullRom,
}

type Backend struct{}

func New() *Backend {
	return &Backend{}
}

// Load is the registry loader.
func Load() (nativeimg.Backend, error) {
	return New(), nil
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Version() string {
	return "imaging " + nativeimg.ModuleVersion("github.com/disintegration/imaging")
}

func (b *Backend) Filters() nativeimg.Filters {
	return nativeimg.Filters{Nearest: Nearest, Antialias: Antialias, Bilinear: Bilinear, Bicubic: Bicubic}
}

func (b *Backend) Open(src any) (nativeimg.Image, error) {
	r, closer, err := nativeimg.OpenSource(Name, src)
	if err != nil {
		return nil, err
	}
	defer closer()

	m, format, err := image.Decode(r)
	if err != nil {
		return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "open", err)
	}
	return &Image{img: imaging.Clone(m), format: nativeimg.NormalizeFormat(format)}, nil
}

// Image holds decoded pixels in memory. Release just drops the reference.
type Image struct {
	img    *image.NRGBA
	format string
}

// FromImage wraps pixels decoded elsewhere.
func FromImage(m image.Image, format string) *Image {
	return &Image{img: imaging.Clone(m), format: nativeimg.NormalizeFormat(format)}
}

// NRGBA exposes the pixel buffer, nil once released.
func (i *Image) NRGBA() *image.NRGBA {
	return i.img
}

func (i *Image) Backend() string {
	return Name
}

func (i *Image) Size() nativeimg.Size {
	if i.img == nil {
		return nativeimg.Size{}
	}
	b := i.img.Bounds()
	return nativeimg.NewSize(b.Dx(), b.Dy())
}

func (i *Image) Format() string {
	return i.format
}

func (i *Image) derive(m *image.NRGBA) *Image {
	return &Image{img: m, format: i.format}
}

func (i *Image) Resize(size nativeimg.Size, filter nativeimg.Filter) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "resize", nil)
	}
	if size.Empty() {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "resize", nil)
	}
	rf, err := resampleFilter("resize", filter)
	if err != nil {
		return nil, err
	}
	return i.derive(imaging.Resize(i.img, size.Width, size.Height, rf)), nil
}

func (i *Image) Crop(box nativeimg.Box) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "crop", nil)
	}
	if !box.Within(i.Size()) {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "crop", nil)
	}
	return i.derive(imaging.Crop(i.img, image.Rect(box.Left, box.Upper, box.Right, box.Lower))), nil
}

func (i *Image) Thumbnail(max nativeimg.Size, filter nativeimg.Filter) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "thumbnail", nil)
	}
	if max.Empty() {
		return nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "thumbnail", nil)
	}
	rf, err := resampleFilter("thumbnail", filter)
	if err != nil {
		return err
	}
	cur := i.Size()
	size := nativeimg.ThumbnailSize(cur, max)
	if size == cur {
		return nil
	}
	i.img = imaging.Resize(i.img, size.Width, size.Height, rf)
	return nil
}

// Rotate turns the image counter-clockwise. Right angles are exact
// transposes; other angles use imaging's bilinear rotation over a
// transparent background.
func (i *Image) Rotate(angle float64, filter nativeimg.Filter, expand bool) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "rotate", nil)
	}
	if _, err := resampleFilter("rotate", filter); err != nil {
		return nil, err
	}

	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}

	var m *image.NRGBA
	switch a {
	case 0:
		m = imaging.Clone(i.img)
	case 90:
		m = imaging.Rotate90(i.img)
	case 180:
		m = imaging.Rotate180(i.img)
	case 270:
		m = imaging.Rotate270(i.img)
	default:
		m = imaging.Rotate(i.img, a, color.Transparent)
	}

	if !expand && m.Bounds().Size() != i.img.Bounds().Size() {
		sz := i.Size()
		m = imaging.PasteCenter(imaging.New(sz.Width, sz.Height, color.Transparent), m)
	}
	return i.derive(m), nil
}

func (i *Image) Clone() (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "clone", nil)
	}
	return i.derive(imaging.Clone(i.img)), nil
}

func (i *Image) Save(dst any, format string, opts ...nativeimg.EncodeOption) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "save", nil)
	}
	f, err := nativeimg.ResolveFormat(dst, format)
	if err != nil {
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", err)
	}
	enc, err := encoder(f, nativeimg.NewEncodeOptions(opts...))
	if err != nil {
		return err
	}
	return nativeimg.WriteDestination(Name, dst, func(w io.Writer) error {
		if err := enc(w, i.img); err != nil {
			return nativeimg.NewError(nativeimg.ErrWrite, Name, "save", err)
		}
		return nil
	})
}

func (i *Image) Release() {
	i.img = nil
}

func (i *Image) Released() bool {
	return i.img == nil
}

type encodeFunc func(w io.Writer, m image.Image) error

var errNoEncoder = errors.New("no encoder for format")

// encoder returns the writer for f, checked before any destination is
// created so an unsupported format never leaves an empty file behind.
func encoder(f nativeimg.Format, o nativeimg.EncodeOptions) (encodeFunc, error) {
	quality := o.Quality
	if quality == 0 {
		quality = 75
	}

	var format imaging.Format
	switch f {
	case nativeimg.JPEG:
		format = imaging.JPEG
	case nativeimg.PNG:
		format = imaging.PNG
	case nativeimg.GIF:
		format = imaging.GIF
	case nativeimg.TIFF:
		format = imaging.TIFF
	case nativeimg.BMP:
		format = imaging.BMP
	case nativeimg.WEBP:
		return func(w io.Writer, m image.Image) error {
			return webp.Encode(w, m, &webp.Options{Lossless: o.Lossless, Quality: float32(quality)})
		}, nil
	default:
		return nil, nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", errNoEncoder)
	}

	return func(w io.Writer, m image.Image) error {
		return imaging.Encode(w, m, format, imaging.JPEGQuality(quality))
	}, nil
}

func resampleFilter(op string, f nativeimg.Filter) (imaging.ResampleFilter, error) {
	rf, ok := filters[f]
	if !ok {
		return imaging.ResampleFilter{}, &nativeimg.BackendError{Backend: Name, Op: op, Msg: "unknown resample filter"}
	}
	return rf, nil
}
