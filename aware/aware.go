// Package aware is the JPEG 2000 backend. Crop and resize are only recorded
// on the handle; the codestream is decoded when pixels are first needed, at
// the coarsest resolution level that still covers the requested output.
//
// Other formats are accepted too and decoded with the standard codecs, so
// the backend can stand in for pil on mixed collections.
package aware

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/anthonynsimon/bild/transform"
	"github.com/mrjoshuak/go-jpeg2000"
	"github.com/oliamb/cutter"
	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/pil"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const Name = "aware"

// Resample filters understood by this backend.
const (
	Nearest nativeimg.Filter = iota
	Antialias
	Bilinear
	Bicubic
)

var filters = map[nativeimg.Filter]transform.ResampleFilter{
	Nearest:   transform.NearestNeighbor,
	Antialias: transform.Lanczos,
	Bilinear:  transform.Linear,
	Bicubic:   transform.CatmullRom,
}

type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func Load() (nativeimg.Backend, error) {
	return New(), nil
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Version() string {
	return "go-jpeg2000 " + nativeimg.ModuleVersion("github.com/mrjoshuak/go-jpeg2000")
}

func (b *Backend) Filters() nativeimg.Filters {
	return nativeimg.Filters{Nearest: Nearest, Antialias: Antialias, Bilinear: Bilinear, Bicubic: Bicubic}
}

func (b *Backend) Open(src any) (nativeimg.Image, error) {
	data, err := nativeimg.ReadSource(Name, src)
	if err != nil {
		return nil, err
	}

	im := &source{data: data}
	if md, err := jpeg2000.DecodeMetadata(bytes.NewReader(data)); err == nil {
		im.codestream = true
		im.levels = md.NumResolutions
		im.size = nativeimg.NewSize(md.Width, md.Height)
		im.format = nativeimg.NormalizeFormat(md.Format.String())
	} else {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "open", err)
		}
		im.size = nativeimg.NewSize(cfg.Width, cfg.Height)
		im.format = nativeimg.NormalizeFormat(format)
	}
	if im.size.Empty() {
		return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "open", errNoPixels)
	}

	return &Image{src: im, region: nativeimg.NewBox(0, 0, im.size.Width, im.size.Height)}, nil
}

// source is the undecoded input, shared read-only between handles.
type source struct {
	data       []byte
	codestream bool
	levels     int
	size       nativeimg.Size
	format     string
}

// Image is either pending (region and output size recorded over src) or
// rendered (pix holds the pixels). Released when both src and pix are nil.
type Image struct {
	src    *source
	region nativeimg.Box   // in source pixels
	output *nativeimg.Size // nil keeps the region size
	filter nativeimg.Filter

	pix *image.NRGBA
}

func (i *Image) Backend() string {
	return Name
}

func (i *Image) Format() string {
	if i.src == nil {
		return ""
	}
	return i.src.format
}

func (i *Image) Size() nativeimg.Size {
	switch {
	case i.Released():
		return nativeimg.Size{}
	case i.pix != nil:
		b := i.pix.Bounds()
		return nativeimg.NewSize(b.Dx(), b.Dy())
	case i.output != nil:
		return *i.output
	default:
		return i.region.Size()
	}
}

// Pending reports whether the handle has not been decoded yet.
func (i *Image) Pending() bool {
	return !i.Released() && i.pix == nil
}

func (i *Image) Released() bool {
	return i.src == nil
}

func (i *Image) Release() {
	i.src = nil
	i.pix = nil
}

func (i *Image) Clone() (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "clone", nil)
	}
	c := *i
	if i.output != nil {
		out := *i.output
		c.output = &out
	}
	if i.pix != nil {
		c.pix = pil.FromImage(i.pix, "").NRGBA()
	}
	return &c, nil
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
	if i.pix != nil {
		return i.rendered(toNRGBA(transform.Resize(i.pix, size.Width, size.Height, rf))), nil
	}
	c := *i
	c.output = &size
	c.filter = filter
	return &c, nil
}

func (i *Image) Crop(box nativeimg.Box) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "crop", nil)
	}
	if !box.Within(i.Size()) {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "crop", nil)
	}
	if i.output != nil && i.pix == nil {
		// a crop of a resized view can't be mapped back exactly
		if err := i.render(); err != nil {
			return nil, err
		}
	}
	if i.pix != nil {
		r := image.Rect(box.Left, box.Upper, box.Right, box.Lower).Add(i.pix.Bounds().Min)
		return i.rendered(toNRGBA(transform.Crop(i.pix, r))), nil
	}
	c := *i
	c.region = nativeimg.NewBox(
		i.region.Left+box.Left, i.region.Upper+box.Upper,
		i.region.Left+box.Right, i.region.Upper+box.Lower,
	)
	return &c, nil
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
	if i.pix != nil {
		i.pix = toNRGBA(transform.Resize(i.pix, size.Width, size.Height, rf))
		return nil
	}
	i.output = &size
	i.filter = filter
	return nil
}

// Rotate renders the image and hands the pixels to the pil rotation, which
// shares the counter-clockwise convention.
func (i *Image) Rotate(angle float64, filter nativeimg.Filter, expand bool) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "rotate", nil)
	}
	if _, err := resampleFilter("rotate", filter); err != nil {
		return nil, err
	}
	pix, err := i.pixels()
	if err != nil {
		return nil, err
	}
	r, err := pil.FromImage(pix, i.src.format).Rotate(angle, pil.Bilinear, expand)
	if err != nil {
		return nil, err
	}
	return i.rendered(r.(*pil.Image).NRGBA()), nil
}

func (i *Image) Save(dst any, format string, opts ...nativeimg.EncodeOption) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "save", nil)
	}
	f, err := nativeimg.ResolveFormat(dst, format)
	if err != nil {
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", err)
	}
	pix, err := i.pixels()
	if err != nil {
		return err
	}

	if f != nativeimg.JP2 && f != nativeimg.J2K {
		return pil.FromImage(pix, i.src.format).Save(dst, string(f), opts...)
	}

	o := nativeimg.NewEncodeOptions(opts...)
	jo := jpeg2000.DefaultOptions()
	jo.Lossless = o.Lossless
	if o.Quality > 0 {
		jo.Quality = o.Quality
	}
	if f == nativeimg.J2K {
		jo.Format = jpeg2000.FormatJ2K
	}

	var buf bytes.Buffer
	if err := jpeg2000.Encode(&buf, pix, jo); err != nil {
		return nativeimg.NewBackendError(Name, "save", err)
	}
	return nativeimg.WriteDestination(Name, dst, func(w io.Writer) error {
		if _, err := buf.WriteTo(w); err != nil {
			return nativeimg.NewError(nativeimg.ErrWrite, Name, "save", err)
		}
		return nil
	})
}

func (i *Image) rendered(pix *image.NRGBA) *Image {
	return &Image{src: i.src, region: i.region, filter: i.filter, pix: pix}
}

func (i *Image) pixels() (*image.NRGBA, error) {
	if i.pix == nil {
		if err := i.render(); err != nil {
			return nil, err
		}
	}
	return i.pix, nil
}

// render decodes the pending region. The handle's observable size is the
// same before and after.
func (i *Image) render() error {
	target := i.region.Size()
	if i.output != nil {
		target = *i.output
	}

	level := 0
	if i.src.codestream && i.output != nil {
		level = DesiredResolutionLevel(i.region, target)
		if max := i.src.levels - 1; level > max {
			level = max
		}
		if level < 0 {
			level = 0
		}
	}

	// region in the coordinates of the reduced decode
	scale := 1 << level
	area := image.Rect(
		i.region.Left/scale, i.region.Upper/scale,
		ceilDiv(i.region.Right, scale), ceilDiv(i.region.Lower, scale),
	)

	m, err := i.src.decode(level, area)
	if err != nil {
		return err
	}
	lg.Debugf("aware: decoded %s at level %d (%dx%d) for %s of %s",
		i.src.format, level, m.Bounds().Dx(), m.Bounds().Dy(), target, i.region)

	// a decoder that honoured the area returns just the region, anything
	// else is cut down here
	b := m.Bounds()
	r := b
	if b.Dx() != area.Dx() || b.Dy() != area.Dy() {
		r = area.Add(b.Min).Intersect(b)
	}

	var out image.Image = m
	if r != b {
		out, err = cutter.Crop(m, cutter.Config{
			Width:   r.Dx(),
			Height:  r.Dy(),
			Anchor:  r.Min.Sub(b.Min),
			Mode:    cutter.TopLeft,
			Options: cutter.Copy,
		})
		if err != nil {
			return nativeimg.NewBackendError(Name, "render", err)
		}
	}
	if out.Bounds().Dx() != target.Width || out.Bounds().Dy() != target.Height {
		rf, err := resampleFilter("render", i.filter)
		if err != nil {
			return err
		}
		out = transform.Resize(out, target.Width, target.Height, rf)
	}

	i.pix = toNRGBA(out)
	i.output = nil
	return nil
}

// decodeJ2K is swapped out in tests to observe decode requests.
var decodeJ2K = func(r io.Reader, cfg *jpeg2000.Config) (image.Image, error) {
	return jpeg2000.DecodeConfig(r, cfg)
}

// decode decodes the source at the given resolution level. area is in the
// coordinates of that level; the whole image is decoded when it covers it.
func (s *source) decode(level int, area image.Rectangle) (image.Image, error) {
	var (
		m   image.Image
		err error
	)
	if s.codestream {
		cfg := &jpeg2000.Config{ReduceResolution: level}
		full := image.Rect(0, 0, ceilDiv(s.size.Width, 1<<level), ceilDiv(s.size.Height, 1<<level))
		if area != full && !area.Empty() {
			cfg.DecodeArea = &area
		}
		m, err = decodeJ2K(bytes.NewReader(s.data), cfg)
	} else {
		m, _, err = image.Decode(bytes.NewReader(s.data))
	}
	if err != nil {
		return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "decode", err)
	}
	return m, nil
}

func toNRGBA(m image.Image) *image.NRGBA {
	if n, ok := m.(*image.NRGBA); ok {
		return n
	}
	return pil.FromImage(m, "").NRGBA()
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func resampleFilter(op string, f nativeimg.Filter) (transform.ResampleFilter, error) {
	rf, ok := filters[f]
	if !ok {
		return transform.ResampleFilter{}, &nativeimg.BackendError{Backend: Name, Op: op, Msg: "unknown resample filter"}
	}
	return rf, nil
}
