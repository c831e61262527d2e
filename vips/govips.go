//go:build vips

package vips

import (
	"math"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
)

// Resample filters understood by this backend.
const (
	Nearest   = nativeimg.Filter(vips.KernelNearest)
	Antialias = nativeimg.Filter(vips.KernelLanczos3)
	Bilinear  = nativeimg.Filter(vips.KernelLinear)
	Bicubic   = nativeimg.Filter(vips.KernelCubic)
)

var (
	startOnce sync.Once
	kernels   = map[nativeimg.Filter]vips.Kernel{
		Nearest:   vips.KernelNearest,
		Antialias: vips.KernelLanczos3,
		Bilinear:  vips.KernelLinear,
		Bicubic:   vips.KernelCubic,
	}
)

type Backend struct{}

// Load starts libvips, once per process.
func Load() (nativeimg.Backend, error) {
	startOnce.Do(func() {
		vips.LoggingSettings(logHandler, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			MaxCacheSize: 100,
			MaxCacheMem:  50 * 1024 * 1024,
		})
	})
	return &Backend{}, nil
}

func logHandler(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical, vips.LogLevelWarning:
		lg.Warnf("vips: %s: %s", domain, msg)
	default:
		lg.Debugf("vips: %s: %s", domain, msg)
	}
}

// Shutdown stops libvips. Only call it on process shutdown.
func (b *Backend) Shutdown() {
	vips.Shutdown()
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Version() string {
	return vips.Version
}

func (b *Backend) Filters() nativeimg.Filters {
	return nativeimg.Filters{Nearest: Nearest, Antialias: Antialias, Bilinear: Bilinear, Bicubic: Bicubic}
}

func (b *Backend) Open(src any) (nativeimg.Image, error) {
	data, err := nativeimg.ReadSource(Name, src)
	if err != nil {
		return nil, err
	}
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "open", err)
	}
	return &Image{ref: ref, format: nativeimg.NormalizeFormat(vips.ImageTypes[ref.Format()])}, nil
}

type Image struct {
	ref    *vips.ImageRef
	format string
}

func (i *Image) Backend() string {
	return Name
}

func (i *Image) Size() nativeimg.Size {
	if i.Released() {
		return nativeimg.Size{}
	}
	return nativeimg.NewSize(i.ref.Width(), i.ref.Height())
}

func (i *Image) Format() string {
	return i.format
}

func (i *Image) Released() bool {
	return i.ref == nil
}

func (i *Image) Release() {
	if i.ref != nil {
		i.ref.Close()
		i.ref = nil
	}
}

func (i *Image) Clone() (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "clone", nil)
	}
	return i.derive("clone", func(*vips.ImageRef) error { return nil })
}

func (i *Image) Resize(size nativeimg.Size, filter nativeimg.Filter) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "resize", nil)
	}
	if size.Empty() {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "resize", nil)
	}
	k, err := kernel("resize", filter)
	if err != nil {
		return nil, err
	}
	return i.derive("resize", func(ref *vips.ImageRef) error {
		return resize(ref, size, k)
	})
}

func (i *Image) Crop(box nativeimg.Box) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "crop", nil)
	}
	if !box.Within(i.Size()) {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "crop", nil)
	}
	sz := box.Size()
	return i.derive("crop", func(ref *vips.ImageRef) error {
		return ref.ExtractArea(box.Left, box.Upper, sz.Width, sz.Height)
	})
}

func (i *Image) Thumbnail(max nativeimg.Size, filter nativeimg.Filter) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "thumbnail", nil)
	}
	if max.Empty() {
		return nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "thumbnail", nil)
	}
	k, err := kernel("thumbnail", filter)
	if err != nil {
		return err
	}
	cur := i.Size()
	size := nativeimg.ThumbnailSize(cur, max)
	if size == cur {
		return nil
	}
	if err := resize(i.ref, size, k); err != nil {
		return nativeimg.NewBackendError(Name, "thumbnail", err)
	}
	return nil
}

// Rotate turns the image counter-clockwise. libvips rotates clockwise, so
// right angles map onto the opposite vips.Angle and anything else goes
// through Similarity with the angle negated.
func (i *Image) Rotate(angle float64, filter nativeimg.Filter, expand bool) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "rotate", nil)
	}
	if _, err := kernel("rotate", filter); err != nil {
		return nil, err
	}

	orig := i.Size()
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}

	return i.derive("rotate", func(ref *vips.ImageRef) error {
		var err error
		switch a {
		case 0:
		case 90:
			err = ref.Rotate(vips.Angle270)
		case 180:
			err = ref.Rotate(vips.Angle180)
		case 270:
			err = ref.Rotate(vips.Angle90)
		default:
			err = ref.Similarity(1, -a, &vips.ColorRGBA{}, 0, 0, 0, 0)
		}
		if err != nil || expand {
			return err
		}
		return fitCanvas(ref, orig)
	})
}

func (i *Image) Save(dst any, format string, opts ...nativeimg.EncodeOption) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "save", nil)
	}
	f, err := nativeimg.ResolveFormat(dst, format)
	if err != nil {
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", err)
	}
	o := nativeimg.NewEncodeOptions(opts...)

	var blob []byte
	switch f {
	case nativeimg.JPEG:
		p := vips.NewJpegExportParams()
		if o.Quality > 0 {
			p.Quality = o.Quality
		}
		blob, _, err = i.ref.ExportJpeg(p)
	case nativeimg.PNG:
		blob, _, err = i.ref.ExportPng(vips.NewPngExportParams())
	case nativeimg.GIF:
		blob, _, err = i.ref.ExportGIF(vips.NewGifExportParams())
	case nativeimg.TIFF:
		p := vips.NewTiffExportParams()
		if o.Quality > 0 {
			p.Quality = o.Quality
		}
		blob, _, err = i.ref.ExportTiff(p)
	case nativeimg.WEBP:
		p := vips.NewWebpExportParams()
		p.Lossless = o.Lossless
		if o.Quality > 0 {
			p.Quality = o.Quality
		}
		blob, _, err = i.ref.ExportWebp(p)
	case nativeimg.JP2:
		p := vips.NewJp2kExportParams()
		p.Lossless = o.Lossless
		if o.Quality > 0 {
			p.Quality = o.Quality
		}
		blob, _, err = i.ref.ExportJp2k(p)
	default:
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", nil)
	}
	if err != nil {
		return nativeimg.NewBackendError(Name, "save", err)
	}
	return nativeimg.WriteBlob(Name, dst, blob)
}

func (i *Image) derive(op string, fn func(ref *vips.ImageRef) error) (nativeimg.Image, error) {
	ref, err := i.ref.Copy()
	if err != nil {
		return nil, nativeimg.NewBackendError(Name, op, err)
	}
	if err := fn(ref); err != nil {
		ref.Close()
		return nil, nativeimg.NewBackendError(Name, op, err)
	}
	return &Image{ref: ref, format: i.format}, nil
}

// resize scales ref to exactly size. libvips rounds the output of each axis
// on its own, so a pixel of drift is trimmed or padded away.
func resize(ref *vips.ImageRef, size nativeimg.Size, k vips.Kernel) error {
	hs := float64(size.Width) / float64(ref.Width())
	vs := float64(size.Height) / float64(ref.Height())
	if err := ref.ResizeWithVScale(hs, vs, k); err != nil {
		return err
	}
	return fitCanvas(ref, size)
}

// fitCanvas centres ref on a canvas of size, cropping overflow and filling
// any gap with black.
func fitCanvas(ref *vips.ImageRef, size nativeimg.Size) error {
	w, h := ref.Width(), ref.Height()
	if w == size.Width && h == size.Height {
		return nil
	}
	cw, ch := max(w, size.Width), max(h, size.Height)
	if cw != w || ch != h {
		if err := ref.Embed((cw-w)/2, (ch-h)/2, cw, ch, vips.ExtendBlack); err != nil {
			return err
		}
	}
	return ref.ExtractArea((cw-size.Width)/2, (ch-size.Height)/2, size.Width, size.Height)
}

func kernel(op string, f nativeimg.Filter) (vips.Kernel, error) {
	k, ok := kernels[f]
	if !ok {
		return 0, &nativeimg.BackendError{Backend: Name, Op: op, Msg: "unknown resample filter"}
	}
	return k, nil
}
