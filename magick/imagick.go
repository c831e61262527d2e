//go:build imagick

package magick

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
	"gopkg.in/gographics/imagick.v3/imagick"
)

// Resample filters understood by this backend.
const (
	Nearest   = nativeimg.Filter(imagick.FILTER_POINT)
	Antialias = nativeimg.Filter(imagick.FILTER_LANCZOS)
	Bilinear  = nativeimg.Filter(imagick.FILTER_TRIANGLE)
	Bicubic   = nativeimg.Filter(imagick.FILTER_CUBIC)
)

var (
	initOnce sync.Once
	filters  = map[nativeimg.Filter]imagick.FilterType{
		Nearest:   imagick.FILTER_POINT,
		Antialias: imagick.FILTER_LANCZOS,
		Bilinear:  imagick.FILTER_TRIANGLE,
		Bicubic:   imagick.FILTER_CUBIC,
	}
)

type Backend struct {
	tmpDir string
}

// Load is the registry loader. MAGICK_TMPDIR, when set, is swept of stale
// magick files first.
func Load() (nativeimg.Backend, error) {
	return New(os.Getenv("MAGICK_TMPDIR"))
}

// New initialises MagickWand, once per process.
func New(tmpDir string) (*Backend, error) {
	b := &Backend{}
	if tmpDir != "" {
		if err := os.MkdirAll(tmpDir, 0755); err != nil {
			return nil, err
		}
		b.tmpDir = tmpDir
		os.Setenv("MAGICK_TMPDIR", tmpDir)
		if err := b.SweepTmpDir(); err != nil {
			lg.Warnf("magick: %s", err)
		}
	}
	initOnce.Do(imagick.Initialize)
	return b, nil
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Version() string {
	v, _ := imagick.GetVersion()
	return v
}

func (b *Backend) Filters() nativeimg.Filters {
	return nativeimg.Filters{Nearest: Nearest, Antialias: Antialias, Bilinear: Bilinear, Bicubic: Bicubic}
}

// Terminate tears MagickWand down. No wand may be used afterwards, so only
// call it on process shutdown.
func (b *Backend) Terminate() {
	imagick.Terminate()
	b.SweepTmpDir()
}

func (b *Backend) SweepTmpDir() error {
	if b.tmpDir == "" {
		return nil
	}
	return filepath.Walk(
		b.tmpDir,
		func(path string, info os.FileInfo, err error) error {
			if b.tmpDir == path {
				return nil // skip the root
			}
			if strings.Contains(filepath.Base(path), "magick") {
				if err = os.Remove(path); err != nil {
					return fmt.Errorf("failed to sweep engine tmpdir %s, because: %s", path, err)
				}
			}
			return nil
		},
	)
}

// Open reads paths and files through MagickWand directly. Other readers
// and byte slices are read as a blob.
func (b *Backend) Open(src any) (nativeimg.Image, error) {
	read, err := reader(src)
	if err != nil {
		return nil, err
	}

	mw := imagick.NewMagickWand()
	if !mw.IsVerified() {
		return nil, nativeimg.NewBackendError(Name, "open", errWandFailure)
	}
	if err := read(mw); err != nil {
		mw.Destroy()
		return nil, nativeimg.NewError(openErrorKind(err), Name, "open", err)
	}
	mw.SetFirstIterator()

	return &Image{mw: mw, format: nativeimg.NormalizeFormat(mw.GetImageFormat())}, nil
}

func reader(src any) (func(mw *imagick.MagickWand) error, error) {
	switch s := src.(type) {
	case string:
		if err := nativeimg.CheckPath(Name, s); err != nil {
			return nil, err
		}
		return func(mw *imagick.MagickWand) error { return mw.ReadImage(s) }, nil
	case *os.File:
		if s != nil {
			return func(mw *imagick.MagickWand) error { return mw.ReadImageFile(s) }, nil
		}
	}

	data, err := nativeimg.ReadSource(Name, src)
	if err != nil {
		return nil, err
	}
	return func(mw *imagick.MagickWand) error { return mw.ReadImageBlob(data) }, nil
}

type Image struct {
	mw     *imagick.MagickWand
	format string
}

func (i *Image) Backend() string {
	return Name
}

func (i *Image) Size() nativeimg.Size {
	if i.Released() {
		return nativeimg.Size{}
	}
	return nativeimg.NewSize(int(i.mw.GetImageWidth()), int(i.mw.GetImageHeight()))
}

func (i *Image) Format() string {
	return i.format
}

func (i *Image) Released() bool {
	return i.mw == nil
}

func (i *Image) Release() {
	if i.mw != nil {
		i.mw.Destroy()
		i.mw = nil
	}
}

func (i *Image) Clone() (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "clone", nil)
	}
	return &Image{mw: i.mw.Clone(), format: i.format}, nil
}

func (i *Image) Resize(size nativeimg.Size, filter nativeimg.Filter) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "resize", nil)
	}
	if size.Empty() {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "resize", nil)
	}
	ft, err := filterType("resize", filter)
	if err != nil {
		return nil, err
	}
	return i.derive("resize", func(mw *imagick.MagickWand) error {
		return mw.ResizeImage(uint(size.Width), uint(size.Height), ft)
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
	return i.derive("crop", func(mw *imagick.MagickWand) error {
		if err := mw.CropImage(uint(sz.Width), uint(sz.Height), box.Left, box.Upper); err != nil {
			return err
		}
		return mw.ResetImagePage("")
	})
}

func (i *Image) Thumbnail(max nativeimg.Size, filter nativeimg.Filter) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "thumbnail", nil)
	}
	if max.Empty() {
		return nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "thumbnail", nil)
	}
	ft, err := filterType("thumbnail", filter)
	if err != nil {
		return err
	}
	cur := i.Size()
	size := nativeimg.ThumbnailSize(cur, max)
	i.mw, err = eachFrame(i.mw, func(mw *imagick.MagickWand) error {
		if err := mw.StripImage(); err != nil {
			return err
		}
		if size == cur {
			return nil
		}
		return mw.ResizeImage(uint(size.Width), uint(size.Height), ft)
	})
	if err != nil {
		return nativeimg.NewBackendError(Name, "thumbnail", err)
	}
	return nil
}

// Rotate turns the image counter-clockwise. MagickWand rotates clockwise and
// always grows the canvas, so the angle is negated and, without expand, the
// result is cut back to the original extent around its centre.
func (i *Image) Rotate(angle float64, filter nativeimg.Filter, expand bool) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "rotate", nil)
	}
	if _, err := filterType("rotate", filter); err != nil {
		return nil, err
	}

	orig := i.Size()
	bg := imagick.NewPixelWand()
	defer bg.Destroy()
	bg.SetColor("none")

	return i.derive("rotate", func(mw *imagick.MagickWand) error {
		if err := mw.RotateImage(bg, -angle); err != nil {
			return err
		}
		if err := mw.ResetImagePage(""); err != nil {
			return err
		}
		if expand {
			return nil
		}
		w, h := int(mw.GetImageWidth()), int(mw.GetImageHeight())
		if err := mw.SetImageBackgroundColor(bg); err != nil {
			return err
		}
		x := int(math.Floor(float64(w-orig.Width) / 2))
		y := int(math.Floor(float64(h-orig.Height) / 2))
		return mw.ExtentImage(uint(orig.Width), uint(orig.Height), x, y)
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

	mw := i.mw.Clone()
	defer mw.Destroy()

	if err := mw.SetImageFormat(string(f)); err != nil {
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", err)
	}
	if o.Quality > 0 {
		if err := mw.SetImageCompressionQuality(uint(o.Quality)); err != nil {
			return nativeimg.NewBackendError(Name, "save", err)
		}
	}
	if o.Lossless {
		if err := mw.SetOption("webp:lossless", "true"); err != nil {
			return nativeimg.NewBackendError(Name, "save", err)
		}
	}

	var blob []byte
	if f == nativeimg.GIF && mw.GetNumberImages() > 1 {
		blob, err = mw.GetImagesBlob()
	} else {
		blob, err = mw.GetImageBlob()
	}
	if err != nil {
		return nativeimg.NewBackendError(Name, "save", err)
	}
	return nativeimg.WriteBlob(Name, dst, blob)
}

// derive runs fn over every frame of a copy of the wand.
func (i *Image) derive(op string, fn func(mw *imagick.MagickWand) error) (nativeimg.Image, error) {
	mw, err := eachFrame(i.mw.Clone(), fn)
	if err != nil {
		mw.Destroy()
		return nil, nativeimg.NewBackendError(Name, op, err)
	}
	return &Image{mw: mw, format: i.format}, nil
}

// eachFrame applies fn to every image in the wand. Animations are coalesced
// first so each frame is a full canvas, which replaces the wand; the one
// returned is always the live one.
func eachFrame(mw *imagick.MagickWand, fn func(mw *imagick.MagickWand) error) (*imagick.MagickWand, error) {
	if mw.GetNumberImages() > 1 {
		coalesced := mw.CoalesceImages()
		mw.Destroy()
		mw = coalesced
	}
	mw.SetFirstIterator()
	for n := true; n; n = mw.NextImage() {
		if err := fn(mw); err != nil {
			return mw, err
		}
	}
	mw.SetFirstIterator()
	return mw, nil
}

func filterType(op string, f nativeimg.Filter) (imagick.FilterType, error) {
	ft, ok := filters[f]
	if !ok {
		return 0, &nativeimg.BackendError{Backend: Name, Op: op, Msg: "unknown resample filter"}
	}
	return ft, nil
}
