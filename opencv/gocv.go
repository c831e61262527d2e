//go:build gocv

package opencv

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/pkg/errors"
	"github.com/pressly/nativeimg"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Resample filters understood by this backend. Antialias is area
// interpolation, which is what OpenCV recommends for shrinking.
const (
	Nearest   = nativeimg.Filter(gocv.InterpolationNearestNeighbor)
	Antialias = nativeimg.Filter(gocv.InterpolationArea)
	Bilinear  = nativeimg.Filter(gocv.InterpolationLinear)
	Bicubic   = nativeimg.Filter(gocv.InterpolationCubic)
)

var (
	interpolations = map[nativeimg.Filter]gocv.InterpolationFlags{
		Nearest:   gocv.InterpolationNearestNeighbor,
		Antialias: gocv.InterpolationArea,
		Bilinear:  gocv.InterpolationLinear,
		Bicubic:   gocv.InterpolationCubic,
	}

	fileExts = map[nativeimg.Format]gocv.FileExt{
		nativeimg.JPEG: gocv.JPEGFileExt,
		nativeimg.PNG:  gocv.PNGFileExt,
		nativeimg.TIFF: gocv.FileExt(".tiff"),
		nativeimg.BMP:  gocv.FileExt(".bmp"),
		nativeimg.WEBP: gocv.FileExt(".webp"),
		nativeimg.JP2:  gocv.FileExt(".jp2"),
	}

	errEmptyMat = errors.New("decoded matrix is empty")
)

type Backend struct{}

func Load() (nativeimg.Backend, error) {
	return &Backend{}, nil
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Version() string {
	return "gocv " + gocv.Version() + " / opencv " + gocv.OpenCVVersion()
}

func (b *Backend) Filters() nativeimg.Filters {
	return nativeimg.Filters{Nearest: Nearest, Antialias: Antialias, Bilinear: Bilinear, Bicubic: Bicubic}
}

func (b *Backend) Open(src any) (nativeimg.Image, error) {
	data, err := nativeimg.ReadSource(Name, src)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "open", errors.Wrap(err, "imdecode"))
	}
	if mat.Empty() {
		mat.Close()
		return nil, nativeimg.NewError(nativeimg.ErrDecode, Name, "open", errEmptyMat)
	}

	// IMDecode doesn't report the container, sniff it from the header
	format := "unknown"
	if _, f, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		format = f
	}
	return &Image{mat: &mat, format: nativeimg.NormalizeFormat(format)}, nil
}

type Image struct {
	mat    *gocv.Mat
	format string
}

func (i *Image) Backend() string {
	return Name
}

func (i *Image) Size() nativeimg.Size {
	if i.Released() {
		return nativeimg.Size{}
	}
	return nativeimg.NewSize(i.mat.Cols(), i.mat.Rows())
}

func (i *Image) Format() string {
	return i.format
}

func (i *Image) Released() bool {
	return i.mat == nil
}

func (i *Image) Release() {
	if i.mat != nil {
		i.mat.Close()
		i.mat = nil
	}
}

func (i *Image) wrap(m gocv.Mat) *Image {
	return &Image{mat: &m, format: i.format}
}

func (i *Image) Clone() (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "clone", nil)
	}
	return i.wrap(i.mat.Clone()), nil
}

func (i *Image) Resize(size nativeimg.Size, filter nativeimg.Filter) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "resize", nil)
	}
	if size.Empty() {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "resize", nil)
	}
	interp, err := interpolation("resize", filter)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.Resize(*i.mat, &dst, image.Pt(size.Width, size.Height), 0, 0, interp)
	return i.wrap(dst), nil
}

func (i *Image) Crop(box nativeimg.Box) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "crop", nil)
	}
	if !box.Within(i.Size()) {
		return nil, nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "crop", nil)
	}
	// Region shares memory with the parent, Clone detaches it
	region := i.mat.Region(image.Rect(box.Left, box.Upper, box.Right, box.Lower))
	defer region.Close()
	return i.wrap(region.Clone()), nil
}

func (i *Image) Thumbnail(max nativeimg.Size, filter nativeimg.Filter) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "thumbnail", nil)
	}
	if max.Empty() {
		return nativeimg.NewError(nativeimg.ErrInvalidRegion, Name, "thumbnail", nil)
	}
	interp, err := interpolation("thumbnail", filter)
	if err != nil {
		return err
	}
	cur := i.Size()
	size := nativeimg.ThumbnailSize(cur, max)
	if size == cur {
		return nil
	}
	dst := gocv.NewMat()
	gocv.Resize(*i.mat, &dst, image.Pt(size.Width, size.Height), 0, 0, interp)
	i.mat.Close()
	i.mat = &dst
	return nil
}

// Rotate turns the image counter-clockwise, which is also the sign
// convention of GetRotationMatrix2D.
func (i *Image) Rotate(angle float64, filter nativeimg.Filter, expand bool) (nativeimg.Image, error) {
	if i.Released() {
		return nil, nativeimg.NewError(nativeimg.ErrReleased, Name, "rotate", nil)
	}
	interp, err := interpolation("rotate", filter)
	if err != nil {
		return nil, err
	}

	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}

	src := i.mat
	var turned *gocv.Mat
	switch a {
	case 0:
		m := i.mat.Clone()
		turned = &m
	case 90, 180, 270:
		code := map[float64]gocv.RotateFlag{
			90:  gocv.Rotate90CounterClockwise,
			180: gocv.Rotate180Clockwise,
			270: gocv.Rotate90Clockwise,
		}[a]
		m := gocv.NewMat()
		gocv.Rotate(*src, &m, code)
		turned = &m
	}
	if turned != nil {
		if expand || (turned.Cols() == src.Cols() && turned.Rows() == src.Rows()) {
			return i.wrap(*turned), nil
		}
		defer turned.Close()
		src = turned
		a = 0
	}

	w, h := float64(i.mat.Cols()), float64(i.mat.Rows())
	out := image.Pt(i.mat.Cols(), i.mat.Rows())
	if expand {
		rad := a * math.Pi / 180
		sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
		out = image.Pt(int(math.Ceil(w*cos+h*sin)), int(math.Ceil(w*sin+h*cos)))
	}

	sw, sh := float64(src.Cols()), float64(src.Rows())
	rot := gocv.GetRotationMatrix2D(image.Pt(int(sw/2), int(sh/2)), a, 1)
	defer rot.Close()
	// recentre on the output canvas
	rot.SetDoubleAt(0, 2, rot.GetDoubleAt(0, 2)+float64(out.X)/2-float64(int(sw/2)))
	rot.SetDoubleAt(1, 2, rot.GetDoubleAt(1, 2)+float64(out.Y)/2-float64(int(sh/2)))

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(*src, &dst, rot, out, interp, gocv.BorderConstant, color.RGBA{})
	return i.wrap(dst), nil
}

func (i *Image) Save(dst any, format string, opts ...nativeimg.EncodeOption) error {
	if i.Released() {
		return nativeimg.NewError(nativeimg.ErrReleased, Name, "save", nil)
	}
	f, err := nativeimg.ResolveFormat(dst, format)
	if err != nil {
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", err)
	}
	ext, ok := fileExts[f]
	if !ok {
		return nativeimg.NewError(nativeimg.ErrUnknownFormat, Name, "save", nil)
	}

	o := nativeimg.NewEncodeOptions(opts...)
	var params []int
	if o.Quality > 0 {
		switch f {
		case nativeimg.JPEG:
			params = append(params, int(gocv.IMWriteJpegQuality), o.Quality)
		case nativeimg.WEBP:
			params = append(params, int(gocv.IMWriteWebpQuality), o.Quality)
		}
	}
	if o.Lossless && f == nativeimg.WEBP {
		params = append(params, int(gocv.IMWriteWebpQuality), 101)
	}

	buf, err := gocv.IMEncodeWithParams(ext, *i.mat, params)
	if err != nil {
		return nativeimg.NewBackendError(Name, "save", errors.Wrapf(err, "imencode %s", ext))
	}
	defer buf.Close()
	return nativeimg.WriteBlob(Name, dst, buf.GetBytes())
}

func interpolation(op string, f nativeimg.Filter) (gocv.InterpolationFlags, error) {
	flag, ok := interpolations[f]
	if !ok {
		return 0, &nativeimg.BackendError{Backend: Name, Op: op, Msg: "unknown resample filter"}
	}
	return flag, nil
}
