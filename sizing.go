package nativeimg

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ThumbnailSize scales cur down so that it fits inside bound, keeping the
// aspect ratio. Width is fitted first, then height from the updated values,
// and neither side drops below one pixel.
func ThumbnailSize(cur, bound Size) Size {
	w, h := cur.Width, cur.Height
	if w > bound.Width {
		h = max(round(float64(h)*float64(bound.Width)/float64(w)), 1)
		w = bound.Width
	}
	if h > bound.Height {
		w = max(round(float64(w)*float64(bound.Height)/float64(h)), 1)
		h = bound.Height
	}
	return Size{Width: w, Height: h}
}

// MaxDimension bounds every side accepted by ParseSize.
var MaxDimension = 1 << 14

// Sizing operations understood by SizeIt.
const (
	OpExact   = "exact"
	OpContain = "contain"
	OpCover   = "cover"
)

// Sizing describes a crop/resize request, usually parsed from a URL query
// such as "s=300x200&op=cover&fp=0.5,0.3".
type Sizing struct {
	Size       Size       // requested size, a zero side is derived from the aspect ratio
	CropBox    FloatBox   // initial crop, as fractions of the source
	FocalPoint FloatPoint // cover crop centre, as fractions

	Op      string
	Format  string
	Quality int
	Filter  string
	Backend string

	// MaxSize caps every side SizeIt resizes to, intermediate steps
	// included. Zero means no cap.
	MaxSize int
}

func NewSizing() *Sizing {
	return &Sizing{Op: OpExact, Quality: 75}
}

func NewSizingFromQuery(q string) (*Sizing, error) {
	sz := NewSizing()
	if err := sz.SetFromQuery(q); err != nil {
		return nil, err
	}
	return sz, nil
}

func (sz *Sizing) SetFromQuery(q string) error {
	query, err := url.ParseQuery(q)
	if err != nil {
		return err
	}

	size := firstOf(query, "s", "size")
	if size != "" && size != "x" {
		sz.Size, err = ParseSize(size)
		if err != nil {
			return err
		}
	}

	if op := query.Get("op"); op != "" {
		switch op {
		case OpExact, OpContain, OpCover:
			sz.Op = op
		default:
			return fmt.Errorf("nativeimg: unknown sizing op %q", op)
		}
	}

	if cb := firstOf(query, "cb", "box"); cb != "" {
		sz.CropBox, err = ParseFloatBox(cb)
		if err != nil {
			return err
		}
	}

	if fp := firstOf(query, "fp", "focal"); fp != "" {
		sz.FocalPoint, err = ParseFloatPoint(fp)
		if err != nil {
			return err
		}
	}

	if qs := query.Get("q"); qs != "" {
		sz.Quality, err = strconv.Atoi(qs)
		if err != nil {
			return err
		}
	}

	sz.Format = query.Get("format")
	sz.Filter = query.Get("filter")
	sz.Backend = query.Get("backend")
	return nil
}

func (sz *Sizing) ToQuery() url.Values {
	u := url.Values{}
	if sz.Size != (Size{}) {
		u.Add("s", sz.Size.String())
	}
	if sz.Op != "" && sz.Op != OpExact {
		u.Add("op", sz.Op)
	}
	if !sz.CropBox.IsZero() {
		u.Add("cb", sz.CropBox.String())
	}
	if sz.FocalPoint != (FloatPoint{}) {
		u.Add("fp", sz.FocalPoint.String())
	}
	if sz.Quality != 0 {
		u.Add("q", strconv.Itoa(sz.Quality))
	}
	if sz.Format != "" {
		u.Add("format", sz.Format)
	}
	if sz.Filter != "" {
		u.Add("filter", sz.Filter)
	}
	if sz.Backend != "" {
		u.Add("backend", sz.Backend)
	}
	return u
}

// CalcCropBox converts the fractional crop box into pixels of src. ok is false
// when no crop was requested.
func (sz *Sizing) CalcCropBox(src Size) (box Box, ok bool, err error) {
	if sz.CropBox.IsZero() {
		return Box{}, false, nil
	}
	w, h := float64(src.Width), float64(src.Height)
	box = Box{
		Left:  round(sz.CropBox.Min.X * w),
		Upper: round(sz.CropBox.Min.Y * h),
		Right: round(sz.CropBox.Max.X * w),
		Lower: round(sz.CropBox.Max.Y * h),
	}
	if !box.Within(src) {
		return Box{}, false, NewError(ErrInvalidRegion, "", "crop", fmt.Errorf("crop box %s outside %s", box, src))
	}
	return box, true, nil
}

// CalcResizeRect returns the size to resize src to and, for cover, the box to
// crop from the resized image afterwards.
func (sz *Sizing) CalcResizeRect(src Size) (Size, *Box) {
	switch sz.Op {
	case OpContain:
		return sz.containOp(src), nil
	case OpCover:
		return sz.coverOp(src)
	default:
		return sz.exactOp(src), nil
	}
}

func (sz *Sizing) exactOp(src Size) Size {
	switch {
	case sz.Size.Width == 0 && sz.Size.Height == 0:
		return src
	case sz.Size.Width == 0:
		return sz.scaleToHeight(src, sz.Size.Height)
	case sz.Size.Height == 0:
		return sz.scaleToWidth(src, sz.Size.Width)
	}
	return sz.Size
}

func (sz *Sizing) containOp(src Size) Size {
	bound := sz.Size
	if bound.Width == 0 {
		bound.Width = math.MaxInt32
	}
	if bound.Height == 0 {
		bound.Height = math.MaxInt32
	}
	return ThumbnailSize(src, bound)
}

func (sz *Sizing) coverOp(src Size) (Size, *Box) {
	if sz.Size.Width == 0 || sz.Size.Height == 0 {
		return sz.exactOp(src), nil
	}

	fp := sz.FocalPoint
	if fp == (FloatPoint{}) {
		fp = FloatPoint{0.5, 0.5}
	}

	scale := math.Max(float64(sz.Size.Width)/float64(src.Width), float64(sz.Size.Height)/float64(src.Height))
	rr := Size{
		Width:  max(round(float64(src.Width)*scale), sz.Size.Width),
		Height: max(round(float64(src.Height)*scale), sz.Size.Height),
	}

	x := clamp(round(float64(rr.Width)*fp.X-float64(sz.Size.Width)*0.5), 0, rr.Width-sz.Size.Width)
	y := clamp(round(float64(rr.Height)*fp.Y-float64(sz.Size.Height)*0.5), 0, rr.Height-sz.Size.Height)
	return rr, &Box{Left: x, Upper: y, Right: x + sz.Size.Width, Lower: y + sz.Size.Height}
}

func (sz *Sizing) scaleToWidth(src Size, w int) Size {
	return Size{Width: w, Height: max(round(float64(w)/src.AspectRatio()), 1)}
}

func (sz *Sizing) scaleToHeight(src Size, h int) Size {
	return Size{Width: max(round(float64(h)*src.AspectRatio()), 1), Height: h}
}

// SizeIt applies sz to img and returns the result as a new image; img itself
// is left as it was. Intermediate images are released.
func SizeIt(img Image, sz *Sizing, filter Filter) (Image, error) {
	cur, err := img.Clone()
	if err != nil {
		return nil, err
	}

	step := func(next Image, err error) error {
		if err != nil {
			return err
		}
		cur.Release()
		cur = next
		return nil
	}

	box, ok, err := sz.CalcCropBox(cur.Size())
	if err == nil && ok {
		err = step(cur.Crop(box))
	}
	if err == nil {
		resize, final := sz.CalcResizeRect(cur.Size())
		if resize != cur.Size() {
			err = sz.checkLimit(resize)
			if err == nil {
				err = step(cur.Resize(resize, filter))
			}
		}
		if err == nil && final != nil {
			err = step(cur.Crop(*final))
		}
	}
	if err != nil {
		cur.Release()
		return nil, err
	}
	return cur, nil
}

func (sz *Sizing) checkLimit(s Size) error {
	if sz.MaxSize > 0 && (s.Width > sz.MaxSize || s.Height > sz.MaxSize) {
		return NewError(ErrTooLarge, "", "size", fmt.Errorf("%s over %d", s, sz.MaxSize))
	}
	return nil
}

// ParseSize reads "WxH"; either side may be empty or zero to be derived from
// the aspect ratio. Sides must be finite and at most MaxDimension.
func ParseSize(q string) (Size, error) {
	wh := strings.Split(q, "x")
	if len(wh) != 2 {
		return Size{}, fmt.Errorf("nativeimg: invalid size %q", q)
	}

	var s Size
	for i, part := range wh {
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return Size{}, fmt.Errorf("nativeimg: invalid size %q: %w", q, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return Size{}, fmt.Errorf("nativeimg: invalid size %q", q)
		}
		if f > float64(MaxDimension) {
			return Size{}, NewError(ErrTooLarge, "", "size", fmt.Errorf("%q over %d", q, MaxDimension))
		}
		if i == 0 {
			s.Width = int(f)
		} else {
			s.Height = int(f)
		}
	}
	return s, nil
}

type FloatPoint struct {
	X, Y float64
}

// ParseFloatPoint reads "x,y". Values above 1 are taken as percentages.
func ParseFloatPoint(q string) (FloatPoint, error) {
	xy := strings.Split(q, ",")
	if len(xy) != 2 {
		return FloatPoint{}, fmt.Errorf("nativeimg: invalid point %q", q)
	}
	x, err := strconv.ParseFloat(xy[0], 64)
	if err != nil {
		return FloatPoint{}, err
	}
	y, err := strconv.ParseFloat(xy[1], 64)
	if err != nil {
		return FloatPoint{}, err
	}
	if x > 1 {
		x = x / 100.0
	}
	if y > 1 {
		y = y / 100.0
	}
	return FloatPoint{x, y}, nil
}

func (f FloatPoint) String() string {
	return fmt.Sprintf("%1.2f,%1.2f", f.X, f.Y)
}

type FloatBox struct {
	Min, Max FloatPoint
}

func ParseFloatBox(q string) (FloatBox, error) {
	mm := strings.Split(q, ",")
	if len(mm) != 4 {
		return FloatBox{}, fmt.Errorf("nativeimg: invalid box %q", q)
	}
	lo, err := ParseFloatPoint(mm[0] + "," + mm[1])
	if err != nil {
		return FloatBox{}, err
	}
	hi, err := ParseFloatPoint(mm[2] + "," + mm[3])
	if err != nil {
		return FloatBox{}, err
	}
	return FloatBox{lo, hi}, nil
}

func (f FloatBox) IsZero() bool {
	return f == FloatBox{}
}

func (f FloatBox) String() string {
	return f.Min.String() + "," + f.Max.String()
}

// round is half away from zero.
func round(in float64) int {
	if in < 0 {
		return int(math.Ceil(in - 0.5))
	}
	return int(math.Floor(in + 0.5))
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}
