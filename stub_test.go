package nativeimg

import (
	"fmt"
	"io"
	"sync"
)

// stubBackend records what is asked of it without touching any pixels.
type stubBackend struct {
	name string
	mu   sync.Mutex
	open int
}

func (b *stubBackend) Name() string     { return b.name }
func (b *stubBackend) Version() string  { return "0" }
func (b *stubBackend) Filters() Filters { return Filters{Nearest: 0, Antialias: 1, Bilinear: 2, Bicubic: 3} }

func (b *stubBackend) Open(src any) (Image, error) {
	data, err := ReadSource(b.name, src)
	if err != nil {
		return nil, err
	}
	var w, h int
	if _, err := fmt.Sscanf(string(data), "%dx%d", &w, &h); err != nil {
		return nil, NewError(ErrDecode, b.name, "open", err)
	}
	b.mu.Lock()
	b.open++
	b.mu.Unlock()
	im := newStubImage(NewSize(w, h))
	im.backend = b.name
	return im, nil
}

type stubImage struct {
	backend  string
	size     Size
	ops      []string
	failCrop bool
	released bool
}

func newStubImage(s Size) *stubImage {
	return &stubImage{backend: "stub", size: s}
}

func (im *stubImage) derive(op string, s Size) *stubImage {
	ops := append(append([]string{}, im.ops...), op)
	return &stubImage{backend: im.backend, size: s, ops: ops, failCrop: im.failCrop}
}

func (im *stubImage) Backend() string { return im.backend }
func (im *stubImage) Size() Size      { return im.size }
func (im *stubImage) Format() string  { return "jpeg" }

func (im *stubImage) Resize(s Size, _ Filter) (Image, error) {
	return im.derive("resize "+s.String(), s), nil
}

func (im *stubImage) Crop(box Box) (Image, error) {
	if im.failCrop {
		return nil, &BackendError{Backend: im.backend, Op: "crop", Msg: "boom"}
	}
	if !box.Within(im.size) {
		return nil, NewError(ErrInvalidRegion, im.backend, "crop", nil)
	}
	return im.derive("crop "+box.String(), box.Size()), nil
}

func (im *stubImage) Thumbnail(max Size, _ Filter) error {
	im.size = ThumbnailSize(im.size, max)
	im.ops = append(im.ops, "thumbnail "+im.size.String())
	return nil
}

func (im *stubImage) Rotate(angle float64, _ Filter, expand bool) (Image, error) {
	s := im.size
	if expand && int(angle)%180 != 0 {
		s = NewSize(s.Height, s.Width)
	}
	return im.derive(fmt.Sprintf("rotate %g", angle), s), nil
}

func (im *stubImage) Clone() (Image, error) {
	return im.derive("clone", im.size), nil
}

func (im *stubImage) Save(dst any, format string, _ ...EncodeOption) error {
	if _, err := ResolveFormat(dst, format); err != nil {
		return err
	}
	return WriteDestination(im.backend, dst, func(w io.Writer) error {
		_, err := io.WriteString(w, im.size.String())
		return err
	})
}

func (im *stubImage) Release()       { im.released = true }
func (im *stubImage) Released() bool { return im.released }
