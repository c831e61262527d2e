// Package backends wires every engine into a single default registry.
//
//	b, err := backends.Resolve("graphicsmagick")
//	im, err := b.Open("photo.jpg")
package backends

import (
	"errors"

	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/aware"
	"github.com/pressly/nativeimg/magick"
	"github.com/pressly/nativeimg/opencv"
	"github.com/pressly/nativeimg/pil"
	"github.com/pressly/nativeimg/vips"
)

// Default knows every engine plus their aliases.
var Default = New()

var errNoJava = errors.New("no Java imaging runtime, use pil or aware instead")

// loadJava keeps "java" a known name: it reports unavailable, never unknown.
func loadJava() (nativeimg.Backend, error) {
	return nil, nativeimg.NewError(nativeimg.ErrBackendUnavailable, "java", "load", errNoJava)
}

// New builds a registry with all engines registered. Nothing is loaded until
// a name is resolved.
func New() *nativeimg.Registry {
	r := nativeimg.NewRegistry()

	r.Register(pil.Name, pil.Load)
	r.Register(magick.Name, magick.Load)
	r.Register(aware.Name, aware.Load)
	r.Register(vips.Name, vips.Load)
	r.Register(opencv.Name, opencv.Load)
	r.Register("java", loadJava)

	r.Alias("imaging", pil.Name)
	r.Alias("graphicsmagick", magick.Name)
	r.Alias("imagemagick", magick.Name)
	r.Alias("jpeg2000", aware.Name)
	r.Alias("libvips", vips.Name)
	r.Alias("gocv", opencv.Name)

	r.Deprecate("aware_cext", aware.Name)

	return r
}

func Resolve(name string) (nativeimg.Backend, error) {
	return Default.Resolve(name)
}

// Available resolves every registered engine and returns the ones that
// loaded. Any error other than unavailability is returned.
func Available() ([]nativeimg.Backend, error) {
	return available(Default)
}

func available(r *nativeimg.Registry) ([]nativeimg.Backend, error) {
	var out []nativeimg.Backend
	for _, name := range r.Names() {
		b, err := r.Resolve(name)
		if errors.Is(err, nativeimg.ErrBackendUnavailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
