// Package vips is the libvips backend, built on davidbyttow/govips. The
// adapter needs the "vips" build tag and libvips installed; without them
// Load reports the backend as unavailable.
package vips

const (
	Name     = "vips"
	BuildTag = "vips"
)
