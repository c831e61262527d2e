//go:build !vips

package vips

import "github.com/pressly/nativeimg"

func Load() (nativeimg.Backend, error) {
	return nil, nativeimg.Unavailable(Name, BuildTag)
}
