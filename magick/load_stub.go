//go:build !imagick

package magick

import "github.com/pressly/nativeimg"

func Load() (nativeimg.Backend, error) {
	return nil, nativeimg.Unavailable(Name, BuildTag)
}
