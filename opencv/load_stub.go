//go:build !gocv

package opencv

import "github.com/pressly/nativeimg"

func Load() (nativeimg.Backend, error) {
	return nil, nativeimg.Unavailable(Name, BuildTag)
}
