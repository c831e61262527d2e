package magick

import (
	"errors"
	"strings"

	"github.com/pressly/nativeimg"
)

var errWandFailure = errors.New("unable to request a MagickWand")

// openErrorKind classifies a failed read by the exception text MagickWand
// reports, which starts with the exception type name.
func openErrorKind(err error) error {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "ERROR_FILE_OPEN"),
		strings.HasPrefix(msg, "FATAL_ERROR_FILE_OPEN"),
		strings.Contains(msg, "unable to open image"),
		strings.Contains(msg, "No such file or directory"):
		return nativeimg.ErrNotFound
	default:
		return nativeimg.ErrDecode
	}
}
