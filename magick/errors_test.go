package magick

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pressly/nativeimg"
)

func TestOpenErrorKind(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"ERROR_FILE_OPEN: unable to open image `/tmp/x.jpg': No such file or directory @ error/blob.c/OpenBlob/2924", nativeimg.ErrNotFound},
		{"FATAL_ERROR_FILE_OPEN: unable to open file", nativeimg.ErrNotFound},
		{"ERROR_BLOB: unable to open image `x': No such file or directory", nativeimg.ErrNotFound},
		{"ERROR_MISSING_DELEGATE: no decode delegate for this image format `' @ error/blob.c/BlobToImage/458", nativeimg.ErrDecode},
		{"ERROR_CORRUPT_IMAGE: Not a JPEG file: starts with 0x74 0x68", nativeimg.ErrDecode},
		{"zero-length blob not permitted", nativeimg.ErrDecode},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, openErrorKind(errors.New(tt.msg)), tt.msg)
	}
}
