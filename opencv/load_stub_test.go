//go:build !gocv

package opencv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pressly/nativeimg"
)

func TestLoadWithoutTag(t *testing.T) {
	b, err := Load()
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, nativeimg.ErrBackendUnavailable))
	assert.Contains(t, err.Error(), `"gocv"`)
}
