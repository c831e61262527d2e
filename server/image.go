package server

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/armon/go-metrics"
	"github.com/pkg/errors"
	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
)

type Image struct {
	Key         string `json:"key"`
	SrcURL      string `json:"src_url,omitempty"`
	Backend     string `json:"backend"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	SizingQuery string `json:"sizing,omitempty"`
	Data        []byte `json:"-"`
}

func NewImageFromSrcURL(srcURL string) *Image {
	return &Image{SrcURL: srcURL, Key: sha1Hash(srcURL)}
}

func NewImageFromData(data []byte) *Image {
	return &Image{Key: sha1Hash(string(data)), Data: data}
}

func sha1Hash(in string) string {
	hasher := sha1.New()
	hasher.Write([]byte(in))
	return hex.EncodeToString(hasher.Sum(nil))
}

// CacheKey identifies the output of sizing im with the named backend.
func (im *Image) CacheKey(backend string, sizing *nativeimg.Sizing) string {
	return im.Key + "/" + strings.ToLower(backend) + "?" + sizing.ToQuery().Encode()
}

// ETag is derived from the source key, backend and sizing of a sized image.
func (im *Image) ETag() string {
	return `"` + sha1Hash(im.Key+"/"+strings.ToLower(im.Backend)+"?"+im.SizingQuery) + `"`
}

func (im *Image) MimeType() string {
	f, err := nativeimg.ParseFormat(im.Format)
	if err != nil {
		return "application/octet-stream"
	}
	return f.MimeType()
}

// MakeSize decodes the image with b, applies sizing and returns a new Image
// holding the encoded result. The output keeps the source format unless the
// sizing names one.
func (im *Image) MakeSize(b nativeimg.Backend, sizing *nativeimg.Sizing) (*Image, error) {
	defer metrics.MeasureSince([]string{"fn", "image", "MakeSize"}, time.Now())

	filter, ok := b.Filters().Lookup(sizing.Filter)
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", sizing.Filter)
	}

	src, err := b.Open(im.Data)
	if err != nil {
		if errors.Is(err, nativeimg.ErrBackend) {
			lg.Errorf("**** ENGINE FAILURE on %s: %s", im.SrcURL, err)
		}
		return nil, err
	}
	defer src.Release()

	sized, err := nativeimg.SizeIt(src, sizing, filter)
	if err != nil {
		return nil, errors.Wrap(err, "sizing image")
	}
	defer sized.Release()

	format := sizing.Format
	if format == "" {
		format = src.Format()
	}
	f, err := nativeimg.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	var opts []nativeimg.EncodeOption
	if sizing.Quality > 0 {
		opts = append(opts, nativeimg.Quality(sizing.Quality))
	}

	var buf bytes.Buffer
	if err := sized.Save(&buf, string(f), opts...); err != nil {
		return nil, err
	}

	sz := sized.Size()
	return &Image{
		Key:         im.Key,
		SrcURL:      im.SrcURL,
		Backend:     b.Name(),
		Width:       sz.Width,
		Height:      sz.Height,
		Format:      string(f),
		SizingQuery: sizing.ToQuery().Encode(),
		Data:        buf.Bytes(),
	}, nil
}
