package nativeimg

import (
	"path/filepath"
	"strings"
)

// Format is a canonical upper-case image format name.
type Format string

const (
	JPEG Format = "JPEG"
	PNG  Format = "PNG"
	GIF  Format = "GIF"
	TIFF Format = "TIFF"
	BMP  Format = "BMP"
	WEBP Format = "WEBP"
	JP2  Format = "JP2"
	J2K  Format = "J2K"
)

var (
	formatNames = map[string]Format{
		"jpeg": JPEG, "jpg": JPEG, "jpe": JPEG,
		"png":  PNG,
		"gif":  GIF,
		"tiff": TIFF, "tif": TIFF,
		"bmp": BMP, "bm": BMP,
		"webp": WEBP,
		"jp2":  JP2, "jpx": JP2, "jpeg2000": JP2,
		"j2k": J2K, "j2c": J2K,
	}

	MimeTypes = map[Format]string{
		JPEG: "image/jpeg",
		PNG:  "image/png",
		GIF:  "image/gif",
		TIFF: "image/tiff",
		BMP:  "image/bmp",
		WEBP: "image/webp",
		JP2:  "image/jp2",
		J2K:  "image/j2k",
	}
)

// ParseFormat accepts a format or extension name in any case, with or
// without a leading dot (JPEG, jpg, .png).
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))
	if f, ok := formatNames[name]; ok {
		return f, nil
	}
	return "", ErrUnknownFormat
}

func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ResolveFormat picks the output format of a save call. An explicit name wins,
// otherwise a path destination's extension is used.
func ResolveFormat(dst any, name string) (Format, error) {
	if name != "" {
		return ParseFormat(name)
	}
	if path, ok := dst.(string); ok {
		return FormatFromPath(path)
	}
	return "", ErrUnknownFormat
}

func (f Format) MimeType() string {
	mt := MimeTypes[f]
	if mt == "" {
		mt = "application/octet-stream"
	}
	return mt
}

// Ext is the usual file extension, without the dot.
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return "jpg"
	case TIFF:
		return "tif"
	default:
		return strings.ToLower(string(f))
	}
}

type EncodeOptions struct {
	Quality  int // 1-100, 0 leaves the engine default
	Lossless bool
}

// EncodeOption sets an optional parameter of Image.Save.
type EncodeOption func(*EncodeOptions)

func Quality(q int) EncodeOption {
	return func(o *EncodeOptions) {
		o.Quality = q
	}
}

func Lossless(enabled bool) EncodeOption {
	return func(o *EncodeOptions) {
		o.Lossless = enabled
	}
}

func NewEncodeOptions(opts ...EncodeOption) EncodeOptions {
	var o EncodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Quality < 0 {
		o.Quality = 0
	}
	if o.Quality > 100 {
		o.Quality = 100
	}
	return o
}

// NormalizeFormat maps an engine's own format string (for example "JPEG" from
// a wand or "jpeg" from image.Decode) onto the lower-case short form used by
// Image.Format.
func NormalizeFormat(engineFormat string) string {
	f, err := ParseFormat(engineFormat)
	if err != nil {
		return strings.ToLower(engineFormat)
	}
	return f.Ext()
}
