package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pressly/nativeimg"
	"github.com/unrolled/render"
)

type Responder struct {
	*render.Render
	CacheMaxAge int
}

func NewResponder() *Responder {
	return &Responder{Render: render.New(render.Options{})}
}

func (r *Responder) ImageError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if err == nil {
		r.Data(w, status, []byte{})
		return
	}

	r.cacheErrors(w, err)
	w.Header().Set("X-Err", err.Error())
	r.Data(w, status, []byte{})
}

func (r *Responder) ApiError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if err == nil {
		r.JSON(w, status, map[string]interface{}{})
		return
	}

	r.cacheErrors(w, err)
	w.Header().Set("X-Err", err.Error())
	r.JSON(w, status, map[string]interface{}{"error": err.Error()})
}

func (r *Responder) ImageInfo(w http.ResponseWriter, status int, imfo *nativeimg.ImageInfo) {
	w.Header().Set("X-Meta-Width", fmt.Sprintf("%d", imfo.Width))
	w.Header().Set("X-Meta-Height", fmt.Sprintf("%d", imfo.Height))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", r.CacheMaxAge))

	r.JSON(w, status, imfo)
}

// Image writes the encoded image, or 304 when the request already holds
// its ETag.
func (r *Responder) Image(w http.ResponseWriter, req *http.Request, status int, im *Image) {
	etag := im.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", r.CacheMaxAge))
	if req.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", im.MimeType())
	w.Header().Set("X-Meta-Width", fmt.Sprintf("%d", im.Width))
	w.Header().Set("X-Meta-Height", fmt.Sprintf("%d", im.Height))
	w.Header().Set("X-Backend", im.Backend)
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))

	r.Data(w, status, im.Data)
}

func (r *Responder) cacheErrors(w http.ResponseWriter, err error) {
	if errors.Is(err, nativeimg.ErrDecode) || errors.Is(err, ErrInvalidURL) {
		// For invalid inputs, we tell the surrogate to cache the
		// error for a small amount of time.
		w.Header().Set("Surrogate-Control", "max-age=300") // 5 minutes
	}
}

func errorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, nativeimg.ErrUnknownBackend):
		return http.StatusNotFound
	case errors.Is(err, nativeimg.ErrBackendUnavailable), errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusUnprocessableEntity
	}
}
