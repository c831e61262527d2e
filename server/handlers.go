package server

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
)

type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

func backendFromCtx(ctx context.Context) nativeimg.Backend {
	b, _ := ctx.Value(backendCtxKey).(nativeimg.Backend)
	return b
}

// ListBackends reports every registered backend and whether it loads in
// this build.
func (srv *Server) ListBackends(w http.ResponseWriter, r *http.Request) {
	var out []BackendStatus
	for _, name := range srv.Registry.Names() {
		st := BackendStatus{Name: name}
		b, err := srv.Registry.Resolve(name)
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Available = true
			st.Version = b.Version()
		}
		out = append(out, st)
	}
	respond.JSON(w, 200, out)
}

func (srv *Server) infoBackend(r *http.Request) (nativeimg.Backend, error) {
	name := r.URL.Query().Get("backend")
	if name == "" {
		name = srv.Config.DefaultBackend
	}
	return srv.Registry.Resolve(name)
}

func (srv *Server) GetImageInfo(w http.ResponseWriter, r *http.Request) {
	fetchURL := r.URL.Query().Get("url")
	if fetchURL == "" {
		respond.ApiError(w, errors.New("no image url"))
		return
	}

	b, err := srv.infoBackend(r)
	if err != nil {
		respond.ApiError(w, err)
		return
	}

	resp, err := srv.Fetcher.Get(r.Context(), fetchURL)
	if err != nil {
		respond.ApiError(w, err)
		return
	}

	imfo, err := nativeimg.Info(b, resp.Data)
	if err != nil {
		respond.ApiError(w, err)
		return
	}
	imfo.URL = resp.URL.String()

	respond.ImageInfo(w, 200, imfo)
}

func (srv *Server) PostImageInfo(w http.ResponseWriter, r *http.Request) {
	b, err := srv.infoBackend(r)
	if err != nil {
		respond.ApiError(w, err)
		return
	}

	data, err := srv.readBody(w, r)
	if err != nil {
		respond.ApiError(w, err)
		return
	}

	imfo, err := nativeimg.Info(b, data)
	if err != nil {
		respond.ApiError(w, err)
		return
	}
	respond.ImageInfo(w, 200, imfo)
}

// SizeImage sizes the posted image body with the backend named in the path.
func (srv *Server) SizeImage(w http.ResponseWriter, r *http.Request) {
	b := backendFromCtx(r.Context())

	sizing, err := srv.sizing(r)
	if err != nil {
		lg.Errorf("Failed to create sizing for %s cause: %s", r.URL, err)
		respond.ImageError(w, err)
		return
	}

	data, err := srv.readBody(w, r)
	if err != nil {
		respond.ImageError(w, err)
		return
	}

	im := NewImageFromData(data)
	sized, err := srv.sizedImage(r.Context(), im.CacheKey(b.Name(), sizing), func(ctx context.Context) (*Image, error) {
		return srv.makeSize(ctx, im, b, sizing)
	})
	if err != nil {
		lg.Errorf("Failed to size image with %s cause: %s", b.Name(), err)
		respond.ImageError(w, err)
		return
	}
	respond.Image(w, r, 200, sized)
}

// FetchImage fetches the url param and sizes the result.
func (srv *Server) FetchImage(w http.ResponseWriter, r *http.Request) {
	b := backendFromCtx(r.Context())

	fetchURL := r.URL.Query().Get("url")
	if fetchURL == "" {
		respond.ImageError(w, ErrInvalidURL)
		return
	}

	sizing, err := srv.sizing(r)
	if err != nil {
		respond.ImageError(w, err)
		return
	}

	im := NewImageFromSrcURL(fetchURL)
	sized, err := srv.sizedImage(r.Context(), im.CacheKey(b.Name(), sizing), func(ctx context.Context) (*Image, error) {
		resp, err := srv.Fetcher.Get(ctx, fetchURL)
		if err != nil {
			lg.Errorf("Fetching failed for %s because %s", fetchURL, err)
			return nil, err
		}
		im.SrcURL = resp.URL.String()
		im.Data = resp.Data
		return srv.makeSize(ctx, im, b, sizing)
	})
	if err != nil {
		respond.ImageError(w, err)
		return
	}
	respond.Image(w, r, 200, sized)
}

// sizing parses the request query, capped at the configured canvas size.
func (srv *Server) sizing(r *http.Request) (*nativeimg.Sizing, error) {
	sizing, err := nativeimg.NewSizingFromQuery(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}
	sizing.MaxSize = srv.Config.Limits.MaxCanvas
	return sizing, nil
}

// makeSize runs im.MakeSize once an image sizer slot is free.
func (srv *Server) makeSize(ctx context.Context, im *Image, b nativeimg.Backend, sizing *nativeimg.Sizing) (*Image, error) {
	release, err := srv.acquireSizer(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return im.MakeSize(b, sizing)
}

// acquireSizer blocks until one of the MaxImageSizers slots is free.
func (srv *Server) acquireSizer(ctx context.Context) (func(), error) {
	srv.sizersOnce.Do(func() {
		n := srv.Config.Limits.MaxImageSizers
		if n <= 0 {
			n = DefaultConfig.Limits.MaxImageSizers
		}
		srv.sizers = make(chan struct{}, n)
	})

	select {
	case srv.sizers <- struct{}{}:
		return func() { <-srv.sizers }, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ErrBusy, "waiting for an image sizer: %s", ctx.Err())
	}
}

func (srv *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := io.Reader(r.Body)
	if limit := srv.Config.Limits.MaxBodySize; limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.Wrapf(ErrBodyTooLarge, "request body over %d bytes", tooLarge.Limit)
		}
		return nil, errors.Wrap(err, "reading request body")
	}
	if len(data) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}
