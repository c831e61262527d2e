package server

import (
	"context"

	"github.com/armon/go-metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pressly/lg"
)

// imageCache returns the in-memory store of sized images, or nil when
// cache.mem_cache_size is not positive.
func (srv *Server) imageCache() *lru.Cache[string, *Image] {
	srv.cacheOnce.Do(func() {
		n := srv.Config.Cache.MemCacheSize
		if n <= 0 {
			return
		}
		cache, err := lru.New[string, *Image](n)
		if err != nil {
			lg.Errorf("image cache disabled: %s", err)
			return
		}
		srv.cache = cache
	})
	return srv.cache
}

// sizedImage returns the cached image under key, or runs size once for
// every concurrent request of the same key and caches its result. Only the
// first caller's context governs the shared run.
func (srv *Server) sizedImage(ctx context.Context, key string, size func(context.Context) (*Image, error)) (*Image, error) {
	cache := srv.imageCache()
	if cache != nil {
		if im, ok := cache.Get(key); ok {
			metrics.IncrCounter([]string{"cache", "hit"}, 1)
			return im, nil
		}
		metrics.IncrCounter([]string{"cache", "miss"}, 1)
	}

	v, err, shared := srv.flight.Do(key, func() (interface{}, error) {
		im, err := size(ctx)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			cache.Add(key, im)
		}
		return im, nil
	})
	if shared {
		metrics.IncrCounter([]string{"flight", "shared"}, 1)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Image), nil
}
