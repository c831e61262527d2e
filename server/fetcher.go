package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/goware/urlx"
	"github.com/pkg/errors"
	"github.com/pressly/lg"
)

var (
	DefaultFetcherThroughput = 100
	DefaultFetcherReqTimeout = 20 * time.Second
	DefaultUserAgent         = "Mozilla/5.0 (compatible; nativeimg/1.0)"

	ErrInvalidURL   = errors.New("invalid url")
	ErrBodyTooLarge = errors.New("image data too large")
	ErrBusy         = errors.New("server busy")
)

type Fetcher struct {
	Client    *http.Client
	Transport *http.Transport

	Throughput    int
	ReqTimeout    time.Duration
	HostKeepAlive time.Duration
	UserAgent     string
	MaxBodySize   int64

	once  sync.Once
	slots chan struct{}
}

type FetcherResponse struct {
	URL    *url.URL
	Status int
	Data   []byte
	Err    error
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Throughput:    DefaultFetcherThroughput,
		ReqTimeout:    DefaultFetcherReqTimeout,
		HostKeepAlive: 60 * time.Second,
		UserAgent:     DefaultUserAgent,
	}
}

func (f *Fetcher) init() {
	f.once.Do(func() {
		if f.Throughput <= 0 {
			f.Throughput = DefaultFetcherThroughput
		}
		f.slots = make(chan struct{}, f.Throughput)

		if f.Client != nil {
			return
		}
		f.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   f.ReqTimeout,
				KeepAlive: f.HostKeepAlive,
			}).DialContext,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
			TLSHandshakeTimeout:   5 * time.Second,
			MaxIdleConnsPerHost:   2,
			DisableCompression:    true,
			ResponseHeaderTimeout: f.ReqTimeout,
		}
		f.Client = &http.Client{
			Timeout:   f.ReqTimeout,
			Transport: f.Transport,
		}
	})
}

// Get fetches a single url. A non-2xx status is returned as an error along
// with the response.
func (f *Fetcher) Get(ctx context.Context, url string) (*FetcherResponse, error) {
	resps, err := f.GetAll(ctx, []string{url})
	if err != nil {
		return nil, err
	}
	if len(resps) == 0 {
		return nil, errors.New("fetcher: no response")
	}
	resp := resps[0]
	if resp.Err != nil {
		return resp, resp.Err
	}
	return resp, nil
}

// GetAll fetches urls concurrently, at most Throughput at a time. Per-url
// failures are reported on each response.
func (f *Fetcher) GetAll(ctx context.Context, urls []string) ([]*FetcherResponse, error) {
	defer metrics.MeasureSince([]string{"fn", "FetchRemoteData"}, time.Now())
	f.init()

	fetches := make([]*FetcherResponse, len(urls))

	var wg sync.WaitGroup
	wg.Add(len(urls))

	for i, urlStr := range urls {
		fetches[i] = &FetcherResponse{}

		go func(fetch *FetcherResponse, reqURL string) {
			defer wg.Done()

			select {
			case f.slots <- struct{}{}:
				defer func() { <-f.slots }()
			case <-ctx.Done():
				fetch.Err = ctx.Err()
				return
			}

			fetch.URL, fetch.Status, fetch.Data, fetch.Err = f.fetch(ctx, reqURL)
		}(fetches[i], urlStr)
	}

	wg.Wait()
	return fetches, nil
}

func (f *Fetcher) fetch(ctx context.Context, reqURL string) (*url.URL, int, []byte, error) {
	u, err := urlx.Parse(reqURL)
	if err != nil || u.Host == "" {
		return nil, 0, nil, ErrInvalidURL
	}

	lg.Infof("Fetching %s", u.String())

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return u, 0, nil, errors.Wrap(err, "fetcher")
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.Client.Do(req)
	if err != nil {
		lg.Warnf("Error fetching %s because %s", u.String(), err)
		return u, 0, nil, errors.Wrapf(err, "fetching %s", u.String())
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.MaxBodySize > 0 {
		body = io.LimitReader(resp.Body, f.MaxBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return u, resp.StatusCode, nil, errors.Wrapf(err, "reading %s", u.String())
	}
	if f.MaxBodySize > 0 && int64(len(data)) > f.MaxBodySize {
		return u, resp.StatusCode, nil, errors.Wrapf(ErrBodyTooLarge, "%s over %d bytes", u.String(), f.MaxBodySize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return u, resp.StatusCode, data, errors.Errorf("fetching %s: status %d", u.String(), resp.StatusCode)
	}
	return u, resp.StatusCode, data, nil
}
