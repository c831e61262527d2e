package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"

	"github.com/goware/urlx"
	"github.com/pkg/errors"
	"github.com/pressly/lg"
)

// Codespeed posts results to a Codespeed server's result/add endpoint.
type Codespeed struct {
	URL         string
	Project     string
	CommitID    string
	Environment string // defaults to the Go platform description

	Client *http.Client
}

func NewCodespeed(endpoint, project, commitID string) (*Codespeed, error) {
	u, err := urlx.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "codespeed: invalid url %q", endpoint)
	}
	return &Codespeed{URL: u.String(), Project: project, CommitID: commitID}, nil
}

func platform() string {
	return fmt.Sprintf("%s-%s-%s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// Form builds the POST form of a single successful result.
func (c *Codespeed) Form(r Result) url.Values {
	env := c.Environment
	if env == "" {
		env = platform()
	}
	return url.Values{
		"project":      {c.Project},
		"commitid":     {c.CommitID},
		"executable":   {r.Backend},
		"benchmark":    {"thumbnail_" + r.File},
		"result_value": {strconv.FormatFloat(r.Elapsed.Seconds(), 'f', -1, 64)},
		"environment":  {env},
	}
}

// Post sends one result. A non-200 answer is only logged, as the server's
// body is the sole diagnostic it offers.
func (c *Codespeed) Post(ctx context.Context, r Result) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.URL, strings.NewReader(c.Form(r).Encode()))
	if err != nil {
		return errors.Wrap(err, "codespeed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "codespeed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusOK {
		lg.Debugf("Server %s: HTTP %d: %s", c.URL, resp.StatusCode, body)
	} else {
		lg.Warnf("Server %s: HTTP %d: %s", c.URL, resp.StatusCode, body)
	}
	return nil
}

// PostAll sends every successful result, stopping at the first transport
// error.
func (c *Codespeed) PostAll(ctx context.Context, rs Results) error {
	for _, r := range rs {
		if r.Err != nil {
			continue
		}
		if err := c.Post(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
