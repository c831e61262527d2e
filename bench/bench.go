// Package bench times a thumbnail-and-save pass of every sample image with
// every backend, the way the engines are compared against each other.
package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/armon/go-metrics"
	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
)

type Options struct {
	SampleDir string
	OutputDir string
	Thumbnail nativeimg.Size // bound of the thumbnail, 256x256 by default
	Format    string         // output format, JPEG by default
	Quality   int
}

func (o *Options) defaults() {
	if o.Thumbnail.Empty() {
		o.Thumbnail = nativeimg.NewSize(256, 256)
	}
	if o.Format == "" {
		o.Format = string(nativeimg.JPEG)
	}
	if o.OutputDir == "" {
		o.OutputDir = filepath.Join(os.TempDir(), "resize-bench")
	}
}

// Result is the outcome of one (file, backend) pair. Err is set when the
// backend failed on that file; Elapsed is then meaningless.
type Result struct {
	File    string
	Backend string
	Elapsed time.Duration
	Output  string
	Err     error
}

type Results []Result

// Run processes every file of opts.SampleDir with each backend. A failure of
// one backend on one file is logged and recorded, and never stops the run.
func Run(ctx context.Context, backends []nativeimg.Backend, opts Options) (Results, error) {
	opts.defaults()

	files, err := samples(opts.SampleDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, err
	}
	lg.Infof("bench: comparison images are saved in %s", opts.OutputDir)

	ext := "jpg"
	if f, err := nativeimg.ParseFormat(opts.Format); err == nil {
		ext = f.Ext()
	}

	var results Results
	for _, file := range files {
		base := strings.TrimSuffix(file, filepath.Ext(file))
		for _, b := range backends {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			r := Result{
				File:    file,
				Backend: b.Name(),
				Output:  filepath.Join(opts.OutputDir, fmt.Sprintf("%s_%s.%s", base, b.Name(), ext)),
			}
			start := time.Now()
			r.Err = thumbnail(b, filepath.Join(opts.SampleDir, file), r.Output, opts)
			r.Elapsed = time.Since(start)

			if r.Err != nil {
				lg.Errorf("bench: %s: exception processing %s: %s", b.Name(), file, r.Err)
				metrics.IncrCounter([]string{"bench", b.Name(), "failures"}, 1)
			} else {
				metrics.MeasureSince([]string{"bench", b.Name(), "thumbnail"}, start)
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func thumbnail(b nativeimg.Backend, src, dst string, opts Options) error {
	im, err := b.Open(src)
	if err != nil {
		return err
	}
	defer im.Release()

	if err := im.Thumbnail(opts.Thumbnail, b.Filters().Antialias); err != nil {
		return err
	}

	var eo []nativeimg.EncodeOption
	if opts.Quality > 0 {
		eo = append(eo, nativeimg.Quality(opts.Quality))
	}
	return im.Save(dst, opts.Format, eo...)
}

// samples lists the regular, non-hidden files of dir in name order.
func samples(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// Failures returns the results that carry an error.
func (rs Results) Failures() Results {
	var out Results
	for _, r := range rs {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Report writes the successful timings grouped by file, in seconds.
func (rs Results) Report(w io.Writer) error {
	byFile := map[string]Results{}
	var files []string
	for _, r := range rs {
		if r.Err != nil {
			continue
		}
		if _, ok := byFile[r.File]; !ok {
			files = append(files, r.File)
		}
		byFile[r.File] = append(byFile[r.File], r)
	}
	sort.Strings(files)

	if _, err := fmt.Fprintf(w, "\nResults\n\n"); err != nil {
		return err
	}
	for _, f := range files {
		if _, err := fmt.Fprintf(w, "%s:\n", f); err != nil {
			return err
		}
		for _, r := range byFile[f] {
			if _, err := fmt.Fprintf(w, "\t%16s: %0.2f\n", r.Backend, r.Elapsed.Seconds()); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
