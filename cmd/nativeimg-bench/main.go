package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/backends"
	"github.com/pressly/nativeimg/bench"
)

var (
	flags     = flag.NewFlagSet("nativeimg-bench", flag.ExitOnError)
	sampleDir = flags.String("samples", "samples", "directory of sample images")
	outputDir = flags.String("out", "", "where comparison images are saved (default $TMPDIR/resize-bench)")
	size      = flags.String("size", "256x256", "thumbnail bound")
	format    = flags.String("format", "JPEG", "output format")
	quality   = flags.Int("q", 0, "output quality, 0 for the engine default")
	logLevel  = flags.String("log", "info", "log level")

	codespeedURL = flags.String("codespeed", "", "codespeed result/add endpoint to post timings to")
	project      = flags.String("project", "nativeimg", "codespeed project")
	commitID     = flags.String("commit", os.Getenv("COMMIT"), "codespeed commit id")
)

func main() {
	flags.Parse(os.Args[1:])

	if err := nativeimg.SetLogLevel(*logLevel); err != nil {
		lg.Fatal(err)
	}

	bound, err := nativeimg.ParseSize(*size)
	if err != nil {
		lg.Fatal(err)
	}

	names := flags.Args()
	if len(names) == 0 {
		names = []string{"pil", "magick", "aware"}
	}

	var engines []nativeimg.Backend
	for _, name := range names {
		b, err := backends.Resolve(name)
		if err != nil {
			lg.Warnf("Can't load %s backend: %s", name, err)
			continue
		}
		lg.Infof("** %s: %s", b.Name(), b.Version())
		engines = append(engines, b)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, err := bench.Run(ctx, engines, bench.Options{
		SampleDir: *sampleDir,
		OutputDir: *outputDir,
		Thumbnail: bound,
		Format:    *format,
		Quality:   *quality,
	})
	if err != nil {
		lg.Fatal(err)
	}
	results.Report(os.Stdout)

	if *codespeedURL != "" {
		cs, err := bench.NewCodespeed(*codespeedURL, *project, *commitID)
		if err != nil {
			lg.Fatal(err)
		}
		if err := cs.PostAll(ctx, results); err != nil {
			lg.Fatal(err)
		}
	}

	if n := len(results.Failures()); n > 0 {
		lg.Warnf("%d of %d runs failed", n, len(results))
	}
}
