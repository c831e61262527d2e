package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/server"
)

var (
	flags    = flag.NewFlagSet("nativeimg-server", flag.ExitOnError)
	confFile = flags.String("config", "", "path to config file")
)

func main() {
	flags.Parse(os.Args[1:])

	conf, err := server.NewConfigFromFile(*confFile, os.Getenv("CONFIG"))
	if err == server.ErrNoConfigFile {
		lg.Warn("no config file given, using defaults")
		conf, err = server.NewConfig(), nil
	}
	if err != nil {
		lg.Fatal(err)
	}

	srv := server.New(conf)
	if err := srv.Configure(); err != nil {
		lg.Fatal(err)
	}
	lg.RedirectStdlogOutput(lg.DefaultLogger)

	lg.Infof("** NativeImg Server v%s at %s **", nativeimg.VERSION, conf.Bind)
	if b, err := srv.Registry.Resolve(conf.DefaultBackend); err == nil {
		lg.Infof("** Default backend: %s (%s)", b.Name(), b.Version())
	}

	hs := &http.Server{
		Addr:    conf.Bind,
		Handler: srv.NewRouter(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil {
			lg.Errorf("shutdown: %s", err)
		}
	}()

	if err := hs.ListenAndServe(); err != http.ErrServerClosed {
		lg.Fatal(err)
	}
	<-done
	srv.Shutdown()
}
