// Command nativeimg-siege replays a list of image urls against a running
// nativeimg-server and reports how many sizing requests succeeded.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pressly/lg"
	"github.com/pressly/nativeimg/server"
)

var (
	flags       = flag.NewFlagSet("nativeimg-siege", flag.ExitOnError)
	concurrency = flags.Int("c", 10, "concurrency")
	file        = flags.String("f", "", "file of source image urls, one per line")
	target      = flags.String("server", "http://localhost:4446", "nativeimg-server base url")
	backend     = flags.String("backend", "pil", "backend to size with")
	size        = flags.String("s", "300x300", "sizing applied to every url")
)

func readLines(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func fetchURL(src string) string {
	q := url.Values{}
	q.Set("url", src)
	q.Set("s", *size)
	return fmt.Sprintf("%s/%s/fetch?%s", strings.TrimSuffix(*target, "/"), *backend, q.Encode())
}

func main() {
	flags.Parse(os.Args[1:])

	if *file == "" {
		lg.Fatal("-f is required")
	}
	srcs, err := readLines(*file)
	if err != nil {
		lg.Fatal(err)
	}

	urls := make([]string, len(srcs))
	for i, src := range srcs {
		urls[i] = fetchURL(src)
	}

	fmt.Println(*concurrency, "concurrent fetchers...")
	start := time.Now()

	f := server.NewFetcher()
	f.Throughput = *concurrency

	resps, err := f.GetAll(context.Background(), urls)
	if err != nil {
		lg.Fatal(err)
	}

	success, fail := 0, 0
	for i, resp := range resps {
		if resp.Err != nil {
			lg.Warnf("%s: %s", srcs[i], resp.Err)
			fail++
			continue
		}
		success++
	}

	fmt.Println("Total:", success+fail)
	fmt.Println("Success:", success)
	fmt.Println("Fail:", fail)
	fmt.Printf("Finished in %v\n", time.Since(start))
}
