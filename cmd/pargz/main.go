// Command pargz is the CLI surface for the pargz decompressor: decode
// a gzip/BGZF/zlib/raw-deflate file to stdout, optionally using a
// persisted checkpoint index for random access, and build such an
// index for later reuse.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/gzindex"
	"github.com/jonjohnsonjr/pargz/indexio"
	"github.com/jonjohnsonjr/pargz/pargz"
	"github.com/jonjohnsonjr/pargz/ranger"
)

var cli struct {
	Parallelism int  `help:"Worker pool size. 0 uses GOMAXPROCS." default:"0"`
	Verbose     bool `help:"Enable debug logging." short:"v"`

	Cat   catCmd   `cmd:"" help:"Decompress a file or URL to stdout."`
	Index indexCmd `cmd:"" help:"Build and persist a checkpoint index for a file or URL, written to stdout."`
}

type globals struct {
	parallelism int
}

// openSource opens file as a local Source, unless url is set, in which
// case it opens a ranger-backed Source over an HTTP range endpoint
// instead (spec.md's "assumed to provide seekable byte-range reads"
// remote backend).
func openSource(ctx context.Context, file, url string) (fsrc.Source, error) {
	if url == "" {
		return fsrc.Open(file)
	}
	rr := ranger.New(ctx, url, http.DefaultTransport)
	size, err := rr.Size()
	if err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", url, err)
	}
	return fsrc.NewReaderAt(rr, size), nil
}

type catCmd struct {
	Index string `help:"Path to a persisted checkpoint index to use for random access." type:"path"`
	URL   string `help:"HTTP(S) URL of a range-request-capable remote resource, used instead of File." name:"url"`
	File  string `arg:"" optional:"" help:"Path to the compressed file. Omit when --url is set." type:"existingfile"`
}

func (c *catCmd) Run(g *globals) error {
	if c.URL == "" && c.File == "" {
		return fmt.Errorf("one of File or --url is required")
	}
	src, err := openSource(context.Background(), c.File, c.URL)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.File, err)
	}

	var opts []pargz.Option
	if g.parallelism > 0 {
		opts = append(opts, pargz.WithParallelism(g.parallelism))
	}

	r, err := pargz.Open(src, opts...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.File, err)
	}
	defer r.Close()

	if c.Index != "" {
		f, err := os.Open(c.Index)
		if err != nil {
			return fmt.Errorf("opening index %s: %w", c.Index, err)
		}
		defer f.Close()

		checkpoints, _, _, err := indexio.ReadCheckpointIndex(f)
		if err != nil {
			return fmt.Errorf("reading index %s: %w", c.Index, err)
		}
		if err := r.SetBlockOffsets(checkpoints); err != nil {
			return fmt.Errorf("loading index %s: %w", c.Index, err)
		}
	}

	_, err = io.Copy(os.Stdout, r)
	return err
}

type indexCmd struct {
	URL  string `help:"HTTP(S) URL of a range-request-capable remote resource, used instead of File." name:"url"`
	File string `arg:"" optional:"" help:"Path to the compressed file. Omit when --url is set." type:"existingfile"`
}

func (c *indexCmd) Run(g *globals) error {
	if c.URL == "" && c.File == "" {
		return fmt.Errorf("one of File or --url is required")
	}
	src, err := openSource(context.Background(), c.File, c.URL)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.File, err)
	}

	var opts []pargz.Option
	if g.parallelism > 0 {
		opts = append(opts, pargz.WithParallelism(g.parallelism))
	}

	r, err := pargz.Open(src, opts...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.File, err)
	}
	defer r.Close()

	decoded, err := io.Copy(io.Discard, r)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", c.File, err)
	}

	checkpoints, err := r.GzipIndex()
	if err != nil {
		return fmt.Errorf("building index for %s: %w", c.File, err)
	}

	compressedSize, _ := src.Size()
	return indexio.WriteCheckpointIndex(os.Stdout, checkpoints, compressedSize, decoded, gzindex.DefaultSpacing)
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("pargz"),
		kong.Description("A parallel random-access DEFLATE-family decompressor."),
	)

	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	err := ctx.Run(&globals{parallelism: cli.Parallelism})
	ctx.FatalIfErrorf(err)
}
