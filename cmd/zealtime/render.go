package main

import (
	"fmt"
	"io"

	"github.com/livefir/zealtime/internal/config"
)

func runRender(args []string, stdout io.Writer) error {
	var flags documentFlags
	fs := newFlagSet("render", "render FILE [--set key=value]... [--list SELECTOR]... [--minify]")
	flags.add(fs)
	minify := fs.Bool("minify", false, "minify the output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("render takes exactly one FILE")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if !fs.Changed("minify") {
		*minify = cfg.Render.Minify
	}

	engine, err := openEngine(fs.Arg(0), &flags, cfg)
	if err != nil {
		return err
	}

	var out string
	if *minify {
		out, err = engine.MinifiedHTML()
	} else {
		out, err = engine.HTML()
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, out)
	return err
}
