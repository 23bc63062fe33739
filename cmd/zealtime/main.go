// Command zealtime renders, watches and serves zealtime documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/pflag"
)

// Version information (can be overridden at build time with -ldflags)
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	args := os.Args[2:]

	var err error

	switch command {
	case "render":
		err = runRender(args, os.Stdout)
	case "watch":
		err = runWatch(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) || errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("zealtime version %s\n", version)
	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Printf("go: %s\n", info.GoVersion)
	}
}

func printUsage() {
	fmt.Println(`zealtime - bind live state to HTML documents

Usage:
  zealtime <command> [flags]

Commands:
  render FILE   Substitute variables into FILE and print the result
  watch FILE    Show FILE's text live, synced from a state server
  serve         Run a state server that broadcasts variable changes
  version       Show version information
  help          Show this help

Every command accepts --config (default zealtime.yaml).
Run 'zealtime <command> --help' for command flags.`)
}
