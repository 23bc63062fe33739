package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/livefir/zealtime/internal/config"
)

// documentFlags are shared by the subcommands that load a document.
type documentFlags struct {
	configPath string
	sets       []string
	lists      []string
}

func (c *documentFlags) add(fs *pflag.FlagSet) {
	addConfigFlag(fs, &c.configPath)
	fs.StringArrayVar(&c.sets, "set", nil, "set a variable before rendering (key=value, value may be JSON)")
	fs.StringArrayVar(&c.lists, "list", nil, "turn each text line of elements matching the selector into a list item")
}

func addConfigFlag(fs *pflag.FlagSet, path *string) {
	fs.StringVar(path, "config", config.FileName, "path to the config file")
}

// variables merges the config file's variables with the --set flags.
func (c *documentFlags) variables(cfg *config.Config) (map[string]any, error) {
	vars := maps.Clone(cfg.Variables)
	if vars == nil {
		vars = map[string]any{}
	}
	for _, s := range c.sets {
		key, value, err := parseSet(s)
		if err != nil {
			return nil, err
		}
		vars[key] = value
	}
	return vars, nil
}

// parseSet splits key=value. Values that parse as JSON are decoded; any
// other value is kept as a string.
func parseSet(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q: want key=value", s)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return key, raw, nil
	}
	return key, value, nil
}

func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  zealtime %s\n\nFlags:\n", usage)
		fs.SetOutput(os.Stderr)
		fs.PrintDefaults()
	}
	return fs
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
