// Command surgery views, edits and strips file metadata, and redacts text
// found in images.
//
// Usage:
//
//	surgery [-config file] [-json] [-v] <command> [flags] <args>
//
// Commands:
//
//	view    [-filter text] FILE
//	edit    [-o OUT] [-dry-run] FILE Key=Value...
//	strip   [-o OUT] [-gps-only] [-keep Key,...] FILE
//	formats
//	ocr     FILE...
//	redact  [-o OUT] [-match regexp]... [-region N]... [-all] [-size N] FILE
//
// An empty value in edit removes the key. Environment variables from a
// .env file in the working directory are loaded before SURGERY_* overrides
// are applied.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/config"
)

type app struct {
	cfg     config.Config
	printer *core.Printer
	logger  zerolog.Logger
}

var commands = map[string]func(a *app, args []string) error{
	"view":    runView,
	"edit":    runEdit,
	"strip":   runStrip,
	"formats": runFormats,
	"ocr":     runOCR,
	"redact":  runRedact,
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: surgery [-config file] [-json] [-v] <view|edit|strip|formats|ocr|redact> [flags] <args>")
	flag.PrintDefaults()
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	configPath := flag.String("config", "", "Path to the YAML config file")
	jsonOut := flag.Bool("json", false, "JSON output")
	verbose := flag.Bool("v", false, "Debug logging level")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	run, ok := commands[flag.Arg(0)]
	if !ok {
		core.PrintError(fmt.Sprintf("unknown command %q", flag.Arg(0)))
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		core.PrintError(fmt.Sprintf("load .env: %v", err))
		os.Exit(1)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Log.Human {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	a := &app{cfg: cfg, printer: core.NewPrinter(*jsonOut), logger: log.Logger}
	if err := run(a, flag.Args()[1:]); err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
