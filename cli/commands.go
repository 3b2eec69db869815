package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/config"
	"github.com/ankit-chaubey/privacy-surgery/core/dispatch"
	"github.com/ankit-chaubey/privacy-surgery/core/ocr"
	"github.com/ankit-chaubey/privacy-surgery/core/redact"
)

// ─── Metadata ────────────────────────────────────────────────────────────────

func runView(a *app, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	filter := fs.String("filter", "", "Only show keys containing this text")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: surgery view [-filter text] FILE")
	}

	md, err := dispatch.New(a.logger).ReadMetadata(fs.Arg(0))
	if err != nil {
		return err
	}
	a.printer.PrintMetadata(md, md.Filter(*filter))
	return nil
}

func runEdit(a *app, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	out := fs.String("o", "", "Output path (default FILE_edited.EXT)")
	dryRun := fs.Bool("dry-run", false, "Print the changes without writing")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: surgery edit [-o OUT] [-dry-run] FILE Key=Value...")
	}

	path := fs.Arg(0)
	edits := map[string]string{}
	for _, kv := range fs.Args()[1:] {
		k, v, ok := core.ParseKV(kv)
		if !ok {
			return fmt.Errorf("invalid edit %q, want Key=Value", kv)
		}
		edits[k] = v
	}

	d := dispatch.New(a.logger)
	if *dryRun {
		md, err := d.ReadMetadata(path)
		if err != nil {
			return err
		}
		changes, err := dispatch.Plan(md, edits)
		if err != nil {
			return err
		}
		a.printer.PrintChanges(changes)
		return nil
	}

	dest := outPath(path, *out, "_edited", filepath.Ext(path))
	if err := d.WriteMetadata(path, edits, dest); err != nil {
		return err
	}
	a.printer.PrintSuccess("written to " + dest)
	return nil
}

func runStrip(a *app, args []string) error {
	fs := flag.NewFlagSet("strip", flag.ExitOnError)
	out := fs.String("o", "", "Output path (default FILE_clean.EXT)")
	gpsOnly := fs.Bool("gps-only", false, "Remove location data only")
	keep := fs.String("keep", "", "Comma separated keys to preserve")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: surgery strip [-o OUT] [-gps-only] [-keep Key,...] FILE")
	}

	path := fs.Arg(0)
	opts := core.StripOptions{GPSOnly: *gpsOnly}
	for _, k := range strings.Split(*keep, ",") {
		if k = strings.TrimSpace(k); k != "" {
			opts.Keep = append(opts.Keep, k)
		}
	}
	dest := outPath(path, *out, "_clean", filepath.Ext(path))
	if err := dispatch.New(a.logger).Strip(path, dest, opts); err != nil {
		return err
	}
	a.printer.PrintSuccess("stripped copy written to " + dest)
	return nil
}

func runFormats(a *app, _ []string) error {
	a.printer.PrintFormats(dispatch.Formats())
	return nil
}

// ─── Redaction ───────────────────────────────────────────────────────────────

func (a *app) recognizer() (ocr.Recognizer, error) {
	switch a.cfg.OCR.Engine {
	case config.EngineTesseract:
		return ocr.NewTesseract(a.cfg.OCR.Languages...)
	default:
		return ocr.NewPaddleClient(a.cfg.OCR.Endpoint,
			ocr.WithTimeout(a.cfg.OCR.Timeout),
			ocr.WithLogger(a.logger)), nil
	}
}

func runOCR(a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: surgery ocr FILE...")
	}
	var paths []string
	for _, p := range args {
		if !ocr.IsImageFile(p) {
			a.logger.Warn().Str("path", p).Msg("not an image file, skipped")
			continue
		}
		paths = append(paths, p)
	}

	r, err := a.recognizer()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := ocr.RecognizeBatch(ctx, r, paths, a.logger)
	if a.printer.JSON {
		a.printer.PrintValue(results)
	} else {
		for _, res := range results {
			a.printer.PrintInfo("── " + res.Path + " ──")
			for _, reg := range res.Regions {
				a.printer.PrintInfo(fmt.Sprintf("  %-40s %.2f %v", reg.Text, reg.Confidence, reg.Polygon))
			}
		}
	}
	return err
}

type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func runRedact(a *app, args []string) error {
	fs := flag.NewFlagSet("redact", flag.ExitOnError)
	out := fs.String("o", "", "Output image or PDF (default FILE_redacted.png)")
	all := fs.Bool("all", false, "Redact every recognised region")
	size := fs.Int("size", a.cfg.Redact.MosaicSize, "Mosaic cell size in pixels")
	var matches, regions multiFlag
	fs.Var(&matches, "match", "Redact regions whose text matches this regexp (repeatable)")
	fs.Var(&regions, "region", "Redact the region with this index (repeatable)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: surgery redact [-o OUT] [-match re]... [-region N]... [-all] [-size N] FILE")
	}

	patterns, err := a.cfg.MatchPatterns()
	if err != nil {
		return err
	}
	for _, m := range matches {
		re, err := regexp.Compile(m)
		if err != nil {
			return fmt.Errorf("-match: %w", err)
		}
		patterns = append(patterns, re)
	}

	r, err := a.recognizer()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := fs.Arg(0)
	s, err := redact.Load(ctx, r, path, redact.Options{MosaicSize: *size, Logger: a.logger})
	if err != nil {
		return err
	}

	if *all {
		s.RedactAll()
	}
	for _, re := range patterns {
		s.RedactMatching(re)
	}
	for _, v := range regions {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("-region %q: %w", v, err)
		}
		if err := s.Toggle(i, true); err != nil {
			return err
		}
	}

	a.printer.PrintInfo(s.Summary())
	dest := outPath(path, *out, "_redacted", ".png")
	if err := s.Export(dest); err != nil {
		return err
	}
	a.printer.PrintSuccess("redacted image written to " + dest)
	return nil
}

// outPath returns out, or path with suffix added before the new extension.
func outPath(path, out, suffix, ext string) string {
	if out != "" {
		return out
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix + ext
}
