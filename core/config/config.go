// Package config loads the surgery configuration file.
//
// A configuration file looks like:
//
//	ocr:
//	  engine: paddle
//	  endpoint: http://127.0.0.1:9998/ocr/prediction
//	  timeout: 60s
//	  languages: [eng]
//	redact:
//	  mosaic_size: 10
//	  match:
//	    - '[\w.+-]+@[\w-]+\.[\w.]+'
//	log:
//	  level: info
//	  human: true
//
// Environment variables override the file; see ApplyEnv.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ankit-chaubey/privacy-surgery/core/ocr"
	"github.com/ankit-chaubey/privacy-surgery/core/redact"
)

// OCR engines.
const (
	EnginePaddle    = "paddle"
	EngineTesseract = "tesseract"
)

type Config struct {
	OCR    OCRConfig    `yaml:"ocr"`
	Redact RedactConfig `yaml:"redact"`
	Log    LogConfig    `yaml:"log"`
}

type OCRConfig struct {
	Engine    string        `yaml:"engine"`
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout"`
	Languages []string      `yaml:"languages"`
}

type RedactConfig struct {
	MosaicSize int      `yaml:"mosaic_size"`
	Match      []string `yaml:"match"` // regular expressions for automatic redaction
}

type LogConfig struct {
	Level string `yaml:"level"`
	Human bool   `yaml:"human"` // console output instead of JSON
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		OCR: OCRConfig{
			Engine:    EnginePaddle,
			Endpoint:  ocr.DefaultEndpoint,
			Timeout:   60 * time.Second,
			Languages: []string{"eng"},
		},
		Redact: RedactConfig{MosaicSize: redact.DefaultMosaicSize},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Environment overrides.
const (
	EnvOCREndpoint = "SURGERY_OCR_ENDPOINT"
	EnvOCREngine   = "SURGERY_OCR_ENGINE"
	EnvOCRTimeout  = "SURGERY_OCR_TIMEOUT"
	EnvMosaicSize  = "SURGERY_MOSAIC_SIZE"
	EnvLogLevel    = "SURGERY_LOG_LEVEL"
)

// ApplyEnv overrides fields from SURGERY_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvOCREndpoint); ok {
		c.OCR.Endpoint = v
	}
	if v, ok := os.LookupEnv(EnvOCREngine); ok {
		c.OCR.Engine = v
	}
	if v, ok := os.LookupEnv(EnvOCRTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOCRTimeout, err)
		}
		c.OCR.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvMosaicSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMosaicSize, err)
		}
		c.Redact.MosaicSize = n
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.OCR.Engine {
	case EnginePaddle:
		u, err := url.Parse(c.OCR.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("ocr.endpoint: %q is not an http(s) URL", c.OCR.Endpoint))
		}
	case EngineTesseract:
	default:
		errs = append(errs, fmt.Errorf("ocr.engine: unknown engine %q", c.OCR.Engine))
	}
	if c.OCR.Timeout < 0 {
		errs = append(errs, fmt.Errorf("ocr.timeout: must not be negative"))
	}
	if c.Redact.MosaicSize < 1 || c.Redact.MosaicSize > 1000 {
		errs = append(errs, fmt.Errorf("redact.mosaic_size: %d is outside 1..1000", c.Redact.MosaicSize))
	}
	if _, err := c.MatchPatterns(); err != nil {
		errs = append(errs, err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// MatchPatterns compiles redact.match.
func (c Config) MatchPatterns() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.Redact.Match))
	for _, p := range c.Redact.Match {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact.match: %w", err)
		}
		out = append(out, re)
	}
	return out, nil
}

// LogLevel returns the configured level, info when unparsable.
func (c Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
