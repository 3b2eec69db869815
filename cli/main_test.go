package main

import (
	"testing"

	"github.com/ankit-chaubey/privacy-surgery/core/config"
)

func TestOutPath(t *testing.T) {
	cases := []struct{ path, out, suffix, ext, want string }{
		{"photo.jpg", "", "_clean", ".jpg", "photo_clean.jpg"},
		{"dir/scan.tiff", "", "_redacted", ".png", "dir/scan_redacted.png"},
		{"a.pdf", "b.pdf", "_edited", ".pdf", "b.pdf"},
	}
	for _, tc := range cases {
		if got := outPath(tc.path, tc.out, tc.suffix, tc.ext); got != tc.want {
			t.Errorf("outPath(%q, %q) = %q, want %q", tc.path, tc.out, got, tc.want)
		}
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv(config.EnvMosaicSize, "0")
	if _, err := loadConfig(""); err == nil {
		t.Error("expected validation error")
	}
	t.Setenv(config.EnvMosaicSize, "12")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redact.MosaicSize != 12 {
		t.Errorf("mosaic size = %d", cfg.Redact.MosaicSize)
	}
}
