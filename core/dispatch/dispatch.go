// Package dispatch routes metadata operations to the handler for a file's
// format.
package dispatch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/audio"
	"github.com/ankit-chaubey/privacy-surgery/core/document"
	"github.com/ankit-chaubey/privacy-surgery/core/image"
)

// formats lists every supported format in display order.
var formats = []core.FormatID{
	core.FmtJPEG, core.FmtPNG,
	core.FmtPDF, core.FmtDOCX, core.FmtXLSX, core.FmtPPTX,
	core.FmtMP3, core.FmtFLAC, core.FmtOGG, core.FmtM4A,
}

// HandlerFor returns the handler for a format, or nil.
func HandlerFor(id core.FormatID) core.Handler {
	switch core.MediaTypeFor(id) {
	case "image":
		return image.New(id)
	case "document":
		return document.New(id)
	case "audio":
		return audio.New(id)
	}
	return nil
}

// Dispatcher reads and writes metadata.
type Dispatcher struct {
	Logger zerolog.Logger
}

// New returns a Dispatcher that logs to logger.
func New(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{Logger: logger}
}

// resolve picks the handler by extension and warns when the content looks
// like something else.
func (d *Dispatcher) resolve(op, path string) (core.FormatID, core.Handler, error) {
	id, err := core.FormatFor(op, path)
	if err != nil {
		return id, nil, err
	}
	if sniffed, err := core.SniffFile(path); err == nil && !core.SameContainer(id, sniffed) {
		d.Logger.Warn().
			Str("path", path).
			Str("extension", string(id)).
			Str("content", string(sniffed)).
			Msg("file content does not match its extension")
	}
	return id, HandlerFor(id), nil
}

// ReadMetadata returns every metadata field of path.
func (d *Dispatcher) ReadMetadata(path string) (*core.Metadata, error) {
	_, h, err := d.resolve("read", path)
	if err != nil {
		return nil, err
	}
	md, err := h.View(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d.Logger.Debug().Str("path", path).Int("fields", len(md.Fields)).Msg("metadata read")
	return md, nil
}

// Plan turns user edits into the changes that differ from md. Values are
// coerced to the type of the field they replace; new keys are parsed as
// literals. An empty value removes the key. Every invalid edit is reported,
// joined into one error.
func Plan(md *core.Metadata, edits map[string]string) ([]core.Change, error) {
	keys := make([]string, 0, len(edits))
	for k := range edits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		changes []core.Change
		errs    []error
	)
	for _, key := range keys {
		input := edits[key]
		field, exists := md.Field(key)

		if !exists {
			if input == "" {
				continue
			}
			changes = append(changes, core.Change{Key: key, Value: core.ParseLiteral(input)})
			continue
		}
		if !field.Editable {
			errs = append(errs, core.NewValueError(key, input, core.NewReadOnlyError(field.Namespace)))
			continue
		}
		if input == "" {
			changes = append(changes, core.Change{Key: key, Remove: true})
			continue
		}
		v, err := core.Coerce(field.Value, input)
		if err != nil {
			errs = append(errs, core.NewValueError(key, input, err))
			continue
		}
		if v.Equal(field.Value) {
			continue
		}
		changes = append(changes, core.Change{Key: key, Value: v})
	}
	return changes, errors.Join(errs...)
}

// WriteMetadata copies path to dest and applies the edits that change
// something. With nothing to change dest is a byte-identical copy.
func (d *Dispatcher) WriteMetadata(path string, edits map[string]string, dest string) error {
	_, h, err := d.prepare("write", path, dest)
	if err != nil {
		return err
	}
	md, err := h.View(path)
	if err != nil {
		return core.NewWriteError(dest, err)
	}
	changes, err := Plan(md, edits)
	if err != nil {
		return err
	}
	if len(changes) > 0 && !h.Info().CanEdit {
		return core.NewWriteError(dest, core.NewReadOnlyError(h.Info().Name))
	}

	if err := core.CopyFile(path, dest); err != nil {
		return core.NewWriteError(dest, err)
	}
	if len(changes) == 0 {
		d.Logger.Info().Str("dest", dest).Msg("no changes, copied unchanged")
		return nil
	}
	if err := h.Edit(dest, changes); err != nil {
		return d.abandon(dest, err)
	}
	d.Logger.Info().Str("dest", dest).Int("changes", len(changes)).Msg("metadata written")
	return nil
}

// Strip copies path to dest and removes metadata from the copy.
func (d *Dispatcher) Strip(path, dest string, opts core.StripOptions) error {
	_, h, err := d.prepare("strip", path, dest)
	if err != nil {
		return err
	}
	if !h.Info().CanStrip {
		return core.NewWriteError(dest, core.NewReadOnlyError(h.Info().Name))
	}
	if err := core.CopyFile(path, dest); err != nil {
		return core.NewWriteError(dest, err)
	}
	if err := h.Strip(dest, opts); err != nil {
		return d.abandon(dest, err)
	}
	d.Logger.Info().
		Str("dest", dest).
		Bool("gps_only", opts.GPSOnly).
		Strs("keep", opts.Keep).
		Msg("metadata stripped")
	return nil
}

func (d *Dispatcher) prepare(op, path, dest string) (core.FormatID, core.Handler, error) {
	id, h, err := d.resolve(op, path)
	if err != nil {
		return id, nil, core.NewWriteError(dest, err)
	}
	if samePath(path, dest) {
		return id, nil, core.NewWriteError(dest, fmt.Errorf("destination is the source file"))
	}
	return id, h, nil
}

// abandon removes a half-written destination and wraps the failure.
func (d *Dispatcher) abandon(dest string, cause error) error {
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.Logger.Warn().Err(err).Str("dest", dest).Msg("could not remove partial output")
	}
	return core.NewWriteError(dest, cause)
}

func samePath(a, b string) bool {
	ca, err1 := filepath.Abs(a)
	cb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ca == cb
}

// Formats returns the capability table of every supported format.
func Formats() []core.FormatInfo {
	out := make([]core.FormatInfo, 0, len(formats))
	for _, id := range formats {
		out = append(out, HandlerFor(id).Info())
	}
	return out
}
