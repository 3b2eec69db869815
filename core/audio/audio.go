// Package audio handles metadata for MP3 (ID3), FLAC and OGG (Vorbis
// comments) and M4A (iTunes atoms).
package audio

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"golang.org/x/text/encoding/charmap"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// Handler implements core.Handler for audio formats.
type Handler struct {
	format core.FormatID
}

// New returns an audio Handler for the given format.
func New(format core.FormatID) *Handler { return &Handler{format: format} }

func (h *Handler) Info() core.FormatInfo {
	return formatInfo[h.format]
}

func readOnlyInfo(name, mime, ns string, id core.FormatID) core.FormatInfo {
	return core.FormatInfo{
		Name:       name,
		Extensions: core.Extensions(id),
		MediaType:  "audio",
		MIMETypes:  []string{mime},
		Namespaces: []string{ns},
		Notes:      "Read-only.",
	}
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtMP3: {
		Name:       "MP3",
		Extensions: core.Extensions(core.FmtMP3),
		MediaType:  "audio",
		MIMETypes:  []string{"audio/mpeg"},
		CanEdit:    true,
		CanStrip:   true,
		Namespaces: []string{"Id3.", "Id3v1."},
		Notes:      "ID3v2 text, comment and lyrics frames. Strip also drops ID3v1.",
	},
	core.FmtFLAC: readOnlyInfo("FLAC", "audio/flac", "Vorbis.", core.FmtFLAC),
	core.FmtOGG:  readOnlyInfo("OGG", "audio/ogg", "Vorbis.", core.FmtOGG),
	core.FmtM4A:  readOnlyInfo("M4A", "audio/mp4", "Mp4.", core.FmtM4A),
}

// ─── View ────────────────────────────────────────────────────────────────────

func (h *Handler) View(path string) (*core.Metadata, error) {
	m := &core.Metadata{FilePath: path, Format: h.format}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read tags: %w", err)
	}

	prefix, editable := keyPrefix(t.Format())
	namespace := string(t.Format())
	raw := t.Raw()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := rawValue(raw[k])
		if !ok {
			continue
		}
		name := displayName(t.Format(), k)
		m.Add(prefix+name, v, namespace, editable && editableFrame(frameID(name)))
	}
	return m, nil
}

func keyPrefix(f tag.Format) (string, bool) {
	switch f {
	case tag.ID3v2_2, tag.ID3v2_3, tag.ID3v2_4:
		return "Id3.", true
	case tag.ID3v1:
		return "Id3v1.", false
	case tag.VORBIS:
		return "Vorbis.", false
	case tag.MP4:
		return "Mp4.", false
	}
	return "Tag.", false
}

func displayName(f tag.Format, k string) string {
	switch f {
	case tag.VORBIS:
		return strings.ToUpper(k)
	case tag.MP4:
		// iTunes atoms use a Latin-1 © prefix.
		if s, err := charmap.ISO8859_1.NewDecoder().String(k); err == nil {
			return s
		}
	}
	return k
}

func rawValue(v any) (core.Value, bool) {
	switch t := v.(type) {
	case nil:
		return core.Value{}, false
	case string:
		return core.String(t), true
	case []string:
		return core.Strings(t), true
	case int:
		return core.Int(int64(t)), true
	case *tag.Comm:
		return core.String(t.Text), true
	case *tag.Picture:
		return core.String(fmt.Sprintf("%s picture, %d bytes", t.MIMEType, len(t.Data))), true
	case *tag.UFID:
		return core.Bytes(t.Identifier), true
	case []byte:
		return core.Bytes(t), true
	}
	return core.String(fmt.Sprint(v)), true
}

// frameID strips the index dhowden/tag appends to repeated frames.
func frameID(name string) string {
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return name
}

func editableFrame(id string) bool {
	if id == "COMM" || id == "USLT" {
		return true
	}
	return len(id) == 4 && id[0] == 'T' && id != "TXXX"
}

// ─── Edit ────────────────────────────────────────────────────────────────────

func (h *Handler) Edit(path string, changes []core.Change) error {
	if h.format != core.FmtMP3 {
		return fmt.Errorf("%s tags are read-only", h.format)
	}
	for _, c := range changes {
		if !strings.HasPrefix(c.Key, "Id3.") {
			return fmt.Errorf("key %q cannot be written to MP3", c.Key)
		}
	}

	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("could not open MP3: %w", err)
	}
	defer t.Close()

	for _, c := range changes {
		id := frameID(strings.TrimPrefix(c.Key, "Id3."))
		if c.Remove {
			t.DeleteFrames(id)
			continue
		}
		if !editableFrame(id) {
			return fmt.Errorf("frame %s can only be removed", id)
		}
		text := c.Value.String()
		switch id {
		case "COMM":
			t.DeleteFrames(id)
			t.AddCommentFrame(id3v2.CommentFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: "eng",
				Text:     text,
			})
		case "USLT":
			t.DeleteFrames(id)
			t.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: "eng",
				Lyrics:   text,
			})
		default:
			t.AddTextFrame(id, id3v2.EncodingUTF8, text)
		}
	}
	return t.Save()
}

// ─── Strip ───────────────────────────────────────────────────────────────────

func (h *Handler) Strip(path string, opts core.StripOptions) error {
	if h.format != core.FmtMP3 {
		return fmt.Errorf("%s tags are read-only", h.format)
	}
	if opts.GPSOnly {
		return nil
	}

	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	for id := range t.AllFrames() {
		if !opts.Keeps("Id3." + id) {
			t.DeleteFrames(id)
		}
	}
	if err := t.Save(); err != nil {
		t.Close()
		return err
	}
	if err := t.Close(); err != nil {
		return err
	}
	return dropID3v1(path)
}

// dropID3v1 truncates a trailing 128-byte ID3v1 tag.
func dropID3v1(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() < 128 {
		return nil
	}
	hdr := make([]byte, 3)
	if _, err := f.ReadAt(hdr, st.Size()-128); err != nil {
		return err
	}
	if string(hdr) != "TAG" {
		return nil
	}
	return f.Truncate(st.Size() - 128)
}
