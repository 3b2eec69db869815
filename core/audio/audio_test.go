package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogem/id3v2/v2"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// Not decodable audio, but enough for the tag readers and writers.
var fakeFrames = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 412)...)

func writeMP3Fixture(t *testing.T, v1 bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	data := append([]byte{}, fakeFrames...)
	if v1 {
		trailer := make([]byte, 128)
		copy(trailer, "TAGOld Title")
		data = append(data, trailer...)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	tag.SetTitle("Night Drive")
	tag.SetArtist("Jane Doe")
	tag.SetAlbum("Demos")
	tag.AddCommentFrame(id3v2.CommentFrame{
		Encoding: id3v2.EncodingUTF8,
		Language: "eng",
		Text:     "recorded at home",
	})
	if err := tag.Save(); err != nil {
		t.Fatal(err)
	}
	tag.Close()
	return path
}

func view(t *testing.T, path string) *core.Metadata {
	t.Helper()
	m, err := New(core.FmtMP3).View(path)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	return m
}

func assertValue(t *testing.T, m *core.Metadata, key, want string) {
	t.Helper()
	v, ok := m.Get(key)
	if !ok {
		t.Errorf("%s missing", key)
		return
	}
	if v.String() != want {
		t.Errorf("%s = %q, want %q", key, v.String(), want)
	}
}

func commentKey(m *core.Metadata) (core.MetaField, bool) {
	for _, f := range m.Fields {
		if strings.HasPrefix(f.Key, "Id3.COMM") {
			return f, true
		}
	}
	return core.MetaField{}, false
}

func TestMP3View(t *testing.T) {
	m := view(t, writeMP3Fixture(t, false))
	assertValue(t, m, "Id3.TIT2", "Night Drive")
	assertValue(t, m, "Id3.TPE1", "Jane Doe")
	if f, _ := m.Field("Id3.TIT2"); !f.Editable {
		t.Error("TIT2 should be editable")
	}
	f, ok := commentKey(m)
	if !ok {
		t.Fatal("comment frame missing")
	}
	if f.Value.String() != "recorded at home" || !f.Editable {
		t.Errorf("comment = %+v", f)
	}
}

func TestMP3Edit(t *testing.T) {
	path := writeMP3Fixture(t, false)
	h := New(core.FmtMP3)
	err := h.Edit(path, []core.Change{
		{Key: "Id3.TPE1", Value: core.String("Zoë")},
		{Key: "Id3.TALB", Remove: true},
		{Key: "Id3.TYER", Value: core.String("2024")},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := view(t, path)
	assertValue(t, m, "Id3.TPE1", "Zoë")
	assertValue(t, m, "Id3.TIT2", "Night Drive")
	if _, ok := m.Get("Id3.TALB"); ok {
		t.Error("TALB still present")
	}

	out, _ := os.ReadFile(path)
	if !bytes.HasSuffix(out, fakeFrames) {
		t.Error("audio frames changed")
	}
}

func TestMP3EditRejects(t *testing.T) {
	h := New(core.FmtMP3)
	for _, c := range []core.Change{
		{Key: "Exif.Image.Make", Value: core.String("x")},
		{Key: "Id3.APIC", Value: core.String("x")},
	} {
		if err := h.Edit(writeMP3Fixture(t, false), []core.Change{c}); err == nil {
			t.Errorf("%s: expected error", c.Key)
		}
	}
}

func TestMP3Strip(t *testing.T) {
	path := writeMP3Fixture(t, true)
	if err := New(core.FmtMP3).Strip(path, core.StripOptions{}); err != nil {
		t.Fatal(err)
	}
	out, _ := os.ReadFile(path)
	if !bytes.HasSuffix(out, fakeFrames) {
		t.Error("ID3v1 trailer survived strip")
	}
	if bytes.Contains(out, []byte("Jane Doe")) {
		t.Error("artist survived strip")
	}
	if m := view(t, path); len(m.Fields) != 0 {
		t.Errorf("fields after strip: %+v", m.Fields)
	}
}

func TestMP3StripKeep(t *testing.T) {
	path := writeMP3Fixture(t, false)
	err := New(core.FmtMP3).Strip(path, core.StripOptions{Keep: []string{"Id3.TIT2"}})
	if err != nil {
		t.Fatal(err)
	}
	m := view(t, path)
	assertValue(t, m, "Id3.TIT2", "Night Drive")
	if _, ok := m.Get("Id3.TPE1"); ok {
		t.Error("artist survived strip")
	}
	if _, ok := commentKey(m); ok {
		t.Error("comment survived strip")
	}
}

func TestReadOnlyFormats(t *testing.T) {
	for _, id := range []core.FormatID{core.FmtFLAC, core.FmtOGG, core.FmtM4A} {
		h := New(id)
		if h.Info().CanEdit || h.Info().CanStrip {
			t.Errorf("%s reports write support", id)
		}
		if err := h.Edit("unused", nil); err == nil {
			t.Errorf("%s: Edit should fail", id)
		}
	}
}

func TestFrameID(t *testing.T) {
	cases := map[string]string{"COMM": "COMM", "COMM_1": "COMM", "TXXX_0": "TXXX", "TIT2": "TIT2"}
	for in, want := range cases {
		if got := frameID(in); got != want {
			t.Errorf("frameID(%q) = %q, want %q", in, got, want)
		}
	}
	if editableFrame("TXXX") || editableFrame("APIC") || !editableFrame("TCON") {
		t.Error("editableFrame mismatch")
	}
}
