package image

import (
	"bytes"
	"compress/zlib"
	stdimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

func testPicture() stdimage.Image {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	return img
}

func writeJPEGFixture(t *testing.T, changes ...core.Change) string {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testPicture(), nil); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	if len(changes) > 0 {
		if err := editJPEG(path, changes); err != nil {
			t.Fatalf("editJPEG: %v", err)
		}
	}
	return path
}

func set(key string, v core.Value) core.Change { return core.Change{Key: key, Value: v} }

func view(t *testing.T, h *Handler, path string) *core.Metadata {
	t.Helper()
	m, err := h.View(path)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	return m
}

func assertDecodes(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, _, err := stdimage.Decode(f); err != nil {
		t.Fatalf("image no longer decodes: %v", err)
	}
}

func TestExifTreeRoundTrip(t *testing.T) {
	tree := newExifTree()
	err := tree.apply([]core.Change{
		set("Exif.Image.Make", core.String("Canon")),
		set("Exif.Image.Artist", core.String("Jane Doe")),
		set("Exif.Photo.DateTimeOriginal", core.String("2021:03:04 05:06:07")),
		set("Exif.Photo.UserComment", core.String("hello")),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := parseExifTree(tree.serialize())
	if err != nil {
		t.Fatal(err)
	}
	m := &core.Metadata{}
	got.fields(m, true)

	want := map[string]string{
		"Exif.Image.Make":             "Canon",
		"Exif.Image.Artist":           "Jane Doe",
		"Exif.Photo.DateTimeOriginal": "2021:03:04 05:06:07",
		"Exif.Photo.UserComment":      "hello",
	}
	for k, v := range want {
		val, ok := m.Get(k)
		if !ok {
			t.Errorf("missing %s", k)
			continue
		}
		if val.String() != v {
			t.Errorf("%s = %q, want %q", k, val.String(), v)
		}
	}
	for _, f := range m.Fields {
		if strings.HasSuffix(f.Key, "ExifIFDPointer") || f.Key == "Exif.Image.0x8769" {
			t.Errorf("structural tag listed: %s", f.Key)
		}
	}
}

func TestExifTypedValues(t *testing.T) {
	tree := newExifTree()
	photo := &exifIFD{group: groupPhoto}
	tree.ifds[groupPhoto] = photo

	iso, err := tree.encode(0x8827, tiff.DTShort, nil, core.Int(400))
	if err != nil {
		t.Fatal(err)
	}
	exposure, err := tree.encode(0x829A, tiff.DTRational, nil, core.Rat(1, 250))
	if err != nil {
		t.Fatal(err)
	}
	photo.set(iso)
	photo.set(exposure)

	got, err := parseExifTree(tree.serialize())
	if err != nil {
		t.Fatal(err)
	}
	m := &core.Metadata{}
	got.fields(m, true)

	var sawISO, sawExposure bool
	for _, f := range m.Fields {
		switch {
		case f.Value.Kind == core.KindInt && f.Value.Int == 400:
			sawISO = true
		case f.Value.Kind == core.KindRational && f.Value.Rat == (core.Rational{Num: 1, Den: 250}):
			sawExposure = true
		}
	}
	if !sawISO || !sawExposure {
		t.Fatalf("typed values lost: %+v", m.Fields)
	}

	if _, err := tree.encode(0x8827, tiff.DTShort, nil, core.String("fast")); err == nil {
		t.Fatal("expected error encoding string as SHORT")
	}
}

func TestJPEGEditPreservesUntouchedTags(t *testing.T) {
	path := writeJPEGFixture(t,
		set("Exif.Image.Make", core.String("Canon")),
		set("Exif.Image.Model", core.String("EOS 5D")),
		set("Exif.Image.Artist", core.String("Jane Doe")),
	)
	h := New(core.FmtJPEG)

	err := h.Edit(path, []core.Change{
		set("Exif.Image.Make", core.String("Nikon")),
		{Key: "Exif.Image.Artist", Remove: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	m := view(t, h, path)
	if v, _ := m.Get("Exif.Image.Make"); v.String() != "Nikon" {
		t.Errorf("Make = %q", v.String())
	}
	if v, _ := m.Get("Exif.Image.Model"); v.String() != "EOS 5D" {
		t.Errorf("Model = %q", v.String())
	}
	if _, ok := m.Get("Exif.Image.Artist"); ok {
		t.Error("Artist still present")
	}
	assertDecodes(t, path)
}

func TestJPEGRejectsForeignKeys(t *testing.T) {
	path := writeJPEGFixture(t)
	err := New(core.FmtJPEG).Edit(path, []core.Change{set("Pdf.Info.Author", core.String("x"))})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestJPEGStripGPSOnly(t *testing.T) {
	path := writeJPEGFixture(t, set("Exif.Image.Make", core.String("Canon")))

	// Add a GPS IFD directly; the edit path does not create one.
	segs, err := readJPEG(path)
	if err != nil {
		t.Fatal(err)
	}
	idx := indexOf(segs, jpegSegment.isEXIF)
	tree, err := parseExifTree(segs[idx].data[len(exifHeader):])
	if err != nil {
		t.Fatal(err)
	}
	ref, _ := tree.encode(0x0001, tiff.DTAscii, nil, core.String("N"))
	lat, _ := tree.encode(0x0002, tiff.DTRational, nil, core.List(core.Rat(51, 1), core.Rat(30, 1), core.Rat(0, 1)))
	tree.ifds[groupGPS] = &exifIFD{group: groupGPS, entries: []*exifEntry{ref, lat}}
	segs[idx].data = append(append([]byte{}, exifHeader...), tree.serialize()...)
	if err := writeJPEG(path, segs); err != nil {
		t.Fatal(err)
	}

	h := New(core.FmtJPEG)
	if !hasPrefix(view(t, h, path), "Exif.GPSInfo.") {
		t.Fatal("fixture has no GPS fields")
	}

	if err := h.Strip(path, core.StripOptions{GPSOnly: true}); err != nil {
		t.Fatal(err)
	}
	m := view(t, h, path)
	if hasPrefix(m, "Exif.GPSInfo.") {
		t.Error("GPS fields survived")
	}
	if v, _ := m.Get("Exif.Image.Make"); v.String() != "Canon" {
		t.Errorf("Make = %q", v.String())
	}
	assertDecodes(t, path)
}

func hasPrefix(m *core.Metadata, prefix string) bool {
	for _, f := range m.Fields {
		if strings.HasPrefix(f.Key, prefix) {
			return true
		}
	}
	return false
}

func TestJPEGStrip(t *testing.T) {
	tests := []struct {
		name string
		keep []string
		want []string
		gone []string
	}{
		{"all", nil, nil, []string{"Exif.Image.Make", "Exif.Image.Artist", "Iptc.Application2.City"}},
		{"keep make", []string{"Exif.Image.Make"}, []string{"Exif.Image.Make"}, []string{"Exif.Image.Artist", "Iptc.Application2.City"}},
		{"keep city", []string{"Iptc.Application2.City"}, []string{"Iptc.Application2.City"}, []string{"Exif.Image.Make"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeJPEGFixture(t,
				set("Exif.Image.Make", core.String("Canon")),
				set("Exif.Image.Artist", core.String("Jane Doe")),
				set("Iptc.Application2.City", core.String("Berlin")),
			)
			h := New(core.FmtJPEG)
			if err := h.Strip(path, core.StripOptions{Keep: tt.keep}); err != nil {
				t.Fatal(err)
			}
			m := view(t, h, path)
			for _, k := range tt.want {
				if _, ok := m.Get(k); !ok {
					t.Errorf("%s removed", k)
				}
			}
			for _, k := range tt.gone {
				if _, ok := m.Get(k); ok {
					t.Errorf("%s kept", k)
				}
			}
			assertDecodes(t, path)
		})
	}
}

const samplePacket = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmp:CreatorTool="Camera Firmware 1.0">
   <dc:creator><rdf:Seq><rdf:li>Jane Doe</rdf:li><rdf:li>John Roe</rdf:li></rdf:Seq></dc:creator>
   <dc:title><rdf:Alt><rdf:li xml:lang="x-default">Beach</rdf:li></rdf:Alt></dc:title>
   <xmp:Rating>3</xmp:Rating>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

func xmpMap(packet []byte) map[string]core.Value {
	out := map[string]core.Value{}
	for _, p := range parseXMP(packet) {
		out[p.key] = p.value
	}
	return out
}

func TestParseXMP(t *testing.T) {
	got := xmpMap([]byte(samplePacket))

	if v := got["Xmp.xmp.CreatorTool"]; v.String() != "Camera Firmware 1.0" {
		t.Errorf("CreatorTool = %q", v.String())
	}
	if v := got["Xmp.dc.creator"]; v.Kind != core.KindList || len(v.List) != 2 || v.List[1].String() != "John Roe" {
		t.Errorf("creator = %+v", v)
	}
	if v := got["Xmp.dc.title"]; v.String() != "Beach" {
		t.Errorf("title = %q", v.String())
	}
	if v := got["Xmp.xmp.Rating"]; v.String() != "3" {
		t.Errorf("Rating = %q", v.String())
	}
}

func TestEditXMP(t *testing.T) {
	out, err := editXMP([]byte(samplePacket), []core.Change{
		set("Xmp.xmp.CreatorTool", core.String("Editor <2>")),
		set("Xmp.dc.creator", core.Strings([]string{"Anonymous"})),
		{Key: "Xmp.xmp.Rating", Remove: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := xmpMap(out)
	if v := got["Xmp.xmp.CreatorTool"]; v.String() != "Editor <2>" {
		t.Errorf("CreatorTool = %q", v.String())
	}
	if v := got["Xmp.dc.creator"]; v.String() != "Anonymous" {
		t.Errorf("creator = %q", v.String())
	}
	if _, ok := got["Xmp.xmp.Rating"]; ok {
		t.Error("Rating still present")
	}
	if v := got["Xmp.dc.title"]; v.String() != "Beach" {
		t.Errorf("title changed: %q", v.String())
	}

	if _, err := editXMP([]byte(samplePacket), []core.Change{set("Xmp.dc.rights", core.String("x"))}); err == nil {
		t.Error("expected error for absent property")
	}
}

func TestIPTCRoundTrip(t *testing.T) {
	res := &photoshopResources{}
	err := res.apply([]core.Change{
		set("Iptc.Application2.Keywords", core.Strings([]string{"beach", "family"})),
		set("Iptc.Application2.City", core.String("Berlin")),
	})
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]core.Value{}
	for _, ds := range parseIPTC(res.encode()).datasets() {
		got[ds.key] = ds.value
	}
	if v := got["Iptc.Application2.Keywords"]; v.Kind != core.KindList || len(v.List) != 2 {
		t.Errorf("Keywords = %+v", v)
	}
	if v := got["Iptc.Application2.City"]; v.String() != "Berlin" {
		t.Errorf("City = %q", v.String())
	}
	if v := got["Iptc.Application2.RecordVersion"]; v.Kind != core.KindInt || v.Int != 4 {
		t.Errorf("RecordVersion = %+v", v)
	}
}

func writePNGFixture(t *testing.T, extra ...pngChunk) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testPicture()); err != nil {
		t.Fatal(err)
	}
	chunks, err := readPNGChunks(&buf)
	if err != nil {
		t.Fatal(err)
	}
	// IHDR first, extras before the image data.
	all := append([]pngChunk{chunks[0]}, extra...)
	all = append(all, chunks[1:]...)
	path := filepath.Join(t.TempDir(), "image.png")
	if err := writePNGChunks(path, all); err != nil {
		t.Fatal(err)
	}
	return path
}

func zTXt(keyword, text string) pngChunk {
	var z bytes.Buffer
	w := zlib.NewWriter(&z)
	w.Write([]byte(text))
	w.Close()
	return pngChunk{typ: "zTXt", data: append([]byte(keyword+"\x00\x00"), z.Bytes()...)}
}

func TestPNGView(t *testing.T) {
	path := writePNGFixture(t,
		textChunkFor("Author", "Jane Doe"),
		textChunkFor("Title", "Grüße"),
		textChunkFor("Comment", "日本"),
		zTXt("Description", "compressed text"),
	)
	m := view(t, New(core.FmtPNG), path)

	want := map[string]string{
		"Png.Text.Author":      "Jane Doe",
		"Png.Text.Title":       "Grüße",
		"Png.Text.Comment":     "日本",
		"Png.Text.Description": "compressed text",
	}
	for k, v := range want {
		if got, _ := m.Get(k); got.String() != v {
			t.Errorf("%s = %q, want %q", k, got.String(), v)
		}
	}
	if f, _ := m.Field("Png.Text.Comment"); f.Namespace != "PNG iTXt" {
		t.Errorf("non-Latin-1 text stored as %s", f.Namespace)
	}
}

func TestPNGEdit(t *testing.T) {
	path := writePNGFixture(t, textChunkFor("Author", "Jane Doe"), textChunkFor("Software", "Camera"))
	h := New(core.FmtPNG)

	err := h.Edit(path, []core.Change{
		set("Png.Text.Author", core.String("Anonymous")),
		set("Png.Text.Copyright", core.String("CC0")),
		{Key: "Png.Text.Software", Remove: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := view(t, h, path)
	if v, _ := m.Get("Png.Text.Author"); v.String() != "Anonymous" {
		t.Errorf("Author = %q", v.String())
	}
	if v, _ := m.Get("Png.Text.Copyright"); v.String() != "CC0" {
		t.Errorf("Copyright = %q", v.String())
	}
	if _, ok := m.Get("Png.Text.Software"); ok {
		t.Error("Software still present")
	}
	assertDecodes(t, path)
}

func TestPNGStripKeeps(t *testing.T) {
	path := writePNGFixture(t, textChunkFor("Author", "Jane Doe"), textChunkFor("Copyright", "CC0"))
	h := New(core.FmtPNG)
	if err := h.Strip(path, core.StripOptions{Keep: []string{"Png.Text.Copyright"}}); err != nil {
		t.Fatal(err)
	}
	m := view(t, h, path)
	if len(m.Fields) != 1 || m.Fields[0].Key != "Png.Text.Copyright" {
		t.Fatalf("fields after strip = %+v", m.Fields)
	}
	assertDecodes(t, path)
}
