package document

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/go-pdf/fpdf"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

func writePDFFixture(t *testing.T) string {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetTitle("Quarterly Report", false)
	pdf.SetAuthor("Jane Doe", false)
	pdf.SetSubject("Grüße aus Köln", true)
	pdf.SetKeywords("finance internal", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "Hello")
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func view(t *testing.T, h *Handler, path string) *core.Metadata {
	t.Helper()
	m, err := h.View(path)
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

func TestLexer(t *testing.T) {
	l := &pdfLexer{b: []byte(`<< /A (x\(y\)\101) /B <FEFF0041> /C [1 0 R 2 /N] /D /Na#20me /E true >>`)}
	d, err := l.dictObject()
	if err != nil {
		t.Fatal(err)
	}
	if s := d.vals["A"].(pdfString); string(s.b) != "x(y)A" {
		t.Errorf("A = %q", s.b)
	}
	if s := d.vals["B"].(pdfString); decodeText(s.b) != "A" {
		t.Errorf("B = %q", decodeText(s.b))
	}
	arr := d.vals["C"].(pdfArray)
	if len(arr) != 3 || arr[0] != (pdfRef{1, 0}) || arr[1] != pdfNumber("2") || arr[2] != pdfName("N") {
		t.Errorf("C = %#v", arr)
	}
	if d.vals["D"] != pdfName("Na me") {
		t.Errorf("D = %#v", d.vals["D"])
	}
	if d.vals["E"] != pdfKeyword("true") {
		t.Errorf("E = %#v", d.vals["E"])
	}

	var buf bytes.Buffer
	writeObject(&buf, d)
	again, err := (&pdfLexer{b: buf.Bytes()}).dictObject()
	if err != nil {
		t.Fatalf("reparse %q: %v", buf.String(), err)
	}
	if string(again.vals["A"].(pdfString).b) != "x(y)A" || again.vals["D"] != pdfName("Na me") {
		t.Errorf("rewrite changed values: %s", buf.String())
	}
}

func TestTextEncoding(t *testing.T) {
	for _, s := range []string{"plain", "Zoë", "日本語"} {
		enc := encodeText(s)
		if got := decodeText(enc.b); got != s {
			t.Errorf("round trip %q = %q", s, got)
		}
	}
	if enc := encodeText("plain"); enc.hex {
		t.Error("ASCII should stay a literal string")
	}
}

func TestPDFView(t *testing.T) {
	m := view(t, New(core.FmtPDF), writePDFFixture(t))
	assertValue(t, m, "Pdf.Info.Title", "Quarterly Report")
	assertValue(t, m, "Pdf.Info.Author", "Jane Doe")
	assertValue(t, m, "Pdf.Info.Subject", "Grüße aus Köln")
	if _, ok := m.Get("Pdf.Version"); !ok {
		t.Error("Pdf.Version missing")
	}
}

func TestPDFEditIncrementalUpdate(t *testing.T) {
	path := writePDFFixture(t)
	orig, _ := os.ReadFile(path)
	h := New(core.FmtPDF)

	err := h.Edit(path, []core.Change{
		{Key: "Pdf.Info.Author", Value: core.String("Zoë")},
		{Key: "Pdf.Info.Keywords", Remove: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, _ := os.ReadFile(path)
	if len(out) <= len(orig) || !bytes.Equal(out[:8], orig[:8]) {
		t.Fatal("update was not appended")
	}
	if bytes.Contains(out, []byte("Jane Doe")) {
		t.Error("old author still present in file")
	}
	if !bytes.HasSuffix(out, []byte("%%EOF\n")) {
		t.Error("missing EOF marker")
	}

	m := view(t, h, path)
	assertValue(t, m, "Pdf.Info.Author", "Zoë")
	assertValue(t, m, "Pdf.Info.Title", "Quarterly Report")
	if _, ok := m.Get("Pdf.Info.Keywords"); ok {
		t.Error("Keywords still present")
	}

	// A second revision chains through /Prev.
	if err := h.Edit(path, []core.Change{{Key: "Pdf.Info.Title", Value: core.String("Draft")}}); err != nil {
		t.Fatal(err)
	}
	m = view(t, h, path)
	assertValue(t, m, "Pdf.Info.Title", "Draft")
	assertValue(t, m, "Pdf.Info.Author", "Zoë")
}

func TestPDFRejectsForeignKeys(t *testing.T) {
	err := New(core.FmtPDF).Edit(writePDFFixture(t), []core.Change{{Key: "Exif.Image.Make", Value: core.String("x")}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPDFStrip(t *testing.T) {
	path := writePDFFixture(t)
	h := New(core.FmtPDF)
	if err := h.Strip(path, core.StripOptions{Keep: []string{"Pdf.Info.Title"}}); err != nil {
		t.Fatal(err)
	}
	out, _ := os.ReadFile(path)
	if bytes.Contains(out, []byte("Jane Doe")) {
		t.Error("author survived strip")
	}
	m := view(t, h, path)
	assertValue(t, m, "Pdf.Info.Title", "Quarterly Report")
	for _, f := range m.Fields {
		if f.Key != "Pdf.Info.Title" && f.Key != "Pdf.Version" {
			t.Errorf("unexpected field after strip: %s", f.Key)
		}
	}
}

const coreXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><dc:creator>Jane Doe</dc:creator><cp:lastModifiedBy>John Roe</cp:lastModifiedBy><dcterms:created xsi:type="dcterms:W3CDTF">2021-03-04T05:06:07Z</dcterms:created></cp:coreProperties>`

const appXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties" xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes"><Application>Microsoft Office Word</Application><Company>Acme Corp</Company><Pages>3</Pages><HeadingPairs><vt:vector size="2" baseType="variant"><vt:variant><vt:lpstr>Title</vt:lpstr></vt:variant><vt:variant><vt:i4>1</vt:i4></vt:variant></vt:vector></HeadingPairs></Properties>`

const bodyXML = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Hello</w:t></w:r></w:p></w:body></w:document>`

func writeDOCXFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "letter.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, part := range []struct{ name, body string }{
		{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"docProps/core.xml", coreXML},
		{"docProps/app.xml", appXML},
		{"word/document.xml", bodyXML},
	} {
		fw, err := w.Create(part.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(part.body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func readPart(t *testing.T, path, name string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name == name {
			rc, _ := f.Open()
			b, _ := io.ReadAll(rc)
			rc.Close()
			return string(b)
		}
	}
	t.Fatalf("part %s missing", name)
	return ""
}

func TestOPCView(t *testing.T) {
	m := view(t, New(core.FmtDOCX), writeDOCXFixture(t))
	assertValue(t, m, "Office.Core.creator", "Jane Doe")
	assertValue(t, m, "Office.Core.lastModifiedBy", "John Roe")
	assertValue(t, m, "Office.Core.created", "2021-03-04T05:06:07Z")
	assertValue(t, m, "Office.App.Company", "Acme Corp")
	if f, _ := m.Field("Office.App.Company"); f.Editable {
		t.Error("app.xml fields must be read-only")
	}
	if _, ok := m.Get("Office.App.HeadingPairs"); ok {
		t.Error("vector property listed")
	}
}

func TestOPCEdit(t *testing.T) {
	path := writeDOCXFixture(t)
	h := New(core.FmtDOCX)
	err := h.Edit(path, []core.Change{
		{Key: "Office.Core.creator", Value: core.String("A & B")},
		{Key: "Office.Core.title", Value: core.String("Letter")},
		{Key: "Office.Core.lastModifiedBy", Remove: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := view(t, h, path)
	assertValue(t, m, "Office.Core.creator", "A & B")
	assertValue(t, m, "Office.Core.title", "Letter")
	if _, ok := m.Get("Office.Core.lastModifiedBy"); ok {
		t.Error("lastModifiedBy still present")
	}
	if got := readPart(t, path, "word/document.xml"); got != bodyXML {
		t.Errorf("body changed: %s", got)
	}

	if err := h.Edit(path, []core.Change{{Key: "Office.App.Company", Value: core.String("x")}}); err == nil {
		t.Error("expected error editing app.xml")
	}
}

func TestOPCStrip(t *testing.T) {
	path := writeDOCXFixture(t)
	h := New(core.FmtDOCX)
	if err := h.Strip(path, core.StripOptions{}); err != nil {
		t.Fatal(err)
	}
	m := view(t, h, path)
	for _, f := range m.Fields {
		if f.Namespace == "Core Properties" {
			t.Errorf("core property survived: %s", f.Key)
		}
	}
	if _, ok := m.Get("Office.App.Company"); ok {
		t.Error("Company survived strip")
	}
	assertValue(t, m, "Office.App.Pages", "3")
}

func TestOPCStripKeep(t *testing.T) {
	path := writeDOCXFixture(t)
	h := New(core.FmtDOCX)
	if err := h.Strip(path, core.StripOptions{Keep: []string{"Office.Core.created"}}); err != nil {
		t.Fatal(err)
	}
	m := view(t, h, path)
	assertValue(t, m, "Office.Core.created", "2021-03-04T05:06:07Z")
	if _, ok := m.Get("Office.Core.creator"); ok {
		t.Error("creator survived strip")
	}
}
