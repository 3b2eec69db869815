package document

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/image"
)

// ─── PDF ─────────────────────────────────────────────────────────────────────
// The newest trailer is found through startxref and the /Prev chain is
// walked to locate /Info and /Root. Objects are located by scanning for
// "N G obj" headers; the last definition in the file wins, matching how
// incremental updates supersede earlier revisions. Objects packed inside
// object streams are not visible to this reader.

var objHeader = regexp.MustCompile(`(?:^|[^0-9])(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

type objLoc struct {
	gen  int
	body int // offset just past "obj"
}

type pdfFile struct {
	data      []byte
	startxref int64
	trailers  []*pdfDict // newest first
	objects   map[int][]objLoc
}

func openPDF(data []byte) (*pdfFile, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("not a PDF")
	}
	f := &pdfFile{data: data, objects: map[int][]objLoc{}}
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		num, _ := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(data[m[4]:m[5]]))
		f.objects[num] = append(f.objects[num], objLoc{gen: gen, body: m[1]})
	}

	off, err := f.findStartXref()
	if err == nil {
		f.startxref = off
		err = f.loadTrailers(off)
	}
	if err != nil {
		// Damaged xref: fall back to the last trailer keyword.
		t, ferr := f.lastTrailer()
		if ferr != nil {
			return nil, fmt.Errorf("locate trailer: %w", err)
		}
		f.trailers = []*pdfDict{t}
	}
	return f, nil
}

func (f *pdfFile) findStartXref() (int64, error) {
	i := bytes.LastIndex(f.data, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("no startxref")
	}
	l := &pdfLexer{b: f.data, pos: i + len("startxref")}
	l.skipSpace()
	off, err := strconv.ParseInt(l.keyword(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad startxref: %w", err)
	}
	return off, nil
}

func (f *pdfFile) loadTrailers(off int64) error {
	seen := map[int64]bool{}
	for len(f.trailers) < 64 {
		if seen[off] {
			return fmt.Errorf("xref /Prev loop at %d", off)
		}
		seen[off] = true
		t, err := f.trailerAt(off)
		if err != nil {
			if len(f.trailers) > 0 {
				return nil
			}
			return err
		}
		f.trailers = append(f.trailers, t)
		prev, ok := t.int("Prev")
		if !ok {
			return nil
		}
		off = prev
	}
	return nil
}

// trailerAt reads the trailer of the xref section at off: either a classic
// "xref ... trailer <<>>" table or the dictionary of an xref stream.
func (f *pdfFile) trailerAt(off int64) (*pdfDict, error) {
	if off < 0 || off >= int64(len(f.data)) {
		return nil, fmt.Errorf("xref offset %d out of range", off)
	}
	l := &pdfLexer{b: f.data, pos: int(off)}
	l.skipSpace()
	if bytes.HasPrefix(f.data[l.pos:], []byte("xref")) {
		i := bytes.Index(f.data[l.pos:], []byte("trailer"))
		if i < 0 {
			return nil, fmt.Errorf("xref table at %d has no trailer", off)
		}
		l.pos += i + len("trailer")
		return l.dictObject()
	}
	for _, want := range []string{"", "", "obj"} {
		l.skipSpace()
		kw := l.keyword()
		if want != "" && kw != want {
			return nil, fmt.Errorf("no xref section at %d", off)
		}
	}
	return l.dictObject()
}

func (f *pdfFile) lastTrailer() (*pdfDict, error) {
	i := bytes.LastIndex(f.data, []byte("trailer"))
	if i < 0 {
		return nil, fmt.Errorf("no trailer")
	}
	l := &pdfLexer{b: f.data, pos: i + len("trailer")}
	return l.dictObject()
}

func (l *pdfLexer) dictObject() (*pdfDict, error) {
	obj, err := l.object()
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*pdfDict)
	if !ok {
		return nil, l.errorf("expected dictionary")
	}
	return d, nil
}

// defs returns every definition of r in file order.
func (f *pdfFile) defs(r pdfRef) []objLoc {
	var out []objLoc
	for _, loc := range f.objects[r.num] {
		if loc.gen == r.gen {
			out = append(out, loc)
		}
	}
	return out
}

// dictAt parses the dictionary that starts an object body and returns it
// with its byte span.
func (f *pdfFile) dictAt(loc objLoc) (*pdfDict, int, int, error) {
	l := &pdfLexer{b: f.data, pos: loc.body}
	l.skipSpace()
	start := l.pos
	d, err := l.dictObject()
	if err != nil {
		return nil, 0, 0, err
	}
	return d, start, l.pos, nil
}

func (f *pdfFile) lookupDict(r pdfRef) (*pdfDict, int, error) {
	defs := f.defs(r)
	if len(defs) == 0 {
		return nil, 0, fmt.Errorf("object %d %d not found", r.num, r.gen)
	}
	d, _, end, err := f.dictAt(defs[len(defs)-1])
	return d, end, err
}

// trailerRef finds key in the newest trailer that carries it.
func (f *pdfFile) trailerRef(key pdfName) (pdfRef, bool) {
	for _, t := range f.trailers {
		if r, ok := t.ref(key); ok {
			return r, true
		}
	}
	return pdfRef{}, false
}

func (f *pdfFile) encrypted() bool {
	for _, t := range f.trailers {
		if _, ok := t.get("Encrypt"); ok {
			return true
		}
	}
	return false
}

func (f *pdfFile) size() int {
	n := 0
	for _, t := range f.trailers {
		if s, ok := t.int("Size"); ok && int(s) > n {
			n = int(s)
		}
	}
	for num := range f.objects {
		if num+1 > n {
			n = num + 1
		}
	}
	return n
}

func (f *pdfFile) info() (*pdfDict, pdfRef, bool) {
	r, ok := f.trailerRef("Info")
	if !ok {
		return nil, pdfRef{}, false
	}
	d, _, err := f.lookupDict(r)
	if err != nil {
		return nil, pdfRef{}, false
	}
	return d, r, true
}

// streamData returns the raw bytes of the stream that follows a dictionary
// ending at dictEnd.
func (f *pdfFile) streamData(d *pdfDict, dictEnd int) (int, int, bool) {
	l := &pdfLexer{b: f.data, pos: dictEnd}
	l.skipSpace()
	if l.keyword() != "stream" {
		return 0, 0, false
	}
	pos := l.pos
	if pos < len(f.data) && f.data[pos] == '\r' {
		pos++
	}
	if pos < len(f.data) && f.data[pos] == '\n' {
		pos++
	}
	if n, ok := d.int("Length"); ok && pos+int(n) <= len(f.data) {
		return pos, pos + int(n), true
	}
	end := bytes.Index(f.data[pos:], []byte("endstream"))
	if end < 0 {
		return 0, 0, false
	}
	return pos, pos + end, true
}

// metadataStream locates the catalog's XMP stream.
func (f *pdfFile) metadataStream() (d *pdfDict, start, end int, ok bool) {
	root, ok := f.trailerRef("Root")
	if !ok {
		return nil, 0, 0, false
	}
	cat, _, err := f.lookupDict(root)
	if err != nil {
		return nil, 0, 0, false
	}
	mref, ok := cat.ref("Metadata")
	if !ok {
		return nil, 0, 0, false
	}
	d, dictEnd, err := f.lookupDict(mref)
	if err != nil {
		return nil, 0, 0, false
	}
	start, end, ok = f.streamData(d, dictEnd)
	return d, start, end, ok
}

func (f *pdfFile) xmpPacket() []byte {
	d, start, end, ok := f.metadataStream()
	if !ok {
		return nil
	}
	raw := f.data[start:end]
	switch filter, _ := d.get("Filter"); filter {
	case nil:
		return raw
	case pdfName("FlateDecode"):
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil
		}
		return out
	}
	return nil
}

// blank overwrites bytes [start,end) with spaces, keeping every offset in
// the file valid.
func (f *pdfFile) blank(start, end int) {
	for i := start; i < end; i++ {
		f.data[i] = ' '
	}
}

// blankDicts empties every definition of r in place.
func (f *pdfFile) blankDicts(r pdfRef) {
	for _, loc := range f.defs(r) {
		_, start, end, err := f.dictAt(loc)
		if err != nil || end-start < 4 {
			continue
		}
		f.blank(start+2, end-2)
	}
}

// ─── Incremental update ──────────────────────────────────────────────────────

type pdfUpdate struct {
	objects map[pdfRef]any
	info    *pdfRef // nil drops /Info from the new trailer
}

func (f *pdfFile) appendUpdate(u pdfUpdate) []byte {
	var buf bytes.Buffer
	buf.Write(f.data)
	if !bytes.HasSuffix(f.data, []byte("\n")) {
		buf.WriteByte('\n')
	}

	refs := make([]pdfRef, 0, len(u.objects))
	for r := range u.objects {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].num < refs[j].num })

	offsets := make(map[pdfRef]int, len(refs))
	size := f.size()
	for _, r := range refs {
		offsets[r] = buf.Len()
		fmt.Fprintf(&buf, "%d %d obj\n", r.num, r.gen)
		writeObject(&buf, u.objects[r])
		buf.WriteString("\nendobj\n")
		if r.num+1 > size {
			size = r.num + 1
		}
	}

	xref := buf.Len()
	buf.WriteString("xref\n")
	for _, r := range refs {
		fmt.Fprintf(&buf, "%d 1\n%010d %05d n \n", r.num, offsets[r], r.gen)
	}

	t := newDict()
	t.set("Size", pdfNumber(strconv.Itoa(size)))
	if root, ok := f.trailerRef("Root"); ok {
		t.set("Root", root)
	}
	if u.info != nil {
		t.set("Info", *u.info)
	}
	if len(f.trailers) > 0 {
		if id, ok := f.trailers[0].get("ID"); ok {
			t.set("ID", id)
		}
	}
	if f.startxref > 0 {
		t.set("Prev", pdfNumber(strconv.FormatInt(f.startxref, 10)))
	}
	buf.WriteString("trailer\n")
	writeObject(&buf, t)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

// ─── View ────────────────────────────────────────────────────────────────────

func viewPDF(path string, m *core.Metadata) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := openPDF(data)
	if err != nil {
		return err
	}

	if nl := bytes.IndexAny(data, "\r\n"); nl > 5 {
		m.Add("Pdf.Version", core.String(strings.TrimSpace(string(data[5:nl]))), "PDF Header", false)
	}
	editable := !f.encrypted()
	if info, _, ok := f.info(); ok {
		for _, k := range info.keys {
			if v, ok := infoValue(info.vals[k]); ok {
				m.Add("Pdf.Info."+string(k), v, "PDF Info", editable)
			}
		}
	}
	if packet := f.xmpPacket(); len(packet) > 0 {
		image.XMPFields(packet, m, false)
	}
	return nil
}

func infoValue(v any) (core.Value, bool) {
	switch t := v.(type) {
	case pdfString:
		return core.String(decodeText(t.b)), true
	case pdfName:
		return core.String(string(t)), true
	case pdfNumber:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return core.Int(i), true
		}
		if fl, err := strconv.ParseFloat(string(t), 64); err == nil {
			return core.Float(fl), true
		}
	case pdfKeyword:
		return core.String(string(t)), true
	}
	return core.Value{}, false
}

// infoObject encodes v in the form of the value it replaces.
func infoObject(old any, v core.Value) any {
	switch old.(type) {
	case pdfName:
		return pdfName(v.String())
	case pdfNumber:
		if v.Kind == core.KindInt || v.Kind == core.KindFloat {
			return pdfNumber(v.String())
		}
	}
	return encodeText(v.String())
}

// ─── Edit ────────────────────────────────────────────────────────────────────

func editPDF(path string, changes []core.Change) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := openPDF(data)
	if err != nil {
		return err
	}
	if f.encrypted() {
		return fmt.Errorf("encrypted PDFs cannot be edited")
	}

	cur, ref, ok := f.info()
	next := newDict()
	if ok {
		next = cur.clone()
	} else {
		ref = pdfRef{num: f.size()}
	}
	for _, c := range changes {
		name, ok := strings.CutPrefix(c.Key, "Pdf.Info.")
		if !ok || name == "" {
			return fmt.Errorf("key %q cannot be written to PDF", c.Key)
		}
		if c.Remove {
			next.del(pdfName(name))
			continue
		}
		old, _ := next.get(pdfName(name))
		next.set(pdfName(name), infoObject(old, c.Value))
	}

	// Superseded values must not survive in the earlier revision.
	for _, r := range f.infoRefs() {
		f.blankDicts(r)
	}
	out := f.appendUpdate(pdfUpdate{objects: map[pdfRef]any{ref: next}, info: &ref})
	return os.WriteFile(path, out, 0644)
}

// infoRefs lists the Info reference of every revision.
func (f *pdfFile) infoRefs() []pdfRef {
	seen := map[pdfRef]bool{}
	var out []pdfRef
	for _, t := range f.trailers {
		if r, ok := t.ref("Info"); ok && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// ─── Strip ───────────────────────────────────────────────────────────────────

func stripPDF(path string, opts core.StripOptions) error {
	if opts.GPSOnly {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := openPDF(data)
	if err != nil {
		return err
	}
	if f.encrypted() {
		return fmt.Errorf("encrypted PDFs cannot be stripped")
	}

	objects := map[pdfRef]any{}
	var infoRef *pdfRef
	if cur, ref, ok := f.info(); ok {
		kept := newDict()
		for _, k := range cur.keys {
			if opts.Keeps("Pdf.Info." + string(k)) {
				kept.set(k, cur.vals[k])
			}
		}
		if len(kept.keys) > 0 {
			objects[ref] = kept
			infoRef = &ref
		}
	}

	if _, start, end, ok := f.metadataStream(); ok {
		f.blank(start, end)
		root, _ := f.trailerRef("Root")
		cat, _, err := f.lookupDict(root)
		if err != nil {
			return err
		}
		cat = cat.clone()
		cat.del("Metadata")
		objects[root] = cat
	}

	for _, r := range f.infoRefs() {
		f.blankDicts(r)
	}
	if len(objects) == 0 && infoRef == nil && len(f.infoRefs()) == 0 {
		return os.WriteFile(path, f.data, 0644)
	}
	out := f.appendUpdate(pdfUpdate{objects: objects, info: infoRef})
	return os.WriteFile(path, out, 0644)
}
