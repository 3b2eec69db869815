package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ─── EXIF tree ───────────────────────────────────────────────────────────────
// The TIFF block inside APP1 is decoded into IFD0, its Exif/GPS sub-IFDs, the
// Interop IFD under Exif, and IFD1 with its JPEG thumbnail. Rewriting lays
// the tree out again in the original byte order so unedited tags keep their
// values. Tags that store file offsets inside opaque blobs (MakerNote) are
// carried as-is.

const (
	tagExifPointer    = 0x8769
	tagGPSPointer     = 0x8825
	tagInteropPointer = 0xA005
	tagThumbOffset    = 0x0201
	tagThumbLength    = 0x0202
	tagUserComment    = 0x9286
)

// Group names used in keys: Exif.<Group>.<Name>.
const (
	groupImage     = "Image"
	groupPhoto     = "Photo"
	groupGPS       = "GPSInfo"
	groupIop       = "Iop"
	groupThumbnail = "Thumbnail"
)

var structuralTags = map[uint16]bool{
	tagExifPointer:    true,
	tagGPSPointer:     true,
	tagInteropPointer: true,
	tagThumbOffset:    true,
	tagThumbLength:    true,
}

var typeSize = map[tiff.DataType]int{
	tiff.DTByte: 1, tiff.DTAscii: 1, tiff.DTShort: 2, tiff.DTLong: 4,
	tiff.DTRational: 8, tiff.DTSByte: 1, tiff.DTUndefined: 1, tiff.DTSShort: 2,
	tiff.DTSLong: 4, tiff.DTSRational: 8, tiff.DTFloat: 4, tiff.DTDouble: 8,
}

type exifEntry struct {
	id    uint16
	typ   tiff.DataType
	count uint32
	val   []byte // raw value bytes in tree byte order
	tag   *tiff.Tag
}

type exifIFD struct {
	group   string
	entries []*exifEntry
}

func (d *exifIFD) find(id uint16) *exifEntry {
	for _, e := range d.entries {
		if e.id == id {
			return e
		}
	}
	return nil
}

func (d *exifIFD) remove(id uint16) {
	out := d.entries[:0]
	for _, e := range d.entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	d.entries = out
}

func (d *exifIFD) set(e *exifEntry) {
	for i, cur := range d.entries {
		if cur.id == e.id {
			d.entries[i] = e
			return
		}
	}
	d.entries = append(d.entries, e)
}

type exifTree struct {
	order binary.ByteOrder
	ifds  map[string]*exifIFD
	thumb []byte
	names map[string]map[uint16]string // group → tag id → goexif field name
}

func newExifTree() *exifTree {
	return &exifTree{
		order: binary.LittleEndian,
		ifds:  map[string]*exifIFD{groupImage: {group: groupImage}},
		names: map[string]map[uint16]string{},
	}
}

// parseExifTree decodes a raw TIFF block (the APP1 payload after "Exif\0\0").
func parseExifTree(raw []byte) (*exifTree, error) {
	t, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode TIFF header: %w", err)
	}
	if len(t.Dirs) == 0 {
		return nil, fmt.Errorf("TIFF block has no IFD")
	}
	tree := &exifTree{order: t.Order, ifds: map[string]*exifIFD{}, names: map[string]map[uint16]string{}}
	tree.ifds[groupImage] = ifdFromDir(groupImage, t.Dirs[0])
	if len(t.Dirs) > 1 {
		tree.ifds[groupThumbnail] = ifdFromDir(groupThumbnail, t.Dirs[1])
	}

	tree.loadSub(raw, groupImage, tagExifPointer, groupPhoto)
	tree.loadSub(raw, groupImage, tagGPSPointer, groupGPS)
	tree.loadSub(raw, groupPhoto, tagInteropPointer, groupIop)

	if th := tree.ifds[groupThumbnail]; th != nil {
		off, okOff := entryInt(th.find(tagThumbOffset))
		n, okLen := entryInt(th.find(tagThumbLength))
		if okOff && okLen && off >= 0 && n > 0 && off+n <= int64(len(raw)) {
			tree.thumb = append([]byte(nil), raw[off:off+n]...)
		}
	}

	tree.loadNames(raw)
	return tree, nil
}

func ifdFromDir(group string, d *tiff.Dir) *exifIFD {
	ifd := &exifIFD{group: group}
	for _, tag := range d.Tags {
		ifd.entries = append(ifd.entries, &exifEntry{
			id:    tag.Id,
			typ:   tag.Type,
			count: tag.Count,
			val:   append([]byte(nil), tag.Val...),
			tag:   tag,
		})
	}
	return ifd
}

func entryInt(e *exifEntry) (int64, bool) {
	if e == nil || e.tag == nil {
		return 0, false
	}
	v, err := e.tag.Int64(0)
	return v, err == nil
}

func (t *exifTree) loadSub(raw []byte, parent string, pointer uint16, group string) {
	p := t.ifds[parent]
	if p == nil {
		return
	}
	off, ok := entryInt(p.find(pointer))
	if !ok || off <= 0 || off >= int64(len(raw)) {
		p.remove(pointer)
		return
	}
	r := bytes.NewReader(raw)
	if _, err := r.Seek(off, 0); err != nil {
		p.remove(pointer)
		return
	}
	d, _, err := tiff.DecodeDir(r, t.order)
	if err != nil {
		p.remove(pointer)
		return
	}
	t.ifds[group] = ifdFromDir(group, d)
}

// loadNames asks goexif for field names and sorts them into groups. IFD0 and
// IFD1 tags are identified by pointer; sub-IFD tags by goexif's naming.
func (t *exifTree) loadNames(raw []byte) {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return
	}
	inDir := func(i int, tag *tiff.Tag) bool {
		if x.Tiff == nil || i >= len(x.Tiff.Dirs) {
			return false
		}
		for _, tg := range x.Tiff.Dirs[i].Tags {
			if tg == tag {
				return true
			}
		}
		return false
	}
	x.Walk(walkFunc(func(name exif.FieldName, tag *tiff.Tag) error {
		n := string(name)
		group := groupPhoto
		switch {
		case inDir(0, tag):
			group = groupImage
		case inDir(1, tag):
			group = groupThumbnail
		case strings.HasPrefix(n, "GPS"):
			group = groupGPS
		case strings.HasPrefix(n, "Interop"):
			group = groupIop
		}
		if t.names[group] == nil {
			t.names[group] = map[uint16]string{}
		}
		t.names[group][tag.Id] = strings.TrimPrefix(n, "Thumb")
		return nil
	}))
}

type walkFunc func(name exif.FieldName, tag *tiff.Tag) error

func (f walkFunc) Walk(name exif.FieldName, tag *tiff.Tag) error { return f(name, tag) }

func (t *exifTree) name(group string, id uint16) string {
	if n, ok := t.names[group][id]; ok {
		return n
	}
	if w, ok := writableTags[group]; ok {
		for name, def := range w {
			if def.id == id {
				return name
			}
		}
	}
	return fmt.Sprintf("0x%04x", id)
}

// lookup resolves a key name inside a group to a tag id.
func (t *exifTree) lookup(group, name string) (uint16, bool) {
	for id, n := range t.names[group] {
		if n == name {
			return id, true
		}
	}
	if def, ok := writableTags[group][name]; ok {
		return def.id, true
	}
	if strings.HasPrefix(name, "0x") {
		id, err := strconv.ParseUint(name[2:], 16, 16)
		if err == nil {
			return uint16(id), true
		}
	}
	return 0, false
}

var groupOrder = []string{groupImage, groupPhoto, groupGPS, groupIop, groupThumbnail}

// fields lists every non-structural tag as a namespaced field.
func (t *exifTree) fields(m *core.Metadata, editable bool) {
	for _, g := range groupOrder {
		ifd := t.ifds[g]
		if ifd == nil {
			continue
		}
		for _, e := range ifd.entries {
			if structuralTags[e.id] {
				continue
			}
			m.Add("Exif."+g+"."+t.name(g, e.id), t.decode(e), "EXIF", editable)
		}
	}
}

// decode converts an entry to a typed value through goexif's tag accessors.
func (t *exifTree) decode(e *exifEntry) core.Value {
	tag := e.tag
	if tag == nil {
		tag = t.asTag(e)
	}
	if tag == nil {
		return core.Bytes(e.val)
	}
	if e.id == tagUserComment {
		return core.String(userCommentText(e.val))
	}
	n := int(tag.Count)
	switch tag.Format() {
	case tiff.StringVal:
		s, _ := tag.StringVal()
		return core.String(strings.TrimRight(s, "\x00 "))
	case tiff.IntVal:
		vals := make([]core.Value, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Int64(i)
			if err != nil {
				break
			}
			vals = append(vals, core.Int(v))
		}
		return single(vals)
	case tiff.RatVal:
		vals := make([]core.Value, 0, n)
		for i := 0; i < n; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				break
			}
			vals = append(vals, core.Rat(num, den))
		}
		return single(vals)
	case tiff.FloatVal:
		vals := make([]core.Value, 0, n)
		for i := 0; i < n; i++ {
			f, err := tag.Float(i)
			if err != nil {
				break
			}
			vals = append(vals, core.Float(f))
		}
		return single(vals)
	default:
		return core.Bytes(append([]byte(nil), e.val...))
	}
}

func single(vals []core.Value) core.Value {
	if len(vals) == 1 {
		return vals[0]
	}
	return core.List(vals...)
}

// asTag re-decodes an entry created by an edit so the typed accessors work.
func (t *exifTree) asTag(e *exifEntry) *tiff.Tag {
	var buf bytes.Buffer
	binary.Write(&buf, t.order, e.id)
	binary.Write(&buf, t.order, uint16(e.typ))
	binary.Write(&buf, t.order, e.count)
	if len(e.val) <= 4 {
		v := make([]byte, 4)
		copy(v, e.val)
		buf.Write(v)
	} else {
		binary.Write(&buf, t.order, uint32(12))
		buf.Write(e.val)
	}
	tag, err := tiff.DecodeTag(bytes.NewReader(buf.Bytes()), t.order)
	if err != nil {
		return nil
	}
	return tag
}

var (
	commentASCII   = []byte("ASCII\x00\x00\x00")
	commentUnicode = []byte("UNICODE\x00")
)

func userCommentText(b []byte) string {
	switch {
	case bytes.HasPrefix(b, commentASCII):
		b = b[8:]
	case bytes.HasPrefix(b, commentUnicode):
		return utf16Text(b[8:])
	case len(b) >= 8 && bytes.Equal(b[:8], make([]byte, 8)):
		b = b[8:]
	}
	return strings.TrimRight(string(b), "\x00 ")
}

func utf16Text(b []byte) string {
	var runes []rune
	for i := 0; i+1 < len(b); i += 2 {
		r := rune(uint16(b[i])<<8 | uint16(b[i+1]))
		if r == 0 {
			break
		}
		runes = append(runes, r)
	}
	return string(runes)
}

// ─── EXIF edit ───────────────────────────────────────────────────────────────

type tagDef struct {
	id  uint16
	typ tiff.DataType
}

// writableTags are the tags that may be added when absent.
var writableTags = map[string]map[string]tagDef{
	groupImage: {
		"ImageDescription": {0x010E, tiff.DTAscii},
		"Make":             {0x010F, tiff.DTAscii},
		"Model":            {0x0110, tiff.DTAscii},
		"Software":         {0x0131, tiff.DTAscii},
		"DateTime":         {0x0132, tiff.DTAscii},
		"Artist":           {0x013B, tiff.DTAscii},
		"Copyright":        {0x8298, tiff.DTAscii},
	},
	groupPhoto: {
		"DateTimeOriginal":  {0x9003, tiff.DTAscii},
		"DateTimeDigitized": {0x9004, tiff.DTAscii},
		"UserComment":       {tagUserComment, tiff.DTUndefined},
		"ImageUniqueID":     {0xA420, tiff.DTAscii},
		"CameraOwnerName":   {0xA430, tiff.DTAscii},
		"BodySerialNumber":  {0xA431, tiff.DTAscii},
		"LensModel":         {0xA434, tiff.DTAscii},
	},
}

// apply edits the tree. Keys must carry the "Exif." prefix.
func (t *exifTree) apply(changes []core.Change) error {
	for _, c := range changes {
		group, name, ok := splitExifKey(c.Key)
		if !ok {
			return fmt.Errorf("malformed EXIF key %q", c.Key)
		}
		id, ok := t.lookup(group, name)
		if !ok {
			return fmt.Errorf("unknown EXIF tag %q", c.Key)
		}
		if structuralTags[id] {
			return fmt.Errorf("%s is structural and cannot be edited", c.Key)
		}
		ifd := t.ifds[group]
		if c.Remove {
			if ifd != nil {
				ifd.remove(id)
			}
			continue
		}
		if ifd == nil {
			if group != groupPhoto {
				return fmt.Errorf("cannot create EXIF %s directory", group)
			}
			ifd = &exifIFD{group: groupPhoto}
			t.ifds[groupPhoto] = ifd
		}
		cur := ifd.find(id)
		typ := tiff.DTAscii
		if cur != nil {
			typ = cur.typ
		} else if def, ok := writableTags[group][name]; ok {
			typ = def.typ
		} else {
			return fmt.Errorf("EXIF tag %q cannot be added", c.Key)
		}
		e, err := t.encode(id, typ, cur, c.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Key, err)
		}
		ifd.set(e)
	}
	return nil
}

func splitExifKey(key string) (group, name string, ok bool) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[0] != "Exif" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func (t *exifTree) encode(id uint16, typ tiff.DataType, cur *exifEntry, v core.Value) (*exifEntry, error) {
	e := &exifEntry{id: id, typ: typ}
	var buf bytes.Buffer
	items := v.List
	if v.Kind != core.KindList {
		items = []core.Value{v}
	}

	switch typ {
	case tiff.DTAscii:
		buf.WriteString(v.String())
		buf.WriteByte(0)
		e.count = uint32(buf.Len())
	case tiff.DTUndefined:
		if id == tagUserComment {
			buf.Write(commentASCII)
			buf.WriteString(v.String())
		} else if v.Kind == core.KindBytes {
			buf.Write(v.Bytes)
		} else {
			buf.WriteString(v.String())
		}
		e.count = uint32(buf.Len())
	case tiff.DTByte, tiff.DTSByte, tiff.DTShort, tiff.DTSShort, tiff.DTLong, tiff.DTSLong:
		for _, item := range items {
			if item.Kind != core.KindInt {
				return nil, fmt.Errorf("want integer, got %s", item.Kind)
			}
			switch typ {
			case tiff.DTByte, tiff.DTSByte:
				buf.WriteByte(byte(item.Int))
			case tiff.DTShort, tiff.DTSShort:
				binary.Write(&buf, t.order, uint16(item.Int))
			default:
				binary.Write(&buf, t.order, uint32(item.Int))
			}
		}
		e.count = uint32(len(items))
	case tiff.DTRational, tiff.DTSRational:
		for _, item := range items {
			var r core.Rational
			switch item.Kind {
			case core.KindRational:
				r = item.Rat
			case core.KindInt:
				r = core.Rational{Num: item.Int, Den: 1}
			default:
				return nil, fmt.Errorf("want rational, got %s", item.Kind)
			}
			binary.Write(&buf, t.order, uint32(r.Num))
			binary.Write(&buf, t.order, uint32(r.Den))
		}
		e.count = uint32(len(items))
	case tiff.DTFloat, tiff.DTDouble:
		for _, item := range items {
			f := item.Float
			if item.Kind == core.KindInt {
				f = float64(item.Int)
			} else if item.Kind != core.KindFloat {
				return nil, fmt.Errorf("want float, got %s", item.Kind)
			}
			if typ == tiff.DTFloat {
				binary.Write(&buf, t.order, float32(f))
			} else {
				binary.Write(&buf, t.order, f)
			}
		}
		e.count = uint32(len(items))
	default:
		return nil, fmt.Errorf("unsupported TIFF type %d", typ)
	}
	e.val = buf.Bytes()
	e.tag = t.asTag(e)
	return e, nil
}

// stripGPS drops the GPS IFD.
func (t *exifTree) stripGPS() {
	delete(t.ifds, groupGPS)
	t.ifds[groupImage].remove(tagGPSPointer)
}

// ─── EXIF encode ─────────────────────────────────────────────────────────────

type tiffWriter struct {
	order binary.ByteOrder
	buf   []byte
}

func (w *tiffWriter) put16(at int, v uint16) { w.order.PutUint16(w.buf[at:], v) }
func (w *tiffWriter) put32(at int, v uint32) { w.order.PutUint32(w.buf[at:], v) }

func (w *tiffWriter) align() {
	if len(w.buf)%2 != 0 {
		w.buf = append(w.buf, 0)
	}
}

// writeIFD appends d and returns its offset plus the offset of each entry's
// value field (for patching pointers) and of the next-IFD link.
func (w *tiffWriter) writeIFD(d *exifIFD) (start int, valueAt map[uint16]int, nextAt int) {
	w.align()
	entries := append([]*exifEntry(nil), d.entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	start = len(w.buf)
	w.buf = append(w.buf, make([]byte, 2+12*len(entries)+4)...)
	w.put16(start, uint16(len(entries)))
	valueAt = make(map[uint16]int, len(entries))
	for i, e := range entries {
		at := start + 2 + 12*i
		w.put16(at, e.id)
		w.put16(at+2, uint16(e.typ))
		w.put32(at+4, e.count)
		valueAt[e.id] = at + 8
		if len(e.val) <= 4 {
			copy(w.buf[at+8:at+12], e.val)
			continue
		}
		w.align()
		w.put32(at+8, uint32(len(w.buf)))
		w.buf = append(w.buf, e.val...)
	}
	nextAt = start + 2 + 12*len(entries)
	return start, valueAt, nextAt
}

// serialize lays the tree out as a TIFF block.
func (t *exifTree) serialize() []byte {
	w := &tiffWriter{order: t.order}
	if t.order == binary.BigEndian {
		w.buf = append(w.buf, 'M', 'M', 0, 42, 0, 0, 0, 8)
	} else {
		w.buf = append(w.buf, 'I', 'I', 42, 0, 8, 0, 0, 0)
	}

	ifd0 := t.ifds[groupImage]
	photo := t.ifds[groupPhoto]
	gps := t.ifds[groupGPS]
	iop := t.ifds[groupIop]

	// Pointer entries must exist before layout so the IFD size is right.
	setPointer(ifd0, tagExifPointer, photo != nil)
	setPointer(ifd0, tagGPSPointer, gps != nil)
	if photo != nil {
		setPointer(photo, tagInteropPointer, iop != nil)
	}

	_, at0, next0 := w.writeIFD(ifd0)
	if photo != nil {
		off, atP, _ := w.writeIFD(photo)
		w.put32(at0[tagExifPointer], uint32(off))
		if iop != nil {
			offI, _, _ := w.writeIFD(iop)
			w.put32(atP[tagInteropPointer], uint32(offI))
		}
	}
	if gps != nil {
		off, _, _ := w.writeIFD(gps)
		w.put32(at0[tagGPSPointer], uint32(off))
	}
	if th := t.ifds[groupThumbnail]; th != nil && len(th.entries) > 0 {
		if t.thumb != nil {
			t.setLong(th, tagThumbOffset, 0)
			t.setLong(th, tagThumbLength, uint32(len(t.thumb)))
		}
		off, atT, _ := w.writeIFD(th)
		w.put32(next0, uint32(off))
		if t.thumb != nil {
			w.align()
			w.put32(atT[tagThumbOffset], uint32(len(w.buf)))
			w.buf = append(w.buf, t.thumb...)
		}
	}
	return w.buf
}

func setPointer(d *exifIFD, id uint16, present bool) {
	if !present {
		d.remove(id)
		return
	}
	e := d.find(id)
	if e == nil {
		e = &exifEntry{id: id}
		d.entries = append(d.entries, e)
	}
	e.typ, e.count, e.val = tiff.DTLong, 1, make([]byte, 4)
}

func (t *exifTree) setLong(d *exifIFD, id uint16, v uint32) {
	e := d.find(id)
	if e == nil {
		e = &exifEntry{id: id}
		d.entries = append(d.entries, e)
	}
	e.typ, e.count = tiff.DTLong, 1
	e.val = make([]byte, 4)
	t.order.PutUint32(e.val, v)
}

// retain drops every tag whose key fails keep, prunes empty sub-IFDs and
// reports whether anything survived.
func (t *exifTree) retain(keep func(key string) bool) bool {
	kept := false
	for g, ifd := range t.ifds {
		out := ifd.entries[:0]
		for _, e := range ifd.entries {
			switch {
			case structuralTags[e.id]:
				out = append(out, e)
			case keep("Exif." + g + "." + t.name(g, e.id)):
				out = append(out, e)
				kept = true
			}
		}
		ifd.entries = out
	}
	for _, g := range []string{groupIop, groupGPS, groupThumbnail, groupPhoto} {
		ifd := t.ifds[g]
		if ifd == nil || hasValues(ifd) || (g == groupPhoto && t.ifds[groupIop] != nil) {
			continue
		}
		delete(t.ifds, g)
		if g == groupThumbnail {
			t.thumb = nil
		}
	}
	return kept
}

func hasValues(d *exifIFD) bool {
	for _, e := range d.entries {
		if !structuralTags[e.id] {
			return true
		}
	}
	return false
}
