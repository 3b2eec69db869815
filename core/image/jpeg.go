package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

const (
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerAPP1  = 0xE1
	markerAPP12 = 0xEC
	markerAPP13 = 0xED
	markerCOM   = 0xFE
	markerRaw   = 0x00 // entropy-coded data after SOS

	maxSegment = 0xFFFF - 2
)

var (
	exifHeader      = []byte("Exif\x00\x00")
	xmpHeader       = []byte("http://ns.adobe.com/xap/1.0/\x00")
	photoshopHeader = []byte("Photoshop 3.0\x00")
)

type jpegSegment struct {
	marker byte
	data   []byte
}

func (s jpegSegment) isEXIF() bool {
	return s.marker == markerAPP1 && bytes.HasPrefix(s.data, exifHeader)
}

func (s jpegSegment) isXMP() bool {
	return s.marker == markerAPP1 && bytes.HasPrefix(s.data, xmpHeader)
}

func (s jpegSegment) isIPTC() bool {
	return s.marker == markerAPP13 && bytes.HasPrefix(s.data, photoshopHeader)
}

func parseJPEGSegments(data []byte) ([]jpegSegment, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, fmt.Errorf("not a JPEG")
	}
	segs := []jpegSegment{{marker: markerSOI}}

	i := 2
	for i < len(data) {
		if data[i] != 0xFF {
			return nil, fmt.Errorf("bad marker at offset %d", i)
		}
		// Fill bytes may precede a marker.
		for i < len(data) && data[i] == 0xFF {
			i++
		}
		if i >= len(data) {
			break
		}
		marker := data[i]
		i++

		if marker == markerEOI {
			segs = append(segs, jpegSegment{marker: markerEOI})
			if i < len(data) {
				segs = append(segs, jpegSegment{marker: markerRaw, data: data[i:]})
			}
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 || marker == markerSOI {
			segs = append(segs, jpegSegment{marker: marker})
			continue
		}

		if i+2 > len(data) {
			return nil, fmt.Errorf("truncated segment header at offset %d", i)
		}
		segLen := int(binary.BigEndian.Uint16(data[i:i+2])) - 2
		i += 2
		if segLen < 0 || i+segLen > len(data) {
			return nil, fmt.Errorf("segment 0x%02X overruns file", marker)
		}
		segs = append(segs, jpegSegment{marker: marker, data: append([]byte{}, data[i:i+segLen]...)})
		i += segLen

		if marker == markerSOS {
			// Everything up to and including EOI is kept verbatim.
			segs = append(segs, jpegSegment{marker: markerRaw, data: data[i:]})
			break
		}
	}
	return segs, nil
}

func encodeJPEGSegments(segs []jpegSegment) ([]byte, error) {
	var buf bytes.Buffer
	for _, seg := range segs {
		switch {
		case seg.marker == markerRaw:
			buf.Write(seg.data)
		case seg.marker == markerSOI || seg.marker == markerEOI || (seg.marker >= 0xD0 && seg.marker <= 0xD7):
			buf.Write([]byte{0xFF, seg.marker})
		default:
			if len(seg.data) > maxSegment {
				return nil, fmt.Errorf("segment 0x%02X is %d bytes, limit is %d", seg.marker, len(seg.data), maxSegment)
			}
			buf.Write([]byte{0xFF, seg.marker})
			binary.Write(&buf, binary.BigEndian, uint16(len(seg.data)+2))
			buf.Write(seg.data)
		}
	}
	return buf.Bytes(), nil
}

func readJPEG(path string) ([]jpegSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseJPEGSegments(data)
}

func writeJPEG(path string, segs []jpegSegment) error {
	out, err := encodeJPEGSegments(segs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// ─── View ────────────────────────────────────────────────────────────────────

func viewJPEG(path string, m *core.Metadata) error {
	segs, err := readJPEG(path)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		switch {
		case seg.isEXIF():
			tree, err := parseExifTree(seg.data[len(exifHeader):])
			if err != nil {
				m.Add("Exif.Error", core.String(err.Error()), "EXIF", false)
				continue
			}
			tree.fields(m, true)
		case seg.isXMP():
			XMPFields(seg.data[len(xmpHeader):], m, true)
		case seg.isIPTC():
			for _, ds := range parseIPTC(seg.data[len(photoshopHeader):]).datasets() {
				m.Add(ds.key, ds.value, "IPTC", ds.key != iptcKey(0))
			}
		case seg.marker == markerCOM:
			m.Add("Jpeg.Comment", core.String(strings.TrimRight(string(seg.data), "\x00")), "JPEG", false)
		}
	}
	return nil
}

// ─── Edit ────────────────────────────────────────────────────────────────────

func splitChanges(changes []core.Change) (exifC, xmpC, iptcC []core.Change, err error) {
	for _, c := range changes {
		switch {
		case strings.HasPrefix(c.Key, "Exif."):
			exifC = append(exifC, c)
		case strings.HasPrefix(c.Key, "Xmp."):
			xmpC = append(xmpC, c)
		case strings.HasPrefix(c.Key, "Iptc."):
			iptcC = append(iptcC, c)
		default:
			return nil, nil, nil, fmt.Errorf("key %q cannot be written to JPEG", c.Key)
		}
	}
	return
}

func editJPEG(path string, changes []core.Change) error {
	segs, err := readJPEG(path)
	if err != nil {
		return err
	}
	exifC, xmpC, iptcC, err := splitChanges(changes)
	if err != nil {
		return err
	}

	if len(exifC) > 0 {
		if segs, err = editJPEGExif(segs, exifC); err != nil {
			return err
		}
	}
	if len(xmpC) > 0 {
		idx := indexOf(segs, jpegSegment.isXMP)
		if idx < 0 {
			return fmt.Errorf("file has no XMP packet to edit")
		}
		packet, err := editXMP(segs[idx].data[len(xmpHeader):], xmpC)
		if err != nil {
			return err
		}
		segs[idx].data = append(append([]byte{}, xmpHeader...), packet...)
	}
	if len(iptcC) > 0 {
		idx := indexOf(segs, jpegSegment.isIPTC)
		var res *photoshopResources
		if idx >= 0 {
			res = parseIPTC(segs[idx].data[len(photoshopHeader):])
		} else {
			res = &photoshopResources{}
		}
		if err := res.apply(iptcC); err != nil {
			return err
		}
		data := append(append([]byte{}, photoshopHeader...), res.encode()...)
		if idx >= 0 {
			segs[idx].data = data
		} else {
			segs = insertAfterApp(segs, jpegSegment{marker: markerAPP13, data: data})
		}
	}
	return writeJPEG(path, segs)
}

func editJPEGExif(segs []jpegSegment, changes []core.Change) ([]jpegSegment, error) {
	idx := indexOf(segs, jpegSegment.isEXIF)
	var tree *exifTree
	if idx >= 0 {
		t, err := parseExifTree(segs[idx].data[len(exifHeader):])
		if err != nil {
			return nil, fmt.Errorf("EXIF: %w", err)
		}
		tree = t
	} else {
		tree = newExifTree()
	}
	if err := tree.apply(changes); err != nil {
		return nil, err
	}
	data := append(append([]byte{}, exifHeader...), tree.serialize()...)
	if idx >= 0 {
		segs[idx].data = data
		return segs, nil
	}
	// EXIF must follow SOI directly (JFIF APP0 is the only exception).
	seg := jpegSegment{marker: markerAPP1, data: data}
	at := 1
	if len(segs) > 1 && segs[1].marker == 0xE0 {
		at = 2
	}
	return append(segs[:at], append([]jpegSegment{seg}, segs[at:]...)...), nil
}

func indexOf(segs []jpegSegment, pred func(jpegSegment) bool) int {
	for i, s := range segs {
		if pred(s) {
			return i
		}
	}
	return -1
}

// insertAfterApp places seg after the last APPn segment.
func insertAfterApp(segs []jpegSegment, seg jpegSegment) []jpegSegment {
	at := 1
	for i, s := range segs {
		if s.marker >= 0xE0 && s.marker <= 0xEF {
			at = i + 1
		}
	}
	return append(segs[:at], append([]jpegSegment{seg}, segs[at:]...)...)
}

// ─── Strip ───────────────────────────────────────────────────────────────────

// Segments removed on a full strip. ICC (APP2) and Adobe (APP14) affect
// colour rendering and stay.
var jpegMetaMarkers = map[byte]bool{
	markerAPP1:  true,
	markerAPP12: true,
	markerAPP13: true,
	markerCOM:   true,
}

func stripJPEG(path string, opts core.StripOptions) error {
	segs, err := readJPEG(path)
	if err != nil {
		return err
	}

	var out []jpegSegment
	for _, seg := range segs {
		if opts.GPSOnly {
			if seg.isEXIF() {
				tree, err := parseExifTree(seg.data[len(exifHeader):])
				if err != nil {
					return fmt.Errorf("EXIF: %w", err)
				}
				tree.stripGPS()
				seg.data = append(append([]byte{}, exifHeader...), tree.serialize()...)
			}
			out = append(out, seg)
			continue
		}
		if !jpegMetaMarkers[seg.marker] {
			out = append(out, seg)
			continue
		}
		kept, ok, err := keepInSegment(seg, opts)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, kept)
		}
	}
	return writeJPEG(path, out)
}

// keepInSegment reduces a metadata segment to the fields in opts.Keep.
func keepInSegment(seg jpegSegment, opts core.StripOptions) (jpegSegment, bool, error) {
	if len(opts.Keep) == 0 {
		return seg, false, nil
	}
	switch {
	case seg.isEXIF():
		tree, err := parseExifTree(seg.data[len(exifHeader):])
		if err != nil {
			return seg, false, fmt.Errorf("EXIF: %w", err)
		}
		if !tree.retain(opts.Keeps) {
			return seg, false, nil
		}
		seg.data = append(append([]byte{}, exifHeader...), tree.serialize()...)
		return seg, true, nil
	case seg.isXMP():
		for _, p := range parseXMP(seg.data[len(xmpHeader):]) {
			if opts.Keeps(p.key) {
				return seg, true, nil
			}
		}
	case seg.isIPTC():
		res := parseIPTC(seg.data[len(photoshopHeader):])
		if !res.retain(opts.Keeps) {
			return seg, false, nil
		}
		seg.data = append(append([]byte{}, photoshopHeader...), res.encode()...)
		return seg, true, nil
	}
	return seg, false, nil
}
