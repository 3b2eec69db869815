package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// ─── IPTC ────────────────────────────────────────────────────────────────────
// APP13 carries Photoshop image resources ("8BIM" blocks). Resource 0x0404
// holds IPTC-IIM datasets; record 2 (Application2) is exposed for editing,
// every other record and resource is carried through untouched.

const (
	resIPTC       = 0x0404
	resIPTCDigest = 0x0425
	iptcRecordApp = 2
)

var iptcNames = map[byte]string{
	0:   "RecordVersion",
	5:   "ObjectName",
	10:  "Urgency",
	15:  "Category",
	20:  "SuppCategory",
	25:  "Keywords",
	40:  "SpecialInstructions",
	55:  "DateCreated",
	60:  "TimeCreated",
	62:  "DigitizationDate",
	80:  "Byline",
	85:  "BylineTitle",
	90:  "City",
	92:  "SubLocation",
	95:  "ProvinceState",
	100: "CountryCode",
	101: "CountryName",
	103: "TransmissionReference",
	105: "Headline",
	110: "Credit",
	115: "Source",
	116: "Copyright",
	118: "Contact",
	120: "Caption",
	122: "Writer",
}

type photoshopResource struct {
	id   uint16
	name []byte // raw pascal string including padding
	data []byte
}

type iptcDataset struct {
	record, id byte
	data       []byte
}

type photoshopResources struct {
	resources []photoshopResource
	iptc      []iptcDataset
}

func parseIPTC(data []byte) *photoshopResources {
	res := &photoshopResources{}
	i := 0
	for i+12 <= len(data) {
		if !bytes.Equal(data[i:i+4], []byte("8BIM")) {
			i++
			continue
		}
		id := binary.BigEndian.Uint16(data[i+4 : i+6])
		nameLen := int(data[i+6])
		if nameLen%2 == 0 {
			nameLen++
		}
		nameStart := i + 6
		i += 7 + nameLen
		if i+4 > len(data) {
			break
		}
		name := data[nameStart:i]
		size := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if size < 0 || i+size > len(data) {
			break
		}
		block := data[i : i+size]
		i += size
		if size%2 != 0 {
			i++
		}
		if id == resIPTC {
			res.iptc = parseIPTCDatasets(block)
			continue
		}
		res.resources = append(res.resources, photoshopResource{id: id, name: name, data: block})
	}
	return res
}

func parseIPTCDatasets(data []byte) []iptcDataset {
	var out []iptcDataset
	i := 0
	for i+5 <= len(data) {
		if data[i] != 0x1C {
			i++
			continue
		}
		rec, id := data[i+1], data[i+2]
		length := int(binary.BigEndian.Uint16(data[i+3 : i+5]))
		i += 5
		if length&0x8000 != 0 {
			// Extended length datasets are not used by record 2.
			break
		}
		if i+length > len(data) {
			break
		}
		out = append(out, iptcDataset{record: rec, id: id, data: data[i : i+length]})
		i += length
	}
	return out
}

func iptcKey(id byte) string {
	if n, ok := iptcNames[id]; ok {
		return "Iptc.Application2." + n
	}
	return fmt.Sprintf("Iptc.Application2.0x%02x", id)
}

func iptcID(key string) (byte, bool) {
	name, ok := strings.CutPrefix(key, "Iptc.Application2.")
	if !ok {
		return 0, false
	}
	for id, n := range iptcNames {
		if n == name {
			return id, true
		}
	}
	if strings.HasPrefix(name, "0x") {
		v, err := strconv.ParseUint(name[2:], 16, 8)
		return byte(v), err == nil
	}
	return 0, false
}

// datasets groups record-2 values by key in first-seen order. Repeated
// datasets (Keywords, Byline) become lists.
func (r *photoshopResources) datasets() []keyValue {
	var order []byte
	values := map[byte][]string{}
	for _, ds := range r.iptc {
		if ds.record != iptcRecordApp {
			continue
		}
		if _, seen := values[ds.id]; !seen {
			order = append(order, ds.id)
		}
		if ds.id == 0 && len(ds.data) == 2 {
			values[ds.id] = append(values[ds.id], strconv.Itoa(int(binary.BigEndian.Uint16(ds.data))))
			continue
		}
		values[ds.id] = append(values[ds.id], string(ds.data))
	}

	out := make([]keyValue, 0, len(order))
	for _, id := range order {
		vals := values[id]
		var v core.Value
		switch {
		case id == 0:
			n, _ := strconv.ParseInt(vals[0], 10, 64)
			v = core.Int(n)
		case len(vals) == 1:
			v = core.String(vals[0])
		default:
			v = core.Strings(vals)
		}
		out = append(out, keyValue{key: iptcKey(id), value: v})
	}
	return out
}

func (r *photoshopResources) apply(changes []core.Change) error {
	for _, c := range changes {
		id, ok := iptcID(c.Key)
		if !ok {
			return fmt.Errorf("unknown IPTC key %q", c.Key)
		}
		if id == 0 {
			return fmt.Errorf("%s is structural and cannot be edited", c.Key)
		}
		var replaced []iptcDataset
		at := -1
		for _, ds := range r.iptc {
			if ds.record == iptcRecordApp && ds.id == id {
				if at < 0 {
					at = len(replaced)
				}
				continue
			}
			replaced = append(replaced, ds)
		}
		if c.Remove {
			r.iptc = replaced
			continue
		}
		var add []iptcDataset
		for _, s := range c.Value.Strings() {
			if len(s) > 0x7FFF {
				return fmt.Errorf("%s: value too long for IPTC", c.Key)
			}
			add = append(add, iptcDataset{record: iptcRecordApp, id: id, data: []byte(s)})
		}
		if at < 0 {
			at = len(replaced)
		}
		r.iptc = append(replaced[:at], append(add, replaced[at:]...)...)
	}
	r.ensureVersion()
	return nil
}

// ensureVersion prepends 2:00 RecordVersion when record 2 has datasets.
func (r *photoshopResources) ensureVersion() {
	hasApp, hasVersion := false, false
	for _, ds := range r.iptc {
		if ds.record == iptcRecordApp {
			hasApp = true
			if ds.id == 0 {
				hasVersion = true
			}
		}
	}
	if hasApp && !hasVersion {
		r.iptc = append([]iptcDataset{{record: iptcRecordApp, id: 0, data: []byte{0, 4}}}, r.iptc...)
	}
}

// retain keeps only record-2 datasets whose key passes keep.
func (r *photoshopResources) retain(keep func(key string) bool) bool {
	var out []iptcDataset
	kept := false
	for _, ds := range r.iptc {
		if ds.record != iptcRecordApp || ds.id == 0 {
			continue
		}
		if keep(iptcKey(ds.id)) {
			out = append(out, ds)
			kept = true
		}
	}
	r.iptc = out
	r.resources = nil
	r.ensureVersion()
	return kept
}

func (r *photoshopResources) encode() []byte {
	var buf bytes.Buffer
	for _, res := range r.resources {
		// The digest describes the old IPTC block.
		if res.id == resIPTCDigest {
			continue
		}
		writeResource(&buf, res.id, res.name, res.data)
	}
	if len(r.iptc) > 0 {
		var block bytes.Buffer
		for _, ds := range r.iptc {
			block.Write([]byte{0x1C, ds.record, ds.id})
			binary.Write(&block, binary.BigEndian, uint16(len(ds.data)))
			block.Write(ds.data)
		}
		writeResource(&buf, resIPTC, nil, block.Bytes())
	}
	return buf.Bytes()
}

func writeResource(buf *bytes.Buffer, id uint16, name, data []byte) {
	buf.WriteString("8BIM")
	binary.Write(buf, binary.BigEndian, id)
	if len(name) == 0 {
		name = []byte{0, 0}
	}
	buf.Write(name)
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	if len(data)%2 != 0 {
		buf.WriteByte(0)
	}
}
