package image

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// ─── XMP ─────────────────────────────────────────────────────────────────────
// Properties of rdf:Description are read as Xmp.<prefix>.<name>. Attribute
// form and element form are both recognised; rdf:Seq/Bag/Alt become lists.

const (
	rdfNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	xmlNS = "http://www.w3.org/XML/1998/namespace"
)

// Well-known prefixes used when a packet omits its xmlns declarations.
var knownXMPPrefixes = map[string]string{
	"http://purl.org/dc/elements/1.1/":            "dc",
	"http://ns.adobe.com/xap/1.0/":                "xmp",
	"http://ns.adobe.com/xap/1.0/mm/":             "xmpMM",
	"http://ns.adobe.com/xap/1.0/rights/":         "xmpRights",
	"http://ns.adobe.com/photoshop/1.0/":          "photoshop",
	"http://ns.adobe.com/exif/1.0/":               "exif",
	"http://ns.adobe.com/tiff/1.0/":               "tiff",
	"http://ns.adobe.com/pdf/1.3/":                "pdf",
	"http://ns.adobe.com/camera-raw-settings/1.0/": "crs",
	"http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/": "Iptc4xmpCore",
}

type keyValue struct {
	key   string
	value core.Value
}

type xmpBuild struct {
	key   string
	depth int
	text  strings.Builder
	items []string
	inLi  bool
	li    strings.Builder
}

func parseXMP(data []byte) []keyValue {
	prefixes := map[string]string{}
	for uri, p := range knownXMPPrefixes {
		prefixes[uri] = p
	}
	prefixFor := func(space string) string {
		if p, ok := prefixes[space]; ok {
			return p
		}
		return space
	}

	var (
		out       []keyValue
		depth     int
		descDepth = -1
		prop      *xmpBuild
	)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" {
					prefixes[a.Value] = a.Name.Local
				}
			}
			switch {
			case prop == nil && t.Name.Space == rdfNS && t.Name.Local == "Description":
				descDepth = depth
				for _, a := range t.Attr {
					if a.Name.Space == "xmlns" || a.Name.Space == rdfNS || a.Name.Space == xmlNS || a.Name.Space == "" {
						continue
					}
					out = append(out, keyValue{
						key:   "Xmp." + prefixFor(a.Name.Space) + "." + a.Name.Local,
						value: core.String(a.Value),
					})
				}
			case prop == nil && descDepth >= 0 && depth == descDepth+1:
				prop = &xmpBuild{key: "Xmp." + prefixFor(t.Name.Space) + "." + t.Name.Local, depth: depth}
				for _, a := range t.Attr {
					if a.Name.Space == rdfNS && a.Name.Local == "resource" {
						prop.text.WriteString(a.Value)
					}
				}
			case prop != nil && t.Name.Space == rdfNS && t.Name.Local == "li":
				prop.inLi = true
				prop.li.Reset()
			}
			depth++
		case xml.EndElement:
			depth--
			switch {
			case prop != nil && prop.inLi && t.Name.Space == rdfNS && t.Name.Local == "li":
				prop.items = append(prop.items, strings.TrimSpace(prop.li.String()))
				prop.inLi = false
			case prop != nil && depth == prop.depth:
				out = append(out, prop.emit())
				prop = nil
			case depth == descDepth:
				descDepth = -1
			}
		case xml.CharData:
			if prop == nil {
				continue
			}
			if prop.inLi {
				prop.li.Write(t)
			} else {
				prop.text.Write(t)
			}
		}
	}
	return out
}

func (b *xmpBuild) emit() keyValue {
	switch len(b.items) {
	case 0:
		return keyValue{key: b.key, value: core.String(strings.TrimSpace(b.text.String()))}
	case 1:
		return keyValue{key: b.key, value: core.String(b.items[0])}
	default:
		return keyValue{key: b.key, value: core.Strings(b.items)}
	}
}

var rdfContainer = regexp.MustCompile(`<rdf:(Seq|Bag|Alt)\b[^>]*>`)

// editXMP patches existing properties in the packet text. Properties that
// are not present cannot be added.
func editXMP(packet []byte, changes []core.Change) ([]byte, error) {
	for _, c := range changes {
		parts := strings.SplitN(c.Key, ".", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed XMP key %q", c.Key)
		}
		qname := regexp.QuoteMeta(parts[1] + ":" + parts[2])

		attr := regexp.MustCompile(`(\s)` + qname + `\s*=\s*("[^"]*"|'[^']*')`)
		if loc := attr.FindSubmatchIndex(packet); loc != nil {
			repl := []byte(nil)
			if !c.Remove {
				repl = append([]byte{}, packet[loc[2]:loc[3]]...)
				repl = append(repl, fmt.Sprintf(`%s:%s="%s"`, parts[1], parts[2], html.EscapeString(c.Value.String()))...)
			}
			packet = splice(packet, loc[0], loc[1], repl)
			continue
		}

		elem := regexp.MustCompile(`(?s)<` + qname + `(\s[^>]*)?>(.*?)</` + qname + `\s*>`)
		loc := elem.FindSubmatchIndex(packet)
		if loc == nil {
			return nil, fmt.Errorf("XMP property %s not present", c.Key)
		}
		if c.Remove {
			packet = splice(packet, loc[0], loc[1], nil)
			continue
		}
		inner := packet[loc[4]:loc[5]]
		packet = splice(packet, loc[4], loc[5], xmpInner(inner, c.Value))
	}
	return packet, nil
}

// xmpInner renders a new element body, keeping the container kind of the
// old body when there was one.
func xmpInner(old []byte, v core.Value) []byte {
	m := rdfContainer.FindSubmatch(old)
	if m == nil {
		return []byte(html.EscapeString(v.String()))
	}
	kind := string(m[1])
	var b bytes.Buffer
	fmt.Fprintf(&b, "<rdf:%s>", kind)
	for _, item := range v.Strings() {
		if kind == "Alt" {
			fmt.Fprintf(&b, `<rdf:li xml:lang="x-default">%s</rdf:li>`, html.EscapeString(item))
		} else {
			fmt.Fprintf(&b, "<rdf:li>%s</rdf:li>", html.EscapeString(item))
		}
	}
	fmt.Fprintf(&b, "</rdf:%s>", kind)
	return b.Bytes()
}

func splice(b []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(b)-(end-start)+len(repl))
	out = append(out, b[:start]...)
	out = append(out, repl...)
	return append(out, b[end:]...)
}

// XMPFields adds the properties of an XMP packet to m.
func XMPFields(packet []byte, m *core.Metadata, editable bool) {
	for _, p := range parseXMP(packet) {
		m.Add(p.key, p.value, "XMP", editable)
	}
}
