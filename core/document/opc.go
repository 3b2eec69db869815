package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// ─── OPC (DOCX / XLSX / PPTX) ────────────────────────────────────────────────

const (
	corePart = "docProps/core.xml"
	appPart  = "docProps/app.xml"
)

// Qualified element names for core properties that may be added.
var coreQNames = map[string]string{
	"title":          "dc:title",
	"subject":        "dc:subject",
	"creator":        "dc:creator",
	"description":    "dc:description",
	"language":       "dc:language",
	"identifier":     "dc:identifier",
	"keywords":       "cp:keywords",
	"lastModifiedBy": "cp:lastModifiedBy",
	"revision":       "cp:revision",
	"category":       "cp:category",
	"contentStatus":  "cp:contentStatus",
	"lastPrinted":    "cp:lastPrinted",
	"version":        "cp:version",
	"created":        "dcterms:created",
	"modified":       "dcterms:modified",
}

// app.xml properties that identify people or organisations. Strip removes
// them; the rest of app.xml is statistics.
var appIdentity = []string{"Company", "Manager", "HyperlinkBase", "Template"}

const blankCoreXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"></cp:coreProperties>`

func readZipPart(r *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, true, err
	}
	return nil, false, nil
}

// partFields reads the simple child elements of an XML part's root.
// Elements with element children (vectors, variants) are skipped.
func partFields(data []byte, prefix, namespace string, editable bool, m *core.Metadata) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	var (
		name    string
		text    strings.Builder
		complex bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", namespace, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 2:
				name, complex = t.Name.Local, false
				text.Reset()
			case 3:
				complex = true
			}
		case xml.EndElement:
			if depth == 2 && !complex {
				m.Add(prefix+name, core.String(strings.TrimSpace(text.String())), namespace, editable)
			}
			depth--
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		}
	}
}

func viewOPC(path string, m *core.Metadata) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("cannot open as ZIP: %w", err)
	}
	defer r.Close()

	if data, ok, err := readZipPart(&r.Reader, corePart); ok {
		if err != nil {
			return err
		}
		if err := partFields(data, "Office.Core.", "Core Properties", true, m); err != nil {
			return err
		}
	}
	if data, ok, err := readZipPart(&r.Reader, appPart); ok {
		if err != nil {
			return err
		}
		if err := partFields(data, "Office.App.", "App Properties", false, m); err != nil {
			return err
		}
	}
	return nil
}

// rewriteZip copies every entry of path, passing the named parts through
// patch. Untouched entries are copied compressed, byte for byte.
func rewriteZip(path string, patch map[string]func([]byte) ([]byte, error)) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("cannot open as ZIP: %w", err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".surgery-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := zip.NewWriter(tmp)
	for _, f := range r.File {
		fn, ok := patch[f.Name]
		if !ok {
			if err := copyRaw(w, f); err != nil {
				tmp.Close()
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			tmp.Close()
			return err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			tmp.Close()
			return err
		}
		if content, err = fn(content); err != nil {
			tmp.Close()
			return err
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := fw.Write(content); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	r.Close()
	return os.Rename(tmp.Name(), path)
}

func copyRaw(w *zip.Writer, f *zip.File) error {
	raw, err := f.OpenRaw()
	if err != nil {
		return err
	}
	hdr := f.FileHeader
	fw, err := w.CreateRaw(&hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, raw)
	return err
}

func editOPC(path string, changes []core.Change) error {
	for _, c := range changes {
		if !strings.HasPrefix(c.Key, "Office.Core.") {
			return fmt.Errorf("key %q cannot be written to an Office document", c.Key)
		}
	}
	if err := requirePart(path, corePart); err != nil {
		return err
	}
	return rewriteZip(path, map[string]func([]byte) ([]byte, error){
		corePart: func(data []byte) ([]byte, error) { return patchCoreXML(data, changes) },
	})
}

func requirePart(path, name string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("cannot open as ZIP: %w", err)
	}
	defer r.Close()
	if _, ok, _ := readZipPart(&r.Reader, name); !ok {
		return fmt.Errorf("document has no %s part", name)
	}
	return nil
}

func elementRe(local string) *regexp.Regexp {
	q := regexp.QuoteMeta(local)
	return regexp.MustCompile(`(?s)<((?:\w+:)?` + q + `)(\s[^>]*)?(?:/>|>.*?</(?:\w+:)?` + q + `\s*>)`)
}

func patchCoreXML(data []byte, changes []core.Change) ([]byte, error) {
	for _, c := range changes {
		local := strings.TrimPrefix(c.Key, "Office.Core.")
		re := elementRe(local)
		loc := re.FindSubmatchIndex(data)

		if c.Remove {
			if loc != nil {
				data = append(data[:loc[0]:loc[0]], data[loc[1]:]...)
			}
			continue
		}

		var qname, attrs string
		if loc != nil {
			qname = string(data[loc[2]:loc[3]])
			if loc[4] >= 0 {
				attrs = string(data[loc[4]:loc[5]])
			}
		} else {
			q, ok := coreQNames[local]
			if !ok {
				return nil, fmt.Errorf("unknown core property %q", local)
			}
			qname = q
			if strings.HasPrefix(q, "dcterms:") {
				attrs = ` xsi:type="dcterms:W3CDTF"`
			}
		}
		el := fmt.Sprintf("<%s%s>%s</%s>", qname, strings.TrimRight(attrs, "/ "), xmlEscape(c.Value.String()), qname)

		if loc != nil {
			data = append(data[:loc[0]:loc[0]], append([]byte(el), data[loc[1]:]...)...)
			continue
		}
		end := bytes.LastIndex(data, []byte("</"))
		if end < 0 {
			return nil, fmt.Errorf("core.xml has no closing root element")
		}
		data = append(data[:end:end], append([]byte(el), data[end:]...)...)
	}
	return data, nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func stripOPC(path string, opts core.StripOptions) error {
	if opts.GPSOnly {
		return nil
	}
	return rewriteZip(path, map[string]func([]byte) ([]byte, error){
		corePart: func(data []byte) ([]byte, error) {
			if len(opts.Keep) == 0 {
				return []byte(blankCoreXML), nil
			}
			return keepCoreXML(data, opts)
		},
		appPart: func(data []byte) ([]byte, error) {
			for _, local := range appIdentity {
				if opts.Keeps("Office.App." + local) {
					continue
				}
				data = elementRe(local).ReplaceAll(data, nil)
			}
			return data, nil
		},
	})
}

// keepCoreXML removes every core property not listed in opts.Keep.
func keepCoreXML(data []byte, opts core.StripOptions) ([]byte, error) {
	m := &core.Metadata{}
	if err := partFields(data, "Office.Core.", "Core Properties", true, m); err != nil {
		return nil, err
	}
	var drop []core.Change
	for _, f := range m.Fields {
		if !opts.Keeps(f.Key) {
			drop = append(drop, core.Change{Key: f.Key, Remove: true})
		}
	}
	return patchCoreXML(data, drop)
}
