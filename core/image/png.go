package image

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

type pngChunk struct {
	typ  string
	data []byte
}

// Chunks removed on strip. Colour chunks (iCCP, gAMA, cHRM, sRGB) stay.
var pngMetaChunks = map[string]bool{
	"tEXt": true,
	"iTXt": true,
	"zTXt": true,
	"eXIf": true,
	"tIME": true,
}

func readPNGChunks(r io.Reader) ([]pngChunk, error) {
	sig := make([]byte, 8)
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, fmt.Errorf("not a valid PNG")
	}

	var chunks []pngChunk
	hdr := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("truncated chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(hdr[:4])
		typ := string(hdr[4:8])
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("truncated %s chunk: %w", typ, err)
		}
		crc := make([]byte, 4)
		if _, err := io.ReadFull(r, crc); err != nil {
			return nil, fmt.Errorf("missing %s CRC: %w", typ, err)
		}
		chunks = append(chunks, pngChunk{typ: typ, data: data})
		if typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

func writePNGChunks(path string, chunks []pngChunk) error {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	for _, c := range chunks {
		binary.Write(&buf, binary.BigEndian, uint32(len(c.data)))
		buf.WriteString(c.typ)
		buf.Write(c.data)
		crc := crc32.NewIEEE()
		crc.Write([]byte(c.typ))
		crc.Write(c.data)
		binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func openPNG(path string) ([]pngChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readPNGChunks(f)
}

// textChunk decodes tEXt, zTXt and iTXt to keyword and UTF-8 text.
func textChunk(c pngChunk) (keyword, text string, ok bool) {
	null := bytes.IndexByte(c.data, 0)
	if null <= 0 {
		return "", "", false
	}
	keyword = latin1(c.data[:null])
	rest := c.data[null+1:]

	switch c.typ {
	case "tEXt":
		return keyword, latin1(rest), true
	case "zTXt":
		if len(rest) < 1 {
			return "", "", false
		}
		b, err := inflate(rest[1:])
		if err != nil {
			return "", "", false
		}
		return keyword, latin1(b), true
	case "iTXt":
		// flag, method, language\0, translated keyword\0, text
		if len(rest) < 2 {
			return "", "", false
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		for i := 0; i < 2; i++ {
			n := bytes.IndexByte(rest, 0)
			if n < 0 {
				return "", "", false
			}
			rest = rest[n+1:]
		}
		if compressed {
			b, err := inflate(rest)
			if err != nil {
				return "", "", false
			}
			rest = b
		}
		return keyword, string(rest), true
	}
	return "", "", false
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// textChunkFor builds a tEXt chunk, or an iTXt chunk when text is not Latin-1.
func textChunkFor(keyword, text string) pngChunk {
	if enc, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(text)); err == nil {
		kw, _ := charmap.ISO8859_1.NewEncoder().Bytes([]byte(keyword))
		return pngChunk{typ: "tEXt", data: append(append(kw, 0), enc...)}
	}
	var b bytes.Buffer
	b.WriteString(keyword)
	b.Write([]byte{0, 0, 0, 0, 0})
	b.WriteString(text)
	return pngChunk{typ: "iTXt", data: b.Bytes()}
}

// ─── View ────────────────────────────────────────────────────────────────────

func viewPNG(path string, m *core.Metadata) error {
	chunks, err := openPNG(path)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		switch c.typ {
		case "tEXt", "zTXt", "iTXt":
			if kw, text, ok := textChunk(c); ok {
				m.Add("Png.Text."+kw, core.String(text), "PNG "+c.typ, true)
			}
		case "eXIf":
			tree, err := parseExifTree(c.data)
			if err == nil {
				tree.fields(m, false)
			}
		case "tIME":
			if len(c.data) == 7 {
				year := binary.BigEndian.Uint16(c.data[0:2])
				m.Add("Png.Time.LastModified", core.String(fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
					year, c.data[2], c.data[3], c.data[4], c.data[5], c.data[6])), "PNG tIME", false)
			}
		}
	}
	return nil
}

// ─── Edit ────────────────────────────────────────────────────────────────────

func editPNG(path string, changes []core.Change) error {
	chunks, err := openPNG(path)
	if err != nil {
		return err
	}

	pending := make(map[string]*core.Change, len(changes))
	var order []string
	for i := range changes {
		kw, ok := strings.CutPrefix(changes[i].Key, "Png.Text.")
		if !ok || kw == "" || len(kw) > 79 {
			return fmt.Errorf("key %q cannot be written to PNG", changes[i].Key)
		}
		if _, dup := pending[kw]; !dup {
			order = append(order, kw)
		}
		pending[kw] = &changes[i]
	}

	done := map[string]bool{}
	var out []pngChunk
	for _, c := range chunks {
		if c.typ == "tEXt" || c.typ == "zTXt" || c.typ == "iTXt" {
			if kw, _, ok := textChunk(c); ok {
				if ch, hit := pending[kw]; hit {
					if ch.Remove || done[kw] {
						continue
					}
					c = textChunkFor(kw, ch.Value.String())
					done[kw] = true
				}
			}
		}
		out = append(out, c)
	}

	var add []pngChunk
	for _, kw := range order {
		if ch := pending[kw]; !done[kw] && !ch.Remove {
			add = append(add, textChunkFor(kw, ch.Value.String()))
		}
	}

	// New text goes before the first IDAT.
	final := make([]pngChunk, 0, len(out)+len(add))
	inserted := false
	for _, c := range out {
		if !inserted && c.typ == "IDAT" {
			final = append(final, add...)
			inserted = true
		}
		final = append(final, c)
	}
	if !inserted {
		return fmt.Errorf("PNG has no IDAT chunk")
	}
	return writePNGChunks(path, final)
}

// ─── Strip ───────────────────────────────────────────────────────────────────

func stripPNG(path string, opts core.StripOptions) error {
	chunks, err := openPNG(path)
	if err != nil {
		return err
	}
	var out []pngChunk
	for _, c := range chunks {
		switch {
		case c.typ == "eXIf" && opts.GPSOnly:
			tree, err := parseExifTree(c.data)
			if err != nil {
				return fmt.Errorf("eXIf: %w", err)
			}
			tree.stripGPS()
			c.data = tree.serialize()
		case opts.GPSOnly:
		case pngMetaChunks[c.typ]:
			if kw, _, ok := textChunk(c); ok && opts.Keeps("Png.Text."+kw) {
				break
			}
			continue
		}
		out = append(out, c)
	}
	return writePNGChunks(path, out)
}
