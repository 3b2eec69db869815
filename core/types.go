// Package core defines the shared types, interfaces, and format registry
// for Privacy Surgery.
package core

import "strings"

// MetaField represents a single metadata key-value pair.
type MetaField struct {
	Key       string // Namespaced key (e.g. "Exif.Image.Make", "Pdf.Info.Author")
	Value     Value  // Typed value as decoded from the file
	Namespace string // Source scheme (e.g. "EXIF", "XMP", "IPTC", "PDF Info")
	Editable  bool   // Whether this field can be written back
}

// Metadata holds all metadata extracted from a single file.
type Metadata struct {
	FilePath string
	Format   FormatID
	Fields   []MetaField
}

// Add appends a field.
func (m *Metadata) Add(key string, v Value, namespace string, editable bool) {
	m.Fields = append(m.Fields, MetaField{Key: key, Value: v, Namespace: namespace, Editable: editable})
}

// Get returns the value of the last field with the given key.
func (m *Metadata) Get(key string) (Value, bool) {
	for i := len(m.Fields) - 1; i >= 0; i-- {
		if m.Fields[i].Key == key {
			return m.Fields[i].Value, true
		}
	}
	return Value{}, false
}

// Field returns the last field with the given key.
func (m *Metadata) Field(key string) (MetaField, bool) {
	for i := len(m.Fields) - 1; i >= 0; i-- {
		if m.Fields[i].Key == key {
			return m.Fields[i], true
		}
	}
	return MetaField{}, false
}

// Map flattens the fields into a key→value mapping. Later fields win.
func (m *Metadata) Map() map[string]Value {
	out := make(map[string]Value, len(m.Fields))
	for _, f := range m.Fields {
		out[f.Key] = f.Value
	}
	return out
}

// Filter returns the fields whose key contains substr, ignoring case.
// An empty substr matches everything.
func (m *Metadata) Filter(substr string) []MetaField {
	needle := strings.ToLower(substr)
	var out []MetaField
	for _, f := range m.Fields {
		if strings.Contains(strings.ToLower(f.Key), needle) {
			out = append(out, f)
		}
	}
	return out
}

// Change is one resolved edit: set Key to Value, or remove it.
type Change struct {
	Key    string
	Value  Value
	Remove bool
}

// StripOptions controls which parts of metadata to remove.
type StripOptions struct {
	// Keep lists field keys that should NOT be removed.
	Keep []string
	// GPSOnly removes location data only.
	GPSOnly bool
}

// Keeps reports whether key is listed in Keep.
func (o StripOptions) Keeps(key string) bool {
	for _, k := range o.Keep {
		if k == key {
			return true
		}
	}
	return false
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name       string   // "JPEG"
	Extensions []string // [".jpg", ".jpeg"]
	MediaType  string   // "image" | "audio" | "document"
	MIMETypes  []string
	CanEdit    bool
	CanStrip   bool
	Namespaces []string // Key prefixes the handler produces
	Notes      string
}

// Handler is the interface every format must implement.
//
// Edit and Strip work in place: the dispatcher copies the source file to the
// destination first and hands the copy to the handler.
type Handler interface {
	// View reads and returns all discoverable metadata from path.
	View(path string) (*Metadata, error)
	// Edit applies changes to the file at path.
	Edit(path string, changes []Change) error
	// Strip removes metadata from the file at path.
	Strip(path string, opts StripOptions) error
	// Info returns format capabilities.
	Info() FormatInfo
}
