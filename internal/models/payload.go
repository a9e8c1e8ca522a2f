package models

import (
	"encoding/json"
	"sort"
)

// Structural payload keys. Everything else returned by the oracle or filled
// by the field step lives in the open Fields bag.
const (
	KeyType        = "type"
	KeyTitle       = "title"
	KeyCreated     = "created"
	KeyTags        = "tags"
	KeyAttachments = "attachments"
	KeySource      = "source"
	KeyForm        = "form"
	KeyRawDir      = "raw_dir"
	KeyFilenames   = "filenames"
	KeyRawText     = "raw_text"
)

// StructuralFields is the set of payload keys with fixed meaning; template
// introspection excludes them from fillable field slots.
var StructuralFields = map[string]struct{}{
	KeyType: {}, KeyTitle: {}, KeyCreated: {}, KeyTags: {},
	KeyAttachments: {}, KeySource: {}, KeyForm: {}, KeyRawDir: {},
}

// Attachments records what was physically received with an input.
type Attachments struct {
	Links []string `json:"links"`
	Files []string `json:"files"`
}

// Payload is the working record of one pipeline execution. The core schema
// is fixed; type-specific template fields go into Fields. A payload is owned
// by exactly one pipeline run and never shared across concurrent routes.
type Payload struct {
	Type        string
	Title       string
	Created     string
	Tags        []string
	Attachments Attachments
	Form        string
	Source      string
	RawDir      string
	Filenames   []string
	RawText     string
	Fields      map[string]any
}

// Field returns a value from the open extension bag.
func (p *Payload) Field(name string) (any, bool) {
	v, ok := p.Fields[name]
	return v, ok
}

// SetField stores a value in the open extension bag.
func (p *Payload) SetField(name string, value any) {
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	p.Fields[name] = value
}

// StringField returns a field value if it is a non-empty string.
func (p *Payload) StringField(name string) string {
	if v, ok := p.Fields[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AddLink appends a link if not already present.
func (p *Payload) AddLink(url string) {
	for _, l := range p.Attachments.Links {
		if l == url {
			return
		}
	}
	p.Attachments.Links = append(p.Attachments.Links, url)
}

// AddFile appends a file path if not already present.
func (p *Payload) AddFile(path string) {
	for _, f := range p.Attachments.Files {
		if f == path {
			return
		}
	}
	p.Attachments.Files = append(p.Attachments.Files, path)
}

// SortLinks orders attachment links lexicographically (links are a set;
// order carries no meaning, unlike files which preserve arrival order).
func (p *Payload) SortLinks() {
	sort.Strings(p.Attachments.Links)
}

// Map flattens the payload into a single map for template rendering:
// structural keys plus the extension fields.
func (p *Payload) Map() map[string]any {
	out := make(map[string]any, len(p.Fields)+10)
	for k, v := range p.Fields {
		out[k] = v
	}
	out[KeyType] = p.Type
	out[KeyTitle] = p.Title
	out[KeyCreated] = p.Created
	out[KeyTags] = p.Tags
	out[KeyAttachments] = map[string]any{
		"links": p.Attachments.Links,
		"files": p.Attachments.Files,
	}
	out[KeySource] = p.Source
	out[KeyForm] = p.Form
	out[KeyRawDir] = p.RawDir
	out[KeyFilenames] = p.Filenames
	out[KeyRawText] = p.RawText
	return out
}

// payloadJSON mirrors the wire shape of the structural keys.
type payloadJSON struct {
	Type        string       `json:"type,omitempty"`
	Title       string       `json:"title,omitempty"`
	Created     string       `json:"created,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Attachments *Attachments `json:"attachments,omitempty"`
	Form        string       `json:"form,omitempty"`
	Source      string       `json:"source,omitempty"`
	RawDir      string       `json:"raw_dir,omitempty"`
	Filenames   []string     `json:"filenames,omitempty"`
	RawText     string       `json:"raw_text,omitempty"`
}

// MarshalJSON emits the structural keys alongside the extension fields.
func (p *Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+10)
	for k, v := range p.Fields {
		out[k] = v
	}
	out[KeyType] = p.Type
	out[KeyTitle] = p.Title
	out[KeyCreated] = p.Created
	out[KeyTags] = p.Tags
	out[KeyAttachments] = p.Attachments
	out[KeyForm] = p.Form
	if p.Source != "" {
		out[KeySource] = p.Source
	}
	if p.RawDir != "" {
		out[KeyRawDir] = p.RawDir
	}
	if len(p.Filenames) > 0 {
		out[KeyFilenames] = p.Filenames
	}
	if p.RawText != "" {
		out[KeyRawText] = p.RawText
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an oracle response tolerantly: structural keys land
// in the typed core, unknown keys in Fields, and malformed values (a number
// where a string belongs, non-string tag entries) are dropped rather than
// failing the decode.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Payload{}
	for key, val := range raw {
		switch key {
		case KeyType:
			p.Type = decodeString(val)
		case KeyTitle:
			p.Title = decodeString(val)
		case KeyCreated:
			p.Created = decodeString(val)
		case KeyForm:
			p.Form = decodeString(val)
		case KeySource:
			p.Source = decodeString(val)
		case KeyRawDir:
			p.RawDir = decodeString(val)
		case KeyRawText:
			p.RawText = decodeString(val)
		case KeyTags:
			p.Tags = decodeStrings(val)
		case KeyFilenames:
			p.Filenames = decodeStrings(val)
		case KeyAttachments:
			var att struct {
				Links json.RawMessage `json:"links"`
				Files json.RawMessage `json:"files"`
			}
			if err := json.Unmarshal(val, &att); err == nil {
				p.Attachments.Links = decodeStrings(att.Links)
				p.Attachments.Files = decodeStrings(att.Files)
			}
		default:
			var v any
			if err := json.Unmarshal(val, &v); err == nil {
				p.SetField(key, v)
			}
		}
	}
	return nil
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeStrings decodes a JSON array keeping only string elements.
func decodeStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}
