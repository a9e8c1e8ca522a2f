// Package vocab loads the controlled tag vocabulary and the note type
// configuration. Both are read once and shared read-only across concurrent
// pipeline runs.
package vocab

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the controlled taxonomy: which namespaces are restricted,
// the allowed values per namespace (globally and per note type), and the
// synonym table mapping raw lower-case values to canonical spellings.
type Vocabulary struct {
	Controlled []string                       `yaml:"-"`
	Common     map[string][]string            `yaml:"common"`
	PerType    map[string]map[string][]string `yaml:"per_type"`
	Synonyms   map[string]map[string]string   `yaml:"synonyms"`

	controlledSet map[string]struct{}
}

// NewVocabulary builds a Vocabulary from already-parsed tables. Synonym raw
// keys are matched case-insensitively and are normalised here.
func NewVocabulary(controlled []string, common map[string][]string, perType map[string]map[string][]string, synonyms map[string]map[string]string) *Vocabulary {
	v := &Vocabulary{
		Controlled:    controlled,
		Common:        common,
		PerType:       perType,
		Synonyms:      synonyms,
		controlledSet: make(map[string]struct{}, len(controlled)),
	}
	if v.Common == nil {
		v.Common = map[string][]string{}
	}
	if v.PerType == nil {
		v.PerType = map[string]map[string][]string{}
	}
	if v.Synonyms == nil {
		v.Synonyms = map[string]map[string]string{}
	}
	for ns, table := range v.Synonyms {
		lowered := make(map[string]string, len(table))
		for raw, canon := range table {
			lowered[strings.ToLower(raw)] = canon
		}
		v.Synonyms[ns] = lowered
	}
	for _, ns := range controlled {
		v.controlledSet[strings.ToLower(strings.TrimSpace(ns))] = struct{}{}
	}
	return v
}

// IsControlled reports whether the namespace is restricted to an allowed list.
func (v *Vocabulary) IsControlled(ns string) bool {
	_, ok := v.controlledSet[ns]
	return ok
}

// AllowedValues returns the allowed-value list for (typeName, namespace).
// The common table takes precedence over the per-type table; iteration order
// of the returned slice is the configured order and is significant for
// clamping and slug tie-breaks.
func (v *Vocabulary) AllowedValues(typeName, ns string) []string {
	if vals, ok := v.Common[ns]; ok && len(vals) > 0 {
		return vals
	}
	if perType, ok := v.PerType[typeName]; ok {
		return perType[ns]
	}
	return nil
}

// EnumFields returns the union of common and per-type enum tables for a type.
// Per-type entries override common ones with the same field name.
func (v *Vocabulary) EnumFields(typeName string) map[string][]string {
	out := make(map[string][]string, len(v.Common))
	for k, vals := range v.Common {
		out[k] = vals
	}
	for k, vals := range v.PerType[typeName] {
		out[k] = vals
	}
	return out
}

// Canonical resolves a raw tag value through the synonym table for ns.
// The lookup is case-insensitive on the raw value.
func (v *Vocabulary) Canonical(ns, raw string) (string, bool) {
	table, ok := v.Synonyms[ns]
	if !ok {
		return "", false
	}
	canon, ok := table[strings.ToLower(raw)]
	return canon, ok
}

// vocabularyFile mirrors the on-disk YAML layout of vocabulary.yaml.
type vocabularyFile struct {
	Namespaces struct {
		Controlled []string `yaml:"controlled"`
	} `yaml:"namespaces"`
	Common   map[string][]string            `yaml:"common"`
	PerType  map[string]map[string][]string `yaml:"per_type"`
	Synonyms map[string]map[string]string   `yaml:"synonyms"`
	// Aliases is a legacy spelling of the synonyms table.
	Aliases map[string]map[string]string `yaml:"aliases"`
}

// TypeEntry describes one configured note type.
type TypeEntry struct {
	Dir      string `yaml:"dir"`
	Template string `yaml:"template"`
}

// Types is the note type configuration from types.yaml.
type Types struct {
	DefaultTemplate string
	Entries         map[string]TypeEntry

	// order preserves the file order of the types mapping; the first
	// configured type is the process default unless default_type is set.
	order       []string
	defaultType string
}

// Names returns the configured type names in file order.
func (t *Types) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether name is a configured type.
func (t *Types) Has(name string) bool {
	_, ok := t.Entries[name]
	return ok
}

// DefaultType returns the configured default type, falling back to the first
// configured type.
func (t *Types) DefaultType() string {
	if t.defaultType != "" {
		return t.defaultType
	}
	if len(t.order) > 0 {
		return t.order[0]
	}
	return ""
}

// DirFor returns the vault subdirectory for a type, falling back to the
// default type's directory.
func (t *Types) DirFor(name string) string {
	if e, ok := t.Entries[name]; ok && e.Dir != "" {
		return e.Dir
	}
	if def, ok := t.Entries[t.DefaultType()]; ok {
		return def.Dir
	}
	return ""
}

// TemplateFor returns the template file name for a type, falling back to the
// default template.
func (t *Types) TemplateFor(name string) string {
	if e, ok := t.Entries[name]; ok && e.Template != "" {
		return e.Template
	}
	return t.DefaultTemplate
}

// UnmarshalYAML decodes types.yaml preserving the order of the types mapping.
func (t *Types) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		DefaultTemplate string    `yaml:"default_template"`
		DefaultType     string    `yaml:"default_type"`
		Types           yaml.Node `yaml:"types"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	t.DefaultTemplate = raw.DefaultTemplate
	t.defaultType = raw.DefaultType
	t.Entries = make(map[string]TypeEntry)
	t.order = nil

	if raw.Types.Kind == 0 {
		return nil
	}
	if raw.Types.Kind != yaml.MappingNode {
		return fmt.Errorf("vocab: types must be a mapping")
	}
	// Mapping nodes store key/value pairs as alternating content entries.
	for i := 0; i+1 < len(raw.Types.Content); i += 2 {
		var name string
		if err := raw.Types.Content[i].Decode(&name); err != nil {
			return err
		}
		var entry TypeEntry
		if err := raw.Types.Content[i+1].Decode(&entry); err != nil {
			return err
		}
		t.Entries[name] = entry
		t.order = append(t.order, name)
	}
	return nil
}

// Config bundles everything loaded from the agent config directory.
type Config struct {
	Vocabulary *Vocabulary
	Types      *Types

	dir string
}

// Prompt reads prompts/<name>.txt under the agent config directory.
func (c *Config) Prompt(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, "prompts", name+".txt"))
	if err != nil {
		return "", fmt.Errorf("vocab: read prompt %s: %w", name, err)
	}
	return string(data), nil
}

// Load reads types.yaml and vocabulary.yaml from dir. A missing
// vocabulary.yaml yields an empty vocabulary (everything uncontrolled);
// types.yaml is required.
func Load(dir string) (*Config, error) {
	typesData, err := os.ReadFile(filepath.Join(dir, "types.yaml"))
	if err != nil {
		return nil, fmt.Errorf("vocab: read types.yaml: %w", err)
	}
	types := &Types{}
	if err := yaml.Unmarshal(typesData, types); err != nil {
		return nil, fmt.Errorf("vocab: parse types.yaml: %w", err)
	}
	if len(types.Entries) == 0 {
		return nil, fmt.Errorf("vocab: types.yaml declares no types")
	}

	voc := &Vocabulary{
		Common:        map[string][]string{},
		PerType:       map[string]map[string][]string{},
		Synonyms:      map[string]map[string]string{},
		controlledSet: map[string]struct{}{},
	}
	vocData, err := os.ReadFile(filepath.Join(dir, "vocabulary.yaml"))
	switch {
	case os.IsNotExist(err):
		// fine: no controlled vocabulary configured
	case err != nil:
		return nil, fmt.Errorf("vocab: read vocabulary.yaml: %w", err)
	default:
		var file vocabularyFile
		if err := yaml.Unmarshal(vocData, &file); err != nil {
			return nil, fmt.Errorf("vocab: parse vocabulary.yaml: %w", err)
		}
		voc = buildVocabulary(&file)
	}

	return &Config{Vocabulary: voc, Types: types, dir: dir}, nil
}

func buildVocabulary(file *vocabularyFile) *Vocabulary {
	synonyms := file.Synonyms
	if synonyms == nil {
		synonyms = file.Aliases
	}
	return NewVocabulary(file.Namespaces.Controlled, file.Common, file.PerType, synonyms)
}
