// Package load reads schema descriptor files.
//
// A descriptor file lists the models of a schema, either as a sequence in
// registration order or as a mapping from model name to definition:
//
//	version: v2
//	models:
//	  - name: Author
//	    columns:
//	      - {name: id, type: bigint}
//	      - {name: name, type: varchar(255)}
//	    primary_key: [id]
//	    relations:
//	      - {name: posts, kind: O2M, target: Post}
//	    mixins: [time]
//
// A model listing mixins gets their columns ahead of its own; see package
// contrib/mixin for the available names.
//
// JSON files use the same shape, which is also what a marshaled
// schema.Snapshot looks like.
package load

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/quarry/contrib/mixin"
	"github.com/syssam/quarry/schema"
)

// Format is the encoding of a descriptor file.
type Format string

// Supported formats.
const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// FormatOf returns the format of a file from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	default:
		return "", fmt.Errorf("load: unknown descriptor format for %q", path)
	}
}

// Document is a decoded descriptor file.
type Document struct {
	Version string
	// Models holds the models in file order.
	Models []*schema.Model
}

// Descriptor returns the document as a name-keyed descriptor.
func (d *Document) Descriptor() schema.Descriptor {
	desc := make(schema.Descriptor, len(d.Models))
	for _, m := range d.Models {
		desc[m.Name] = m
	}
	return desc
}

// Snapshot registers the models of the document in file order and returns
// a snapshot of them. The document version, when set, overrides a version
// given in opts.
func (d *Document) Snapshot(opts ...schema.Option) (*schema.Snapshot, error) {
	if d.Version != "" {
		opts = append(opts, schema.WithVersion(d.Version))
	}
	r := schema.NewRegistry(opts...)
	for _, m := range d.Models {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r.Snapshot()
}

// document is the wire form. Models is either a sequence or a mapping.
type document struct {
	Version string          `json:"version"`
	Models  json.RawMessage `json:"models"`
}

// Decode decodes a descriptor.
func Decode(b []byte, format Format) (*Document, error) {
	switch format {
	case JSON:
		return decodeJSON(b)
	case YAML:
		return decodeYAML(b)
	default:
		return nil, fmt.Errorf("load: unknown descriptor format %q", format)
	}
}

func decodeJSON(b []byte) (*Document, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("load: decode json: %w", err)
	}
	d := &Document{Version: doc.Version}
	raw := bytes.TrimSpace(doc.Models)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("load: decode json models: %w", err)
		}
		for i, e := range entries {
			m, err := jsonModel(e, "")
			if err != nil {
				return nil, fmt.Errorf("load: decode json model %d: %w", i, err)
			}
			d.Models = append(d.Models, m)
		}
	default:
		// Object keys are read in file order to keep registration order.
		dec := json.NewDecoder(bytes.NewReader(raw))
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("load: decode json models: %w", err)
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("load: decode json models: %w", err)
			}
			var e json.RawMessage
			if err := dec.Decode(&e); err != nil {
				return nil, fmt.Errorf("load: decode json model %v: %w", tok, err)
			}
			m, err := jsonModel(e, tok.(string))
			if err != nil {
				return nil, fmt.Errorf("load: decode json model %v: %w", tok, err)
			}
			d.Models = append(d.Models, m)
		}
	}
	return d, d.check()
}

// withMixins holds the mixin names listed next to a model definition.
type withMixins struct {
	Mixins []string `json:"mixins" yaml:"mixins"`
}

// jsonModel decodes one model entry. A non-empty name overrides the name
// of the entry.
func jsonModel(b json.RawMessage, name string) (*schema.Model, error) {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil, nil
	}
	var (
		m  schema.Model
		mx withMixins
	)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &mx); err != nil {
		return nil, err
	}
	return finish(&m, name, mx.Mixins)
}

func yamlModel(n *yaml.Node, name string) (*schema.Model, error) {
	if n.Tag == "!!null" {
		return nil, nil
	}
	var (
		m  schema.Model
		mx withMixins
	)
	if err := n.Decode(&m); err != nil {
		return nil, err
	}
	if err := n.Decode(&mx); err != nil {
		return nil, err
	}
	return finish(&m, name, mx.Mixins)
}

func finish(m *schema.Model, name string, mixins []string) (*schema.Model, error) {
	if name != "" {
		m.Name = name
	}
	if len(mixins) == 0 {
		return m, nil
	}
	return mixin.ApplyNamed(m, mixins...)
}

func decodeYAML(b []byte) (*Document, error) {
	var doc struct {
		Version string    `yaml:"version"`
		Models  yaml.Node `yaml:"models"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("load: decode yaml: %w", err)
	}
	d := &Document{Version: doc.Version}
	switch n := &doc.Models; n.Kind {
	case 0:
	case yaml.SequenceNode:
		for i, e := range n.Content {
			m, err := yamlModel(e, "")
			if err != nil {
				return nil, fmt.Errorf("load: decode yaml model %d: %w", i, err)
			}
			d.Models = append(d.Models, m)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			m, err := yamlModel(n.Content[i+1], n.Content[i].Value)
			if err != nil {
				return nil, fmt.Errorf("load: decode yaml model %s: %w", n.Content[i].Value, err)
			}
			d.Models = append(d.Models, m)
		}
	default:
		return nil, fmt.Errorf("load: line %d: models must be a sequence or a mapping", n.Line)
	}
	return d, d.check()
}

func (d *Document) check() error {
	seen := make(map[string]bool, len(d.Models))
	for i, m := range d.Models {
		switch {
		case m == nil:
			return fmt.Errorf("load: model %d is empty", i)
		case seen[m.Name]:
			return fmt.Errorf("load: model %s is declared twice", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Read decodes the descriptor file at path, picking the format from the
// file extension.
func Read(path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	d, err := Decode(b, format)
	if err != nil {
		return nil, fmt.Errorf("%w (file: %s)", err, path)
	}
	return d, nil
}

// File reads the descriptor file at path and returns a snapshot of it.
func File(path string, opts ...schema.Option) (*schema.Snapshot, error) {
	d, err := Read(path)
	if err != nil {
		return nil, err
	}
	return d.Snapshot(opts...)
}

// Encode writes the models of a snapshot as a descriptor in registration
// order. Synthesized join tables are left out since they are derived again
// on load.
func Encode(snap *schema.Snapshot, format Format) ([]byte, error) {
	doc := struct {
		Version string          `json:"version" yaml:"version"`
		Models  []*schema.Model `json:"models" yaml:"models"`
	}{Version: snap.Version(), Models: snap.Models()}
	switch format {
	case JSON:
		return json.MarshalIndent(doc, "", "  ")
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("load: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("load: unknown descriptor format %q", format)
	}
}
