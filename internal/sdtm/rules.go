package sdtm

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnRef names one column of one dataset. For a SUPP dataset the column is
// a QNAM.
type ColumnRef struct {
	Dataset string `json:"dataset" yaml:"dataset"`
	Column  string `json:"column" yaml:"column"`
}

func (r ColumnRef) String() string {
	return r.Dataset + "." + r.Column
}

// MergeRule concatenates the sources, in order, into the target column.
//
// Two input shapes are accepted: the canonical
// {target: {dataset, column}, sources: [{dataset, column}, ...]} and the
// legacy {dataset, target, sources: [column, ...]} where every source lives in
// dataset. Rules always marshal in canonical form.
type MergeRule struct {
	Target  ColumnRef   `json:"target" yaml:"target"`
	Sources []ColumnRef `json:"sources" yaml:"sources"`
}

func (r MergeRule) String() string {
	srcs := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		srcs[i] = s.String()
	}
	return fmt.Sprintf("%s <- [%s]", r.Target, strings.Join(srcs, ", "))
}

// Valid reports whether the rule names a target dataset and column.
func (r MergeRule) Valid() bool {
	return r.Target.Dataset != "" && r.Target.Column != ""
}

type ruleWire struct {
	Dataset string      `yaml:"dataset"`
	Target  yaml.Node   `yaml:"target"`
	Sources []yaml.Node `yaml:"sources"`
}

// UnmarshalYAML accepts both rule shapes.
func (r *MergeRule) UnmarshalYAML(n *yaml.Node) error {
	var w ruleWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	out := MergeRule{}
	legacyDataset := strings.TrimSpace(w.Dataset)

	switch w.Target.Kind {
	case yaml.ScalarNode:
		out.Target = ColumnRef{Dataset: legacyDataset, Column: strings.TrimSpace(w.Target.Value)}
	case yaml.MappingNode:
		var ref ColumnRef
		if err := w.Target.Decode(&ref); err != nil {
			return fmt.Errorf("decode target: %w", err)
		}
		out.Target = trimRef(ref)
		if out.Target.Dataset == "" {
			out.Target.Dataset = legacyDataset
		}
	}

	defaultDataset := legacyDataset
	if defaultDataset == "" {
		defaultDataset = out.Target.Dataset
	}
	for i := range w.Sources {
		s := &w.Sources[i]
		switch s.Kind {
		case yaml.ScalarNode:
			col := strings.TrimSpace(s.Value)
			if col == "" {
				continue
			}
			out.Sources = append(out.Sources, ColumnRef{Dataset: defaultDataset, Column: col})
		case yaml.MappingNode:
			var ref ColumnRef
			if err := s.Decode(&ref); err != nil {
				return fmt.Errorf("decode source %d: %w", i, err)
			}
			ref = trimRef(ref)
			if ref.Dataset == "" {
				ref.Dataset = defaultDataset
			}
			out.Sources = append(out.Sources, ref)
		}
	}
	*r = out
	return nil
}

// UnmarshalJSON accepts both rule shapes.
func (r *MergeRule) UnmarshalJSON(b []byte) error {
	return yaml.Unmarshal(b, r)
}

func trimRef(r ColumnRef) ColumnRef {
	return ColumnRef{Dataset: strings.TrimSpace(r.Dataset), Column: strings.TrimSpace(r.Column)}
}

// ParseRules decodes a YAML or JSON document holding a list of rules, a single
// rule, or an object with a "configs" list.
func ParseRules(b []byte) ([]MergeRule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse merge rules: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "configs" {
				root = root.Content[i+1]
				break
			}
		}
	}

	var rules []MergeRule
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&rules); err != nil {
			return nil, fmt.Errorf("decode merge rules: %w", err)
		}
	case yaml.MappingNode:
		var one MergeRule
		if err := root.Decode(&one); err != nil {
			return nil, fmt.Errorf("decode merge rule: %w", err)
		}
		rules = append(rules, one)
	default:
		return nil, fmt.Errorf("decode merge rules: unexpected %s document", kindName(root.Kind))
	}
	return rules, nil
}

// MarshalRules encodes rules in canonical JSON.
func MarshalRules(rules []MergeRule) ([]byte, error) {
	if rules == nil {
		rules = []MergeRule{}
	}
	return json.Marshal(rules)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "empty"
}
