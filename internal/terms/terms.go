// Package terms builds the translation worklists from a merged catalog: coded
// dictionary terms, free-text values, dataset labels and variable labels.
// Every function is stateless and reads the domains it is given.
package terms

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

// Dictionary names a controlled medical dictionary.
type Dictionary string

const (
	MedDRA  Dictionary = "meddra"
	WHODrug Dictionary = "whodrug"
	// IGDataset and IGVariable look labels up in SDTM IG metadata by name.
	IGDataset  Dictionary = "ig_dataset"
	IGVariable Dictionary = "ig_variable"
	// Free marks worklist items with no dictionary behind them.
	Free Dictionary = "free"
)

// Role pairs a term column with its optional dictionary code column.
type Role struct {
	NameColumn string `json:"name_column" yaml:"name_column"`
	CodeColumn string `json:"code_column,omitempty" yaml:"code_column,omitempty"`
}

// RoleConfig lists the coded columns per dictionary. Roles are not bound to a
// dataset; every domain is scanned for the named columns.
type RoleConfig struct {
	MedDRA  []Role `json:"meddra_config" yaml:"meddra_config"`
	WHODrug []Role `json:"whodrug_config" yaml:"whodrug_config"`
}

// ParseRoleConfig decodes a YAML or JSON role config. Roles without a name
// column are dropped and column names are trimmed.
func ParseRoleConfig(b []byte) (RoleConfig, error) {
	var cfg RoleConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return RoleConfig{}, fmt.Errorf("parse role config: %w", err)
	}
	cfg.MedDRA = cleanRoles(cfg.MedDRA)
	cfg.WHODrug = cleanRoles(cfg.WHODrug)
	return cfg, nil
}

func cleanRoles(in []Role) []Role {
	out := make([]Role, 0, len(in))
	for _, r := range in {
		r.NameColumn = strings.TrimSpace(r.NameColumn)
		r.CodeColumn = strings.TrimSpace(r.CodeColumn)
		if r.NameColumn != "" {
			out = append(out, r)
		}
	}
	return out
}

// roles yields every configured role tagged with its dictionary, MedDRA first.
func (c RoleConfig) roles() []taggedRole {
	out := make([]taggedRole, 0, len(c.MedDRA)+len(c.WHODrug))
	for _, r := range c.MedDRA {
		out = append(out, taggedRole{Role: r, dict: MedDRA})
	}
	for _, r := range c.WHODrug {
		out = append(out, taggedRole{Role: r, dict: WHODrug})
	}
	return out
}

type taggedRole struct {
	Role
	dict Dictionary
}

// CodedTerm is one distinct (domain, variable, value, code) found in a coded
// column.
type CodedTerm struct {
	Dictionary Dictionary `json:"dictionary"`
	Domain     string     `json:"domain"`
	Variable   string     `json:"variable"`
	Value      string     `json:"value"`
	Code       string     `json:"code,omitempty"`
}

// ExtractCoded enumerates the distinct values of every configured name column
// over each parent's working table, paired with the code column when present.
// The result is deduplicated and sorted by (domain, variable, value, code); a
// term reachable from both dictionaries keeps the MedDRA tag.
func ExtractCoded(domains []*sdtm.Domain, cfg RoleConfig) []CodedTerm {
	type key struct{ domain, variable, value, code string }
	seen := map[key]struct{}{}
	var out []CodedTerm

	for _, d := range domains {
		if d.IsSupp() {
			continue
		}
		t := d.Working()
		for _, r := range cfg.roles() {
			names := t.Col(r.NameColumn)
			if names == nil {
				continue
			}
			codes := t.Col(r.CodeColumn)
			for i, v := range names {
				value, ok := cellText(v)
				if !ok {
					continue
				}
				code := ""
				if codes != nil {
					if c := sdtm.NormalizeCode(codes[i]); c != nil {
						code = c.(string)
					}
				}
				k := key{d.Name, r.NameColumn, value, code}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, CodedTerm{Dictionary: r.dict, Domain: d.Name, Variable: r.NameColumn, Value: value, Code: code})
			}
		}
	}

	slices.SortFunc(out, func(a, b CodedTerm) int {
		return cmp.Or(
			cmp.Compare(a.Domain, b.Domain),
			cmp.Compare(a.Variable, b.Variable),
			cmp.Compare(a.Value, b.Value),
			cmp.Compare(a.Code, b.Code),
		)
	})
	return out
}

// cellText renders a cell for a worklist: nulls and blank strings are absent,
// other values are trimmed.
func cellText(v any) (string, bool) {
	if table.IsNull(v) {
		return "", false
	}
	s := strings.TrimSpace(table.String(v))
	return s, s != ""
}
