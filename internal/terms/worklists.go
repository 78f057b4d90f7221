package terms

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

// UncodedValue is one distinct free-text value of a character column.
type UncodedValue struct {
	Domain   string `json:"domain"`
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

// DatasetLabel is the label of one domain.
type DatasetLabel struct {
	Domain string `json:"domain"`
	Label  string `json:"label"`
}

// VariableLabel is the label of one column.
type VariableLabel struct {
	Domain   string `json:"domain"`
	Variable string `json:"variable"`
	Label    string `json:"label"`
}

// Worklists bundles everything a translation run works through.
type Worklists struct {
	Coded          []CodedTerm     `json:"coded"`
	Uncoded        []UncodedValue  `json:"uncoded"`
	DatasetLabels  []DatasetLabel  `json:"dataset_labels"`
	VariableLabels []VariableLabel `json:"variable_labels"`
}

// Build computes all four worklists.
func Build(domains []*sdtm.Domain, cfg RoleConfig) Worklists {
	return Worklists{
		Coded:          ExtractCoded(domains, cfg),
		Uncoded:        Uncoded(domains, cfg),
		DatasetLabels:  DatasetLabels(domains),
		VariableLabels: VariableLabels(domains),
	}
}

var structuralColumns = map[string]struct{}{
	"STUDYID": {}, "DOMAIN": {}, "USUBJID": {}, "SUBJID": {}, "IDVAR": {}, "IDVARVAL": {},
	"QNAM": {}, "QORIG": {}, "QEVAL": {}, "RDOMAIN": {},
}

var structuralSuffixes = []string{"SEQ", "GRPID", "REFID", "SPID", "DTC", "DY", "STDY", "ENDY", "TESTCD", "CD"}

// Structural reports whether an SDTM variable is an identifier, timing or code
// variable that never needs translating.
func Structural(col string) bool {
	c := strings.ToUpper(strings.TrimSpace(col))
	if _, ok := structuralColumns[c]; ok {
		return true
	}
	for _, s := range structuralSuffixes {
		if len(c) > len(s) && strings.HasSuffix(c, s) {
			return true
		}
	}
	return false
}

// Uncoded lists the distinct free-text values of each parent's character
// columns, skipping structural variables and the columns the role config
// already covers. Only values containing a letter are kept.
func Uncoded(domains []*sdtm.Domain, cfg RoleConfig) []UncodedValue {
	coded := map[string]struct{}{}
	for _, r := range cfg.roles() {
		coded[r.NameColumn] = struct{}{}
		if r.CodeColumn != "" {
			coded[r.CodeColumn] = struct{}{}
		}
	}

	type key struct{ domain, variable, value string }
	seen := map[key]struct{}{}
	var out []UncodedValue
	for _, d := range domains {
		if d.IsSupp() {
			continue
		}
		t := d.Working()
		for _, col := range t.Columns() {
			if _, ok := coded[col]; ok || Structural(col) {
				continue
			}
			vals := t.Col(col)
			if !characterColumn(vals) {
				continue
			}
			for _, v := range vals {
				s, ok := cellText(v)
				if !ok || !hasLetter(s) {
					continue
				}
				k := key{d.Name, col, s}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, UncodedValue{Domain: d.Name, Variable: col, Value: s})
			}
		}
	}
	slices.SortFunc(out, func(a, b UncodedValue) int {
		return cmp.Or(
			cmp.Compare(a.Domain, b.Domain),
			cmp.Compare(a.Variable, b.Variable),
			cmp.Compare(a.Value, b.Value),
		)
	})
	return out
}

// characterColumn reports whether every non-null cell is a string and at least
// one exists.
func characterColumn(vals []any) bool {
	found := false
	for _, v := range vals {
		if table.IsNull(v) {
			continue
		}
		if _, ok := v.(string); !ok {
			return false
		}
		found = true
	}
	return found
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// DatasetLabels lists every domain's label in name order.
func DatasetLabels(domains []*sdtm.Domain) []DatasetLabel {
	out := make([]DatasetLabel, 0, len(domains))
	for _, d := range domains {
		out = append(out, DatasetLabel{Domain: d.Name, Label: d.Label})
	}
	slices.SortFunc(out, func(a, b DatasetLabel) int { return cmp.Compare(a.Domain, b.Domain) })
	return out
}

// VariableLabels lists the labelled columns of every working table, in domain
// order and then column order.
func VariableLabels(domains []*sdtm.Domain) []VariableLabel {
	sorted := slices.Clone(domains)
	slices.SortFunc(sorted, func(a, b *sdtm.Domain) int { return cmp.Compare(a.Name, b.Name) })

	var out []VariableLabel
	for _, d := range sorted {
		for _, col := range d.Working().Columns() {
			l := strings.TrimSpace(d.ColumnLabels[col])
			if l == "" {
				continue
			}
			out = append(out, VariableLabel{Domain: d.Name, Variable: col, Label: l})
		}
	}
	return out
}
