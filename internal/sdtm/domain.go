package sdtm

import (
	"maps"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

// SDTM column names used throughout the merge logic.
const (
	colStudyID  = "STUDYID"
	colUSubjID  = "USUBJID"
	colRDomain  = "RDOMAIN"
	colIDVar    = "IDVAR"
	colIDVarVal = "IDVARVAL"
	colQNam     = "QNAM"
	colQVal     = "QVAL"
	colQLabel   = "QLABEL"
	colQOrig    = "QORIG"
)

// ReservedSuppColumns are the Q-format structural columns never offered for
// user selection.
var ReservedSuppColumns = []string{
	colStudyID, colUSubjID, colRDomain, colIDVar, colIDVarVal, colQNam, colQVal, colQLabel, colQOrig,
}

func isReserved(col string) bool {
	for _, r := range ReservedSuppColumns {
		if r == col {
			return true
		}
	}
	return false
}

// IsSupp reports whether a dataset name denotes a supplemental-qualifier
// dataset.
func IsSupp(name string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(name)), "SUPP")
}

// Origin records which SUPP dataset contributed a merged column.
type Origin struct {
	SuppDataset string `json:"supp_ds"`
	QNAM        string `json:"qnam"`
	IDVar       string `json:"idvar,omitempty"`
}

// OriginMap maps a merged column name to its origin.
type OriginMap map[string]Origin

// ExtraMeta is per-domain metadata produced by merging.
type ExtraMeta struct {
	SuppOriginMap      OriginMap         `json:"supp_origin_map,omitempty"`
	PreviewOriginMap   OriginMap         `json:"preview_origin_map,omitempty"`
	SuppVariableLabels map[string]string `json:"supp_variable_labels,omitempty"`
}

// Domain is one dataset held by the Catalog.
//
// Tables are replaced wholesale on change, never edited in place, so a Domain
// returned by Catalog.Domain is a consistent snapshot.
type Domain struct {
	Name string
	Path string

	Raw             *table.Table
	Data            *table.Table
	View            *table.Table
	PivotForDisplay *table.Table
	UsePivotPreview bool

	Label        string
	ColumnLabels map[string]string
	Extra        ExtraMeta
}

// IsSupp reports whether the domain is a SUPP dataset.
func (d *Domain) IsSupp() bool { return IsSupp(d.Name) }

// Working returns the table term extraction and previews read: the view when
// one exists, otherwise data.
func (d *Domain) Working() *table.Table {
	if d.View != nil {
		return d.View
	}
	return d.Data
}

func (d *Domain) snapshot() *Domain {
	cp := *d
	cp.ColumnLabels = maps.Clone(d.ColumnLabels)
	cp.Extra = ExtraMeta{
		SuppOriginMap:      maps.Clone(d.Extra.SuppOriginMap),
		PreviewOriginMap:   maps.Clone(d.Extra.PreviewOriginMap),
		SuppVariableLabels: maps.Clone(d.Extra.SuppVariableLabels),
	}
	return &cp
}

func domainKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
