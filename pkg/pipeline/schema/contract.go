package schema

import (
	"strings"
)

// IngestMode selects how a dataset directory is interpreted on load.
type IngestMode string

const (
	// IngestModeRaw keeps every dataset as read.
	IngestModeRaw IngestMode = "RAW"
	// IngestModeSDTM pivots SUPP datasets and merges them into their parents.
	IngestModeSDTM IngestMode = "SDTM"
)

// Direction is the translation direction of a session.
type Direction string

const (
	DirectionZhToEn Direction = "zh_to_en"
	DirectionEnToZh Direction = "en_to_zh"
)

// Separator is the string placed between concatenated parts of a merged value.
// Sources of an en_to_zh session are English words and are space separated.
func (d Direction) Separator() string {
	if d == DirectionEnToZh {
		return " "
	}
	return ""
}

// SourceLang and TargetLang return ISO-ish language tags for prompts and cache keys.
func (d Direction) SourceLang() string {
	if d == DirectionEnToZh {
		return "en"
	}
	return "zh"
}

func (d Direction) TargetLang() string {
	if d == DirectionEnToZh {
		return "zh"
	}
	return "en"
}

// Field describes one column of a worklist output contract.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

func NormalizeMode(raw string) IngestMode {
	s := strings.TrimSpace(strings.ToUpper(raw))
	switch s {
	case "SDTM":
		return IngestModeSDTM
	default:
		return IngestModeRaw
	}
}

// NormalizeDirection accepts the canonical names and a few spellings seen in
// saved configs. Unknown values fall back to zh_to_en.
func NormalizeDirection(raw string) Direction {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.NewReplacer("-", "_", " ", "_", "2", "_to_").Replace(s)
	switch s {
	case "en_to_zh", "en_zh", "english_to_chinese":
		return DirectionEnToZh
	default:
		return DirectionZhToEn
	}
}
