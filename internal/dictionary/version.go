package dictionary

import (
	"strings"
	"unicode"
)

// NormalizeMedDRAVersion reduces a MedDRA release name to its dotted number:
// "27.1.english", "meddra_27_1_chinese" and "27.1" all become "27.1".
func NormalizeMedDRAVersion(raw string) string {
	parts := versionTokens(raw, "meddra")
	return strings.Join(parts, ".")
}

// NormalizeWHODrugVersion reduces a WHODrug release name to "<year> <Mon> <n>":
// "global.2025.mar.1.english" becomes "2025 Mar 1".
func NormalizeWHODrugVersion(raw string) string {
	parts := versionTokens(raw, "whodrug", "global", "b3", "c3")
	for i, p := range parts {
		if r := []rune(p); len(r) > 0 && unicode.IsLetter(r[0]) {
			parts[i] = string(unicode.ToUpper(r[0])) + string(r[1:])
		}
	}
	return strings.Join(parts, " ")
}

// NormalizeVersion dispatches on dictionary name; other dictionaries keep the
// trimmed raw string.
func NormalizeVersion(dict, raw string) string {
	switch dict {
	case "meddra":
		return NormalizeMedDRAVersion(raw)
	case "whodrug":
		return NormalizeWHODrugVersion(raw)
	}
	return strings.TrimSpace(raw)
}

// versionTokens splits on separators, lower-cases, and drops language
// suffixes plus the given product words.
func versionTokens(raw string, drop ...string) []string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsSpace(r)
	})
	skip := map[string]bool{"english": true, "chinese": true, "en": true, "cn": true, "zh": true}
	for _, d := range drop {
		skip[d] = true
	}
	out := fields[:0]
	for _, f := range fields {
		if !skip[f] {
			out = append(out, f)
		}
	}
	return out
}
