package repair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FieldKind distinguishes how a shape field is extracted and defaulted.
type FieldKind int

const (
	// StringField is a single quoted string value.
	StringField FieldKind = iota
	// ArrayField is a bracketed array of strings.
	ArrayField
)

// FieldSpec describes one extractable field of a target shape. Path is a
// dotted location in the assembled object; extraction matches on the last
// path component as it appears in the raw text.
type FieldSpec struct {
	Path    string
	Kind    FieldKind
	Default string // placeholder for absent string fields
}

// Shape is a known structured-output target for field-level extraction.
type Shape struct {
	Name   string
	Fields []FieldSpec
}

// SummaryShape is the summary-plus-highlights structure.
func SummaryShape() Shape {
	return Shape{
		Name: "summary",
		Fields: []FieldSpec{
			{Path: "summary", Kind: StringField, Default: "No summary available."},
			{Path: "highlights", Kind: ArrayField},
		},
	}
}

// PersonaShape is the five-section property persona structure.
func PersonaShape() Shape {
	return Shape{
		Name: "persona",
		Fields: []FieldSpec{
			{Path: "ideal_guests.demographics", Kind: ArrayField},
			{Path: "ideal_guests.interests", Kind: ArrayField},
			{Path: "unique_features", Kind: ArrayField},
			{Path: "location_advantages", Kind: ArrayField},
			{Path: "vibe", Kind: StringField, Default: "comfortable"},
			{Path: "property_class", Kind: StringField, Default: "mid-range"},
		},
	}
}

// extractShape pulls each field of the shape out of the raw text with its
// own regex and assembles a best-effort object. At least one field must be
// genuinely extracted; absent array fields default to empty, absent string
// fields to their placeholder.
func (p *Pipeline) extractShape(raw string, shape Shape) *Result {
	assembled := "{}"
	extracted := 0

	for _, field := range shape.Fields {
		value, ok := extractField(raw, field)
		if ok {
			extracted++
		}
		updated, err := sjson.SetRaw(assembled, escapeKey(field.Path), value)
		if err != nil {
			continue
		}
		assembled = updated
	}

	if extracted == 0 {
		return nil
	}
	p.logger.Debug().Str("shape", shape.Name).Int("fields", extracted).
		Msg("Structured output assembled by field extraction")
	return accept(assembled, ProvenanceRegexExtract)
}

// extractField returns the field's value as raw JSON and whether it was
// actually found in the text (as opposed to defaulted).
func extractField(raw string, field FieldSpec) (string, bool) {
	key := field.Path
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		key = key[idx+1:]
	}

	switch field.Kind {
	case ArrayField:
		pattern := regexp.MustCompile(`"?` + regexp.QuoteMeta(key) + `"?\s*:\s*(\[[^\[\]]*\])`)
		if match := pattern.FindStringSubmatch(raw); match != nil {
			if arr := parseStringArray(match[1]); arr != "" {
				return arr, true
			}
		}
		return "[]", false
	default:
		pattern := regexp.MustCompile(`"?` + regexp.QuoteMeta(key) + `"?\s*:\s*"((?:[^"\\]|\\.)*)"`)
		if match := pattern.FindStringSubmatch(raw); match != nil {
			return `"` + match[1] + `"`, true
		}
		encoded, _ := json.Marshal(field.Default)
		return string(encoded), false
	}
}

// quotedItemPattern matches individual quoted items inside a bracketed
// array literal.
var quotedItemPattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)'`)

// parseStringArray rebuilds a clean JSON string array from a possibly
// sloppy bracketed literal. Returns "" when no items are recognizable.
func parseStringArray(literal string) string {
	if gjson.Valid(literal) && gjson.Parse(literal).IsArray() {
		return literal
	}

	matches := quotedItemPattern.FindAllStringSubmatch(literal, -1)
	if len(matches) == 0 {
		return ""
	}
	items := make([]string, 0, len(matches))
	for _, match := range matches {
		item := match[1]
		if item == "" {
			item = match[2]
		}
		items = append(items, item)
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(encoded)
}
