// Package repair recovers structured JSON from free-form model text. The
// pipeline is an ordered chain of independently testable stages; the first
// stage that yields valid JSON wins, and its provenance marker records how
// much surgery the output needed.
package repair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Provenance markers, in decreasing order of trustworthiness.
const (
	ProvenanceDirect        = "direct"
	ProvenanceFixed         = "fixed"
	ProvenanceReconstructed = "reconstructed"
	ProvenanceRegexExtract  = "regex-extracted"
	ProvenanceFallback      = "fallback"
)

// Result is a successfully recovered object together with how it was
// recovered.
type Result struct {
	// JSON is the recovered object as canonical JSON text.
	JSON string
	// Object is the recovered object decoded into a generic map.
	Object map[string]any
	// Provenance names the stage that produced the object.
	Provenance string
}

// StructuredOutputError reports that every repair stage failed.
type StructuredOutputError struct {
	Raw string
}

// Error implements the error interface.
func (e *StructuredOutputError) Error() string {
	preview := e.Raw
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	return fmt.Sprintf("structured output unrecoverable: %q", preview)
}

// Pipeline applies the repair stages in order.
type Pipeline struct {
	logger zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(logger zerolog.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Repair runs the shape-independent stages: direct parse, syntax
// normalization, key quoting, and full reconstruction. When a target shape
// is known, use RepairWithShape to add field-level extraction.
func (p *Pipeline) Repair(raw string) (*Result, error) {
	if result := p.structural(raw); result != nil {
		return result, nil
	}
	return nil, &StructuredOutputError{Raw: raw}
}

// RepairWithShape runs the structural stages and, when they all fail,
// falls back to per-field regex extraction against the given shape.
func (p *Pipeline) RepairWithShape(raw string, shape Shape) (*Result, error) {
	if result := p.structural(raw); result != nil {
		return result, nil
	}
	if result := p.extractShape(raw, shape); result != nil {
		return result, nil
	}
	return nil, &StructuredOutputError{Raw: raw}
}

func (p *Pipeline) structural(raw string) *Result {
	if result := accept(raw, ProvenanceDirect); result != nil {
		return result
	}

	normalized := normalize(raw)
	if result := accept(normalized, ProvenanceFixed); result != nil {
		p.logger.Debug().Msg("Structured output repaired by syntax normalization")
		return result
	}

	quoted := quoteKeys(normalized)
	if result := accept(quoted, ProvenanceFixed); result != nil {
		p.logger.Debug().Msg("Structured output repaired by key quoting")
		return result
	}

	// Reconstruction only makes sense for text that was trying to be an
	// object; prose without braces goes to field extraction instead.
	if strings.ContainsAny(raw, "{}") {
		if rebuilt := reconstruct(quoted); rebuilt != "" {
			if result := accept(rebuilt, ProvenanceReconstructed); result != nil {
				p.logger.Debug().Msg("Structured output rebuilt from extracted pairs")
				return result
			}
		}
	}
	return nil
}

// accept parses candidate text and, when it is a valid JSON object or
// array, packages it as a Result.
func accept(text, provenance string) *Result {
	text = strings.TrimSpace(text)
	if text == "" || !gjson.Valid(text) {
		return nil
	}
	parsed := gjson.Parse(text)
	if !parsed.IsObject() && !parsed.IsArray() {
		return nil
	}

	result := &Result{JSON: text, Provenance: provenance}
	if parsed.IsObject() {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil
		}
		result.Object = obj
	}
	return result
}

// normalize applies the cheap syntax fixes: strip markdown fences, force a
// leading brace, unify line endings, and swap single quotes for double.
func normalize(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		if idx := strings.IndexAny(text, "{["); idx >= 0 {
			text = text[idx:]
		} else {
			text = "{" + text
		}
	}
	if strings.HasPrefix(text, "{") && !strings.HasSuffix(text, "}") {
		if idx := strings.LastIndex(text, "}"); idx >= 0 {
			text = text[:idx+1]
		} else {
			text = text + "}"
		}
	}

	if !strings.Contains(text, `"`) && strings.Contains(text, "'") {
		text = strings.ReplaceAll(text, "'", `"`)
	}
	return text
}

var bareKeyPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*):`)

// quoteKeys inserts double quotes around bare identifier keys that follow
// an opening brace or a comma.
func quoteKeys(text string) string {
	return bareKeyPattern.ReplaceAllString(text, `$1"$2"$3:`)
}

// pairPattern matches one key: value pair where the value is a quoted
// string, a nested object, a bracketed array, or a bare scalar.
var pairPattern = regexp.MustCompile(`"([^"]+)"\s*:\s*("(?:[^"\\]|\\.)*"|\{[^{}]*\}|\[[^\[\]]*\]|[^,{}\[\]]+)`)

// reconstruct extracts every recognizable key/value pair and rebuilds a
// syntactically valid object from them. Returns "" when nothing usable
// was found.
func reconstruct(text string) string {
	matches := pairPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}

	rebuilt := "{}"
	for _, match := range matches {
		key, value := match[1], strings.TrimSpace(match[2])
		raw := value
		if !gjson.Valid(raw) {
			// Bare scalar that is not valid JSON on its own: quote it.
			encoded, err := json.Marshal(raw)
			if err != nil {
				continue
			}
			raw = string(encoded)
		}
		updated, err := sjson.SetRaw(rebuilt, escapeKey(key), raw)
		if err != nil {
			continue
		}
		rebuilt = updated
	}
	if rebuilt == "{}" {
		return ""
	}
	return rebuilt
}

// escapeKey protects sjson path metacharacters in extracted keys.
func escapeKey(key string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return replacer.Replace(key)
}
