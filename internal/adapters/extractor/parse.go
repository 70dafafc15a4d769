package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"concierge/internal/domain"
)

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// wireResponse mirrors the extractor's JSON. Pointers mark required fields.
type wireResponse struct {
	Text             string          `json:"text"`
	Intent           string          `json:"intent"`
	Confidence       *float64        `json:"confidence"`
	ExtractedData    json.RawMessage `json:"extractedData"`
	ShouldFillForm   bool            `json:"shouldFillForm"`
	ValidationErrors []string        `json:"validationErrors"`
	Suggestions      []string        `json:"suggestions"`
}

// parseExtraction decodes a response body. JSON wrapped in a markdown fence or
// surrounded by prose is unwrapped first; anything else that does not decode
// strictly is an error. Partial results are never returned.
func parseExtraction(body []byte) (domain.Extraction, error) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return domain.Extraction{}, errors.New("empty response")
	}
	var w wireResponse
	err := json.Unmarshal(raw, &w)
	if err != nil {
		candidate := unwrapJSON(string(raw))
		if candidate == "" {
			return domain.Extraction{}, fmt.Errorf("no JSON object in response: %w", err)
		}
		w = wireResponse{}
		if err := json.Unmarshal([]byte(candidate), &w); err != nil {
			return domain.Extraction{}, fmt.Errorf("decode response: %w", err)
		}
	}

	if w.Confidence == nil {
		return domain.Extraction{}, errors.New("confidence missing")
	}
	if c := *w.Confidence; c < 0 || c > 1 {
		return domain.Extraction{}, fmt.Errorf("confidence %v outside [0,1]", c)
	}

	var data map[string]any
	if len(w.ExtractedData) > 0 && !bytes.Equal(w.ExtractedData, []byte("null")) {
		if err := json.Unmarshal(w.ExtractedData, &data); err != nil {
			return domain.Extraction{}, fmt.Errorf("extractedData is not an object: %w", err)
		}
	}
	if data == nil {
		data = map[string]any{}
	}

	return domain.Extraction{
		Text:             w.Text,
		Intent:           domain.ParseIntent(w.Intent),
		Confidence:       *w.Confidence,
		Data:             data,
		ShouldFillForm:   w.ShouldFillForm,
		ValidationErrors: w.ValidationErrors,
		Suggestions:      w.Suggestions,
	}, nil
}

// unwrapJSON pulls the first JSON object out of a fence or surrounding text.
func unwrapJSON(s string) string {
	if m := fenced.FindStringSubmatch(s); len(m) > 1 && strings.HasPrefix(strings.TrimSpace(m[1]), "{") {
		return m[1]
	}
	if start := strings.IndexByte(s, '{'); start >= 0 {
		return balanced(s[start:])
	}
	return ""
}

// balanced returns the prefix of s up to the brace closing s[0], honoring strings.
func balanced(s string) string {
	depth, inString, escape := 0, false, false
	for i, ch := range s {
		switch {
		case escape:
			escape = false
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
