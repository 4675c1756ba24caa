// Package mask implements sensitive-field masking on the datastore write
// path: string values are replaced with a same-length run of asterisks,
// non-string values with the literal "***MASKED***".
package mask

import "strings"

// MaskedPlaceholder is substituted for any non-string sensitive value.
const MaskedPlaceholder = "***MASKED***"

// defaultPatterns are the built-in sensitive field-name fragments, matched
// case-insensitively as whole words against CamelCase, snake_case, and plain
// keys. Extend via Masker.AddPatterns for deployment-specific fields.
var defaultPatterns = []string{
	"password",
	"token",
	"ssn",
	"email",
	"secret",
	"apikey",
	"api_key",
	"creditcard",
	"credit_card",
	"authorization",
}

// Masker decides whether a field name is sensitive and masks its value.
type Masker struct {
	patterns []string
}

// New creates a Masker seeded with the built-in sensitive patterns plus any
// extra patterns supplied (e.g. from the SENSITIVE_PATTERNS configuration
// setting).
func New(extra ...string) *Masker {
	patterns := make([]string, 0, len(defaultPatterns)+len(extra))
	patterns = append(patterns, defaultPatterns...)
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Masker{patterns: patterns}
}

// AddPatterns registers additional sensitive field-name fragments.
func (m *Masker) AddPatterns(patterns ...string) {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
}

// IsSensitiveField reports whether key matches one of the registered
// sensitive field-name patterns as a whole word.
func (m *Masker) IsSensitiveField(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, pattern := range m.patterns {
		if hasWord(key, lowerKey, pattern) {
			return true
		}
	}
	return false
}

// MaskValue masks a single value per the write-path rule: strings become a
// same-length run of asterisks, everything else becomes MaskedPlaceholder.
func MaskValue(value any) any {
	if s, ok := value.(string); ok {
		return strings.Repeat("*", len(s))
	}
	return MaskedPlaceholder
}

// MaskRecord returns a copy of record with every sensitive field's value
// masked. Non-sensitive fields are passed through unchanged. The input map
// is not modified.
func (m *Masker) MaskRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	result := make(map[string]any, len(record))
	for k, v := range record {
		if m.IsSensitiveField(k) {
			result[k] = MaskValue(v)
			continue
		}
		result[k] = v
	}
	return result
}

// hasWord reports whether term occurs in key at a word boundary: start/end
// of string, '_', '-', '.', a digit, or a CamelCase transition.
func hasWord(key, lowerKey, term string) bool {
	start := 0
	for {
		idx := strings.Index(lowerKey[start:], term)
		if idx == -1 {
			return false
		}
		actualIdx := start + idx

		before := true
		if actualIdx > 0 {
			prev := key[actualIdx-1]
			isSymbol := prev == '_' || prev == '-' || prev == '.' || (prev >= '0' && prev <= '9')
			isCamel := !isSymbol && actualIdx < len(key) && key[actualIdx] >= 'A' && key[actualIdx] <= 'Z'
			if !isSymbol && !isCamel {
				before = false
			}
		}

		after := true
		endIdx := actualIdx + len(term)
		if endIdx < len(key) {
			next := key[endIdx]
			isSymbol := next == '_' || next == '-' || next == '.' || (next >= '0' && next <= '9')
			isCamel := next >= 'A' && next <= 'Z'
			if !isSymbol && !isCamel {
				after = false
			}
		}

		if before && after {
			return true
		}
		start = actualIdx + 1
	}
}
