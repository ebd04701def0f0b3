package provider

import "strings"

// Spec is the static metadata used to select which LLM backend serves a
// given model name or credential. Immutable after registration.
type Spec struct {
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	EnvKey      string   `yaml:"envKey"`
	ModelPrefix string   `yaml:"modelPrefix"`
	Gateway     bool     `yaml:"gateway"`
	KeyPrefix   string   `yaml:"keyPrefix"`
	BaseURL     string   `yaml:"baseUrl"`
}

// MatchesModel reports whether the model name contains any of the spec's
// keywords, case-insensitively.
func (s *Spec) MatchesModel(model string) bool {
	if len(s.Keywords) == 0 {
		return false
	}
	lower := strings.ToLower(model)
	for _, kw := range s.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MatchesAPIKey reports whether the key carries this spec's credential prefix.
func (s *Spec) MatchesAPIKey(apiKey string) bool {
	if s.KeyPrefix == "" {
		return false
	}
	return strings.HasPrefix(apiKey, s.KeyPrefix)
}
