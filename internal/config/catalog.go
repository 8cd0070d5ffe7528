package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds product copy and prompt words. Everything has a built-in
// default; a YAML file may override individual entries.
type Catalog struct {
	Words []string `yaml:"words"`

	// CaptureErrors maps recognizer error kinds to user-facing text.
	CaptureErrors map[string]string `yaml:"capture_errors"`
	// CaptureErrorTemplate formats unmapped kinds; %s receives the kind.
	CaptureErrorTemplate string `yaml:"capture_error_template"`

	AnalysisFallback string `yaml:"analysis_fallback"`
	ScriptApology    string `yaml:"script_apology"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Words: []string{
			"music", "travel", "technology", "food", "hobby",
			"friendship", "future", "dream", "challenge", "success",
			"nature", "book", "movie", "family", "holiday",
			"memory", "adventure", "learning", "change", "goal",
		},
		CaptureErrors: map[string]string{
			"not-allowed": "Microphone access denied. Please allow microphone access and try again.",
			"no-speech":   "No speech detected. Please speak clearly and try again.",
			"network":     "Network error. Please check your internet connection.",
		},
		CaptureErrorTemplate: "Speech recognition error: %s",
		AnalysisFallback:     "Analysis failed. Please try again.",
		ScriptApology:        "Sorry, we couldn't generate a script right now. Please try again later.",
	}
}

// LoadCatalog reads path and merges it over DefaultCatalog. An empty path
// returns the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	cat.merge(&override)
	return cat, nil
}

func (c *Catalog) merge(o *Catalog) {
	if len(o.Words) > 0 {
		c.Words = o.Words
	}
	for kind, msg := range o.CaptureErrors {
		c.CaptureErrors[kind] = msg
	}
	if o.CaptureErrorTemplate != "" {
		c.CaptureErrorTemplate = o.CaptureErrorTemplate
	}
	if o.AnalysisFallback != "" {
		c.AnalysisFallback = o.AnalysisFallback
	}
	if o.ScriptApology != "" {
		c.ScriptApology = o.ScriptApology
	}
}
