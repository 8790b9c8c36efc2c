// Package homepage imports links from gethomepage.dev configuration files
// (bookmarks.yaml and services.yaml) as user bookmarks.
package homepage

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// MaxDocumentSize caps an uploaded document.
const MaxDocumentSize = 1 << 20

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Parse decodes a homepage document of the given kind into entries.
func Parse(kind Kind, data []byte) ([]Entry, error) {
	// Template variables ({{HOMEPAGE_VAR_...}}) are not valid YAML scalars.
	data = stripTemplateVariables(data)

	switch kind {
	case KindBookmarks:
		var cfg BookmarksConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse bookmarks yaml: %w", err)
		}
		return MapBookmarks(cfg), nil
	case KindServices:
		var cfg ServicesConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse services yaml: %w", err)
		}
		return MapServices(cfg), nil
	default:
		return nil, fmt.Errorf("unknown homepage document kind %q", kind)
	}
}

// LoadFile reads and parses a homepage file from disk.
func LoadFile(kind Kind, path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", kind, err)
	}
	return Parse(kind, data)
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
