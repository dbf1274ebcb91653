package script

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
)

// Extensions lists the document formats the store recognizes, in lookup order.
var Extensions = []string{".json5", ".json", ".yaml", ".yml"}

// Decode parses a script document. The format is picked from name's
// extension; anything that is not YAML is read as JSON5.
func Decode(name string, data []byte) (*Script, error) {
	var s Script
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		// Round-trip through JSON so YAML documents share the JSON field
		// names and the selector shorthand.
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", name, err)
		}
		if err := json5.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		if err := json5.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	if s.ID == "" {
		s.ID = IDFromName(name)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// IDFromName derives a script id from a file name.
func IDFromName(name string) string {
	base := filepath.Base(name)
	return config.NormalizeScriptID(strings.TrimSuffix(base, filepath.Ext(base)))
}
