package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SyncFileName is the per-drop-folder sync rules file.
const SyncFileName = ".sync.yml"

// Sequencing policies for collision-safe target paths.
const (
	SeqNone = "none"
	SeqRun  = "run"
	SeqHash = "hash"
)

// Metadata source kinds.
const (
	SourceCatalog     = "catalog"
	SourceSpreadsheet = "spreadsheet"
	SourceDelimited   = "delimited"
)

// Presence-check match modes.
const (
	ModeExact    = "exact"
	ModeContains = "contains"
)

// Replacement rule scopes.
const (
	TargetVariable = "variable"
	TargetField    = "field"
)

// SourceSpec describes one metadata source.
type SourceSpec struct {
	Name      string       `yaml:"name"`
	Type      string       `yaml:"type"`
	Schema    string       `yaml:"schema"`
	Table     string       `yaml:"table"`
	Filters   []FilterSpec `yaml:"filters"`
	Path      string       `yaml:"path"`
	Sheet     string       `yaml:"sheet"`
	Delimiter string       `yaml:"delimiter"`
}

// FilterSpec narrows a catalog-backed source.
type FilterSpec struct {
	Field string `yaml:"field"`
	Value string `yaml:"value"`
	Op    string `yaml:"op"`
}

// MatchRule links a rendered key template to a field in a source.
type MatchRule struct {
	Source string `yaml:"source"`
	Field  string `yaml:"field"`
	Key    string `yaml:"key"`
}

// DeriveRule extracts new variables from a matched metadata field value.
type DeriveRule struct {
	Source  string `yaml:"source"`
	Field   string `yaml:"field"`
	Pattern string `yaml:"pattern"`

	compiled *regexp.Regexp
}

// Regexp returns the compiled extraction pattern. Validate must have run.
func (d *DeriveRule) Regexp() *regexp.Regexp { return d.compiled }

// ReplaceRule rewrites one named variable or one named output field.
type ReplaceRule struct {
	Target  string `yaml:"target"`
	Name    string `yaml:"name"`
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// OutputField is one catalog write-back field with its template.
type OutputField struct {
	Field    string `yaml:"field"`
	Template string `yaml:"template"`
}

// PresenceSpec configures the catalog presence check.
type PresenceSpec struct {
	Field string `yaml:"field"`
	Mode  string `yaml:"mode"`
}

// WriteTarget names the catalog schema/table receiving rendered records.
type WriteTarget struct {
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`
}

// SyncSpec is the full per-drop synchronization specification.
type SyncSpec struct {
	RepositoryFolder string `yaml:"repository_folder"`
	ProcessedFolder  string `yaml:"processed_folder"`

	Glob             string `yaml:"glob"`
	Match            string `yaml:"match"`
	Template         string `yaml:"template"`
	Sequencing       string `yaml:"sequencing"`
	DateFormat       string `yaml:"date_format"`
	MetadataRequired bool   `yaml:"metadata_required"`

	Sources      []SourceSpec  `yaml:"sources"`
	MatchRules   []MatchRule   `yaml:"match_rules"`
	DeriveRules  []DeriveRule  `yaml:"derive_rules"`
	ReplaceRules []ReplaceRule `yaml:"replace_rules"`

	OutputFields []OutputField `yaml:"output_fields"`
	Presence     PresenceSpec  `yaml:"presence"`
	WriteTo      WriteTarget   `yaml:"write_to"`

	matchRe *regexp.Regexp
}

// MatchRegexp returns the compiled discovery expression. Validate must have run.
func (s *SyncSpec) MatchRegexp() *regexp.Regexp { return s.matchRe }

// LoadSyncSpec reads the drop folder's .sync.yml. A missing file yields an
// empty spec so flags and defaults can still assemble a usable one.
func LoadSyncSpec(dropDir string) (*SyncSpec, error) {
	spec := &SyncSpec{}
	path := filepath.Join(dropDir, SyncFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return spec, nil
		}
		return nil, fmt.Errorf("read sync file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("parse sync file %s: %w", path, err)
	}
	return spec, nil
}

// Validate compiles expressions and checks the spec for the fatal
// misconfigurations that must abort before the pipeline starts.
func (s *SyncSpec) Validate() error {
	if strings.TrimSpace(s.Match) == "" {
		return errors.New("match expression must be set")
	}
	re, err := regexp.Compile(s.Match)
	if err != nil {
		return fmt.Errorf("match expression: %w", err)
	}
	s.matchRe = re

	if strings.TrimSpace(s.Template) == "" {
		return errors.New("target template must be set")
	}
	if s.Glob == "" {
		s.Glob = "*"
	}
	if s.DateFormat == "" {
		s.DateFormat = DefaultDateFormat
	}

	switch s.Sequencing {
	case "":
		s.Sequencing = SeqNone
	case SeqNone:
	case SeqRun:
		if !strings.Contains(s.Template, "<run>") {
			return errors.New("run sequencing requires a <run> placeholder in the target template")
		}
	case SeqHash:
		if !strings.Contains(s.Template, "<hash>") {
			return errors.New("hash sequencing requires a <hash> placeholder in the target template")
		}
	default:
		return fmt.Errorf("sequencing must be none, run, or hash, got %q", s.Sequencing)
	}

	names := make(map[string]struct{}, len(s.Sources))
	for i := range s.Sources {
		src := &s.Sources[i]
		if strings.TrimSpace(src.Name) == "" {
			src.Name = src.Type
		}
		if _, dup := names[src.Name]; dup {
			return fmt.Errorf("duplicate metadata source name %q", src.Name)
		}
		names[src.Name] = struct{}{}
		switch src.Type {
		case SourceCatalog:
			if src.Schema == "" || src.Table == "" {
				return fmt.Errorf("source %q: catalog sources need schema and table", src.Name)
			}
			for _, f := range src.Filters {
				switch f.Op {
				case "", "eq", "equal", "equals", "contains":
				default:
					return fmt.Errorf("source %q: unknown filter op %q", src.Name, f.Op)
				}
			}
		case SourceSpreadsheet, SourceDelimited:
			if src.Path == "" {
				return fmt.Errorf("source %q: %s sources need a path", src.Name, src.Type)
			}
		default:
			return fmt.Errorf("source %q: unknown type %q", src.Name, src.Type)
		}
	}

	for i, rule := range s.MatchRules {
		if _, ok := names[rule.Source]; !ok {
			return fmt.Errorf("match rule %d references unknown source %q", i+1, rule.Source)
		}
		if rule.Field == "" || rule.Key == "" {
			return fmt.Errorf("match rule %d needs field and key", i+1)
		}
	}
	for i := range s.DeriveRules {
		rule := &s.DeriveRules[i]
		if _, ok := names[rule.Source]; !ok {
			return fmt.Errorf("derive rule %d references unknown source %q", i+1, rule.Source)
		}
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("derive rule %d pattern: %w", i+1, err)
		}
		rule.compiled = compiled
	}
	for i, rule := range s.ReplaceRules {
		switch rule.Target {
		case TargetVariable, TargetField:
		default:
			return fmt.Errorf("replace rule %d target must be variable or field, got %q", i+1, rule.Target)
		}
		if rule.Name == "" {
			return fmt.Errorf("replace rule %d needs a name", i+1)
		}
	}

	if len(s.OutputFields) > 0 {
		seen := make(map[string]struct{}, len(s.OutputFields))
		for i, field := range s.OutputFields {
			if field.Field == "" {
				return fmt.Errorf("output field %d needs a field name", i+1)
			}
			if _, dup := seen[field.Field]; dup {
				return fmt.Errorf("duplicate output field %q", field.Field)
			}
			seen[field.Field] = struct{}{}
		}
		if s.WriteTo.Table == "" {
			return errors.New("write_to.table must be set when output fields are configured")
		}
	}

	if err := s.validateTemplateVars(); err != nil {
		return err
	}

	switch s.Presence.Mode {
	case "":
		s.Presence.Mode = ModeExact
	case ModeExact, ModeContains:
	default:
		return fmt.Errorf("presence.mode must be exact or contains, got %q", s.Presence.Mode)
	}
	if len(s.OutputFields) > 0 && s.Presence.Field == "" {
		return errors.New("presence.field must be set when output fields are configured")
	}

	return nil
}

var placeholderPattern = regexp.MustCompile(`<([^<>]+)>`)

// validateTemplateVars checks that every plain placeholder in the target
// template can actually be produced: by a capture group, a derive rule group,
// the sequencing policy, or a built-in. Metadata placeholders (dotted names)
// are resolved at finalization and may legitimately render empty.
func (s *SyncSpec) validateTemplateVars() error {
	known := map[string]struct{}{"now": {}, "mtime": {}}
	if s.Sequencing == SeqRun {
		known["run"] = struct{}{}
	}
	if s.Sequencing == SeqHash {
		known["hash"] = struct{}{}
	}
	for _, name := range s.matchRe.SubexpNames() {
		if name != "" {
			known[name] = struct{}{}
		}
	}
	for _, rule := range s.DeriveRules {
		for _, name := range rule.compiled.SubexpNames() {
			if name != "" {
				known[name] = struct{}{}
			}
		}
	}

	for _, match := range placeholderPattern.FindAllStringSubmatch(s.Template, -1) {
		name := match[1]
		if strings.Contains(name, ".") {
			continue
		}
		if _, ok := known[name]; !ok {
			return fmt.Errorf("target template references <%s>, which no capture group, derive rule, or built-in produces", name)
		}
	}
	return nil
}

// ResolvePath resolves a possibly relative metadata source path against the
// drop folder, so a drop can carry its own metadata files.
func ResolvePath(dropDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dropDir, path)
}
