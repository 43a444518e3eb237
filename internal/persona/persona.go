// Package persona defines agent personas: declarative YAML documents that
// bind an agent identity to its capabilities, its skill pipeline, and its
// escalation policy. Personas let operators add agents without code changes.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfidenceThreshold applies when a persona does not set one.
// Decompositions below the threshold escalate instead of dispatching.
const DefaultConfidenceThreshold = 0.6

// Capability describes one thing the persona's agent can do.
type Capability struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	SkillIDs    []string `yaml:"skill_ids"`
}

// Definition is a fully parsed persona.
type Definition struct {
	AgentID             string       `yaml:"agent_id"`
	Name                string       `yaml:"name"`
	AgentType           string       `yaml:"agent_type"`
	Capabilities        []Capability `yaml:"capabilities"`
	Pipeline            []string     `yaml:"pipeline"`
	EscalationTarget    string       `yaml:"escalation_target"`
	ModelTier           string       `yaml:"model_tier"`
	ConfidenceThreshold float64      `yaml:"confidence_threshold"`
}

// applyDefaults fills the optional fields.
func (d *Definition) applyDefaults() {
	if d.Name == "" {
		d.Name = d.AgentID
	}
	if d.AgentType == "" {
		d.AgentType = "ai"
	}
	if d.ConfidenceThreshold == 0 {
		d.ConfidenceThreshold = DefaultConfidenceThreshold
	}
}

// Validate reports whether the persona is usable.
func (d *Definition) Validate() error {
	var errs []string
	if d.AgentID == "" {
		errs = append(errs, "agent_id is required")
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("confidence_threshold %v out of range [0,1]", d.ConfidenceThreshold))
	}
	for i, cap := range d.Capabilities {
		if cap.Name == "" {
			errs = append(errs, fmt.Sprintf("capability %d has no name", i))
		}
	}
	if len(errs) > 0 {
		return errors.New("invalid persona: " + strings.Join(errs, "; "))
	}
	return nil
}

// LoadFile parses one persona YAML file, applying defaults and validating.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing persona %s: %w", filepath.Base(path), err)
	}

	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &def, nil
}

// LoadDir loads every .yaml/.yml persona in the directory, sorted by file
// name. Duplicate agent IDs across files are an error.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading persona directory: %w", err)
	}

	seen := make(map[string]string)
	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		def, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[def.AgentID]; dup {
			return nil, fmt.Errorf("duplicate agent_id %q in %s (already defined in %s)",
				def.AgentID, entry.Name(), prev)
		}
		seen[def.AgentID] = entry.Name()
		defs = append(defs, def)
	}
	return defs, nil
}
