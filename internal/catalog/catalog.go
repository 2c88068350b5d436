package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog load failures. Both are fatal at startup: a server must not run
// against a malformed objective set.
var (
	ErrInvalidDefinition  = errors.New("invalid objective definition")
	ErrDuplicateObjective = errors.New("duplicate objective identifier")
)

// Objective is a single trackable goal definition. Immutable once loaded.
type Objective struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Label    string `yaml:"label"`
}

// Catalog holds the loaded objective definitions. Read-only after Load,
// safe for concurrent reads from any number of game instances.
type Catalog struct {
	objectives []Objective
	byID       map[string]Objective
	byCategory map[string][]Objective
}

type definitionFile struct {
	Objectives []Objective `yaml:"objectives"`
}

// Load parses objective definitions from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read objective definitions: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML definition data.
func Parse(data []byte) (*Catalog, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	if len(file.Objectives) == 0 {
		return nil, fmt.Errorf("%w: no objectives declared", ErrInvalidDefinition)
	}

	c := &Catalog{
		objectives: make([]Objective, 0, len(file.Objectives)),
		byID:       make(map[string]Objective, len(file.Objectives)),
		byCategory: make(map[string][]Objective),
	}

	for i, obj := range file.Objectives {
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: objective %d has no id", ErrInvalidDefinition, i)
		}
		if obj.Category == "" {
			return nil, fmt.Errorf("%w: objective %q has no category", ErrInvalidDefinition, obj.ID)
		}
		if obj.Label == "" {
			return nil, fmt.Errorf("%w: objective %q has no label", ErrInvalidDefinition, obj.ID)
		}
		if _, exists := c.byID[obj.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateObjective, obj.ID)
		}

		c.objectives = append(c.objectives, obj)
		c.byID[obj.ID] = obj
		c.byCategory[obj.Category] = append(c.byCategory[obj.Category], obj)
	}

	return c, nil
}

// Objectives returns all objectives in declaration order.
func (c *Catalog) Objectives() []Objective {
	out := make([]Objective, len(c.objectives))
	copy(out, c.objectives)
	return out
}

// Size returns the number of distinct objectives.
func (c *Catalog) Size() int {
	return len(c.objectives)
}

// Get returns the objective with the given id.
func (c *Catalog) Get(id string) (Objective, bool) {
	obj, ok := c.byID[id]
	return obj, ok
}

// ByCategory returns all objectives matching the given category tag.
func (c *Catalog) ByCategory(category string) []Objective {
	src := c.byCategory[category]
	out := make([]Objective, len(src))
	copy(out, src)
	return out
}
