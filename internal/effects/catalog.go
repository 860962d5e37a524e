package effects

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"villagekeep/internal/task"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var raw string
	if err := n.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0: %q", raw)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Ms() int64 { return time.Duration(d).Milliseconds() }

// KindSpec holds the tunable values for one task kind.
type KindSpec struct {
	Duration      Duration       `yaml:"duration"`
	Interval      Duration       `yaml:"interval"`
	EnergyCost    int            `yaml:"energy_cost"`
	EnergyPerTick int            `yaml:"energy_per_tick"`
	PerTick       int            `yaml:"per_tick"`
	XP            int            `yaml:"xp"`
	Cost          map[string]int `yaml:"cost"`
	Yield         map[string]int `yaml:"yield"`
}

// Catalog is the content table the handlers read.
type Catalog struct {
	XPPerLevel int                   `yaml:"xp_per_level"`
	Kinds      map[task.Tag]KindSpec `yaml:"kinds"`
}

// Spec returns the values for tag (zero spec when absent).
func (c *Catalog) Spec(tag task.Tag) KindSpec {
	if c == nil || c.Kinds == nil {
		return KindSpec{}
	}
	return c.Kinds[tag]
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("effects: embedded catalog invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file. Kinds missing from the file fall back to
// the embedded defaults.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseCatalog(b)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	def := DefaultCatalog()
	if c.XPPerLevel <= 0 {
		c.XPPerLevel = def.XPPerLevel
	}
	for tag, spec := range def.Kinds {
		if _, ok := c.Kinds[tag]; !ok {
			c.Kinds[tag] = spec
		}
	}
	return c, nil
}

// ParseCatalog decodes YAML catalog bytes and rejects unknown kinds.
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if c.Kinds == nil {
		c.Kinds = map[task.Tag]KindSpec{}
	}
	for tag := range c.Kinds {
		if !(task.Kind{Tag: tag}).Known() {
			return nil, fmt.Errorf("%w: %q", task.ErrUnknownKind, tag)
		}
	}
	if c.XPPerLevel < 0 {
		return nil, fmt.Errorf("xp_per_level must be >= 0")
	}
	return &c, nil
}
