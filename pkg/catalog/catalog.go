// Package catalog holds the read-only mentor agent catalog.
// Agents are loaded once at process start, either from a YAML file or
// from the built-in default roster.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Agent is an immutable agent identity supplied by the catalog.
type Agent struct {
	// ID is the opaque provider-side agent id, the unique key.
	ID string `yaml:"id" json:"id"`
	// Name is the display name.
	Name string `yaml:"name" json:"name"`
	// Avatar is a path or URL to the agent's avatar image.
	Avatar string `yaml:"avatar,omitempty" json:"avatar,omitempty"`
	// Description is a one-line persona summary.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog is an ordered, read-only collection of agents.
type Catalog struct {
	agents []Agent
	byID   map[string]Agent
}

type catalogFile struct {
	Agents []Agent `yaml:"agents"`
}

// defaultAgents is the built-in mentor roster. Each id can be overridden
// with an AGENT_ID_* environment variable so deployments can point a
// persona at their own provider-side agent.
var defaultAgents = []struct {
	env string
	Agent
}{
	{"AGENT_ID_BEAST", Agent{ID: "mr-beast", Name: "Mr-Beast", Avatar: "/Mr-Beast.png", Description: "Energetic and philanthropic content creator"}},
	{"AGENT_ID_MARC_ANDREESEN", Agent{ID: "marc-andreesen", Name: "Marc-Andreesen", Avatar: "/Marc-Andreesen.png", Description: "Visionary Technologist & Capitalist"}},
	{"AGENT_ID_MERYL_STREEP", Agent{ID: "meryl-streep", Name: "Meryl-Streep", Avatar: "/Meryl-Streep.png", Description: "Masterful Storyteller"}},
	{"AGENT_ID_MARK_ZUCKERBURG", Agent{ID: "mark-zuckerburg", Name: "Mark-Zuckerburg", Avatar: "/Mark-Zuckerburg.png", Description: "Visionary builder and engineer"}},
	{"AGENT_ID_BEYONCE", Agent{ID: "beyonce", Name: "Beyonce", Avatar: "/Beyonce.png", Description: "Iconic Visionary and Artist"}},
	{"AGENT_ID_RICHARD_BRANSON", Agent{ID: "richard-branson", Name: "Richard-Branson", Avatar: "/Richard-Branson.png", Description: "Adventurous Entrepreneur and Innovator"}},
	{"AGENT_ID_HOWARD_STERN", Agent{ID: "howard-stern", Name: "Howard-Stern", Avatar: "/Howard-Stern.png", Description: "Legendary Radio Personality and Interviewer"}},
	{"AGENT_ID_OPRAH_WINFREY", Agent{ID: "oprah-winfrey", Name: "Oprah-Winfrey", Avatar: "/Oprah-Winfrey.png", Description: "Influential Media Icon and Philanthropist"}},
	{"AGENT_ID_TAYLOR_SWIFT", Agent{ID: "taylor-swift", Name: "Taylor-Swift", Avatar: "/Taylor-Swift.png", Description: "Global Pop Icon and Masterful Songwriter"}},
	{"AGENT_ID_NAVAL_RAVIKANT", Agent{ID: "naval-ravikant", Name: "Naval-Ravikant", Avatar: "/Naval-Ravikant.png", Description: "Philosophical Entrepreneur and Tech Investor"}},
}

// Default returns the built-in mentor catalog, with ids overridden by
// AGENT_ID_* environment variables where set.
func Default() *Catalog {
	agents := make([]Agent, 0, len(defaultAgents))
	for _, d := range defaultAgents {
		a := d.Agent
		if v := os.Getenv(d.env); v != "" {
			a.ID = v
		}
		agents = append(agents, a)
	}
	c, _ := New(agents)
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is from trusted config input
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return New(f.Agents)
}

// New builds a catalog from an ordered agent list.
func New(agents []Agent) (*Catalog, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("catalog requires at least one agent")
	}

	byID := make(map[string]Agent, len(agents))
	for _, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent %q has empty id", a.Name)
		}
		if _, dup := byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		byID[a.ID] = a
	}

	return &Catalog{agents: agents, byID: byID}, nil
}

// List returns all agents in catalog order.
func (c *Catalog) List() []Agent {
	out := make([]Agent, len(c.agents))
	copy(out, c.agents)
	return out
}

// ByID looks up an agent by its id.
func (c *Catalog) ByID(id string) (Agent, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// ByName looks up an agent by its display name.
func (c *Catalog) ByName(name string) (Agent, bool) {
	for _, a := range c.agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// Len returns the number of agents in the catalog.
func (c *Catalog) Len() int {
	return len(c.agents)
}
