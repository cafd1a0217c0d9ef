package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	if c.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", c.Len())
	}

	a, ok := c.ByID("mr-beast")
	if !ok {
		t.Fatal("ByID(mr-beast) not found")
	}
	if a.Name != "Mr-Beast" {
		t.Errorf("Name = %q, want Mr-Beast", a.Name)
	}

	if b, ok := c.ByName("Naval-Ravikant"); !ok || b.ID != "naval-ravikant" {
		t.Errorf("ByName(Naval-Ravikant) = %+v, %v", b, ok)
	}
	if _, ok := c.ByName("Socrates"); ok {
		t.Error("ByName should miss on unknown names")
	}
}

func TestDefaultCatalogEnvOverride(t *testing.T) {
	t.Setenv("AGENT_ID_BEAST", "agent_01xyz")

	c := Default()
	if _, ok := c.ByID("agent_01xyz"); !ok {
		t.Error("overridden id not found in catalog")
	}
	if _, ok := c.ByID("mr-beast"); ok {
		t.Error("default id should be replaced by env override")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	data := []byte(`agents:
  - id: mentor-a
    name: Mentor-A
    description: first
  - id: mentor-b
    name: Mentor-B
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	if list[0].ID != "mentor-a" || list[1].ID != "mentor-b" {
		t.Errorf("catalog order not preserved: %v", list)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Agent{{ID: "x", Name: "one"}, {ID: "x", Name: "two"}})
	if err == nil {
		t.Error("New() should reject duplicate ids")
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New() should reject empty catalog")
	}
	if _, err := New([]Agent{{Name: "no-id"}}); err == nil {
		t.Error("New() should reject empty agent id")
	}
}
