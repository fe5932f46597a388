package fakemock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Config struct {
	Listen       string
	SpecPath     string
	FixturesPath string
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.SpecPath == "" {
		return errors.New("spec path is required")
	}
	if c.FixturesPath == "" {
		return errors.New("fixtures path is required")
	}
	return nil
}

// Fixtures maps a Stripe resource name (e.g. "customer") to its sample object.
type Fixtures map[string]map[string]any

type fixturesFile struct {
	Resources Fixtures `json:"resources"`
}

// LoadFixtures reads a stripe-mock fixtures document.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var doc fixturesFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if len(doc.Resources) == 0 {
		return nil, errors.New("fixtures define no resources")
	}
	return doc.Resources, nil
}

// checkSpec makes sure the OpenAPI document exists and looks like one. The
// fake does not route by it.
func checkSpec(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read spec: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode spec: %w", err)
	}
	if _, ok := doc["openapi"]; !ok {
		return errors.New("spec is missing the openapi version")
	}
	return nil
}
