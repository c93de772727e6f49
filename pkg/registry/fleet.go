package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

// Fleet is the on-disk seed format for the registry.
type Fleet struct {
	Vessels []contracts.Vessel `yaml:"vessels"`
}

// LoadFleet reads a YAML fleet file.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file %s: %w", path, err)
	}
	return ParseFleet(data)
}

// ParseFleet decodes a fleet document. Unknown keys are rejected.
func ParseFleet(data []byte) (*Fleet, error) {
	var fleet Fleet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fleet); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse fleet: %w", err)
	}
	seen := make(map[string]bool, len(fleet.Vessels))
	for i, v := range fleet.Vessels {
		if v.ID == "" {
			return nil, fmt.Errorf("fleet entry %d: missing id", i)
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("fleet entry %d: duplicate id %s", i, v.ID)
		}
		seen[v.ID] = true
	}
	return &fleet, nil
}

// Seed registers every vessel of the fleet on behalf of admin.
// It stops at the first rejection and reports how many vessels were registered.
func (r *Registry) Seed(ctx context.Context, admin contracts.Identity, fleet *Fleet) (int, error) {
	for i, v := range fleet.Vessels {
		if _, err := r.Register(ctx, admin, v.ID, v.Owner, v.FlagState); err != nil {
			return i, fmt.Errorf("seed %s: %w", v.ID, err)
		}
	}
	r.logger.InfoContext(ctx, "fleet seeded", "vessels", len(fleet.Vessels))
	return len(fleet.Vessels), nil
}
