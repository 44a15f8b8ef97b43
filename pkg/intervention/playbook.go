package intervention

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

type playbookFile struct {
	States map[string]PlaybookEntry `yaml:"states"`
}

// LoadPlaybook reads and validates the playbook catalog from a YAML file.
func LoadPlaybook(path string) (Playbook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook %s: %w", path, err)
	}

	var file playbookFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse playbook %s: %w", path, err)
	}

	pb := make(Playbook, len(file.States))
	for name, entry := range file.States {
		pb[lifecycle.State(name)] = entry
	}
	if err := pb.Validate(); err != nil {
		return nil, fmt.Errorf("playbook %s: %w", path, err)
	}
	return pb, nil
}

// Validate checks state keys, required fields and intervention id
// uniqueness across the whole catalog.
func (p Playbook) Validate() error {
	v := validator.New()
	seen := make(map[string]lifecycle.State)

	for state, entry := range p {
		if !state.Valid() {
			return fmt.Errorf("unknown lifecycle state %q", state)
		}
		if err := v.Struct(entry); err != nil {
			return fmt.Errorf("state %s: %w", state, err)
		}
		for _, iv := range entry.Interventions {
			if other, dup := seen[iv.ID]; dup {
				return fmt.Errorf("intervention id %q appears under both %s and %s", iv.ID, other, state)
			}
			seen[iv.ID] = state
		}
	}
	return nil
}

// Find returns the intervention with the given id and its owning state.
func (p Playbook) Find(interventionID string) (*Intervention, lifecycle.State) {
	for state, entry := range p {
		for i := range entry.Interventions {
			if entry.Interventions[i].ID == interventionID {
				return &entry.Interventions[i], state
			}
		}
	}
	return nil, ""
}
