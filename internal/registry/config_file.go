package registry

import (
	"encoding/json"
	"os"
	"time"
)

// ConfigEntry is one operator-declared agent in the optional agents.json
// user-editable surface (§6.3). Distinct from the persisted registry
// envelope: this is a hand-maintained reconciliation source, not the
// registry's own snapshot.
type ConfigEntry struct {
	Registration
	Enabled bool `json:"enabled"`
}

// ConfigFile is the top-level shape of <data_dir>/state/agents.json.
type ConfigFile struct {
	Version     int           `json:"version"`
	Description string        `json:"description"`
	Agents      []ConfigEntry `json:"agents"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// LoadConfigFile reads and parses the optional agent config file. Returns
// (nil, nil) if the file does not exist.
func LoadConfigFile(path string) (*ConfigFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cf ConfigFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// ApplyConfigDiff reconciles the config file's declared agents against the
// in-memory registry: newly-enabled agents not yet registered are added,
// agents flipped to disabled are unregistered, and any other change to an
// already-registered, still-enabled agent updates its metadata.
func (r *Registry) ApplyConfigDiff(cf *ConfigFile) error {
	if cf == nil {
		return nil
	}
	for _, entry := range cf.Agents {
		_, err := r.Get(entry.AgentID)
		exists := err == nil

		switch {
		case entry.Enabled && !exists:
			if _, err := r.Register(entry.Registration); err != nil {
				return err
			}
		case !entry.Enabled && exists:
			if _, err := r.Unregister(entry.AgentID); err != nil {
				return err
			}
		case entry.Enabled && exists:
			if _, err := r.UpdateMetadata(entry.AgentID, entry.Metadata, true); err != nil {
				return err
			}
		}
	}
	return nil
}
