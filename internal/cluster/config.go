package cluster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configSlot is the YAML-friendly mirror of SlotInfo (Phase's int
// constants would be opaque in a hand-edited config file).
type configSlot struct {
	Owner string `yaml:"owner,omitempty"`
	Phase string `yaml:"phase,omitempty"`
	Peer  string `yaml:"peer,omitempty"`
}

// fileFormat is the per-node cluster config file spec.md §6
// "Persisted state layout" names.
type fileFormat struct {
	SelfID string            `yaml:"self_id"`
	Epoch  uint64            `yaml:"epoch"`
	Nodes  []NodeInfo        `yaml:"nodes"`
	Slots  map[int]configSlot `yaml:"slots"`
}

func phaseName(p Phase) string {
	switch p {
	case Migrating:
		return "migrating"
	case Importing:
		return "importing"
	default:
		return "stable"
	}
}

func parsePhase(s string) Phase {
	switch s {
	case "migrating":
		return Migrating
	case "importing":
		return Importing
	default:
		return Stable
	}
}

// SaveConfig writes the node's full cluster view — membership, slot
// table, epoch — to path as YAML, atomically via a temp-file rename.
func SaveConfig(path string, membership *Membership, table *Table) error {
	slots := table.Snapshot()
	out := fileFormat{
		SelfID: membership.SelfID(),
		Epoch:  membership.Epoch(),
		Nodes:  membership.All(),
		Slots:  make(map[int]configSlot),
	}
	for i, s := range slots {
		if s.Owner == "" {
			continue
		}
		out.Slots[i] = configSlot{Owner: s.Owner, Phase: phaseName(s.Phase), Peer: s.Peer}
	}

	body, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("cluster: encoding config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("cluster: writing config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cluster: installing config: %w", err)
	}
	return nil
}

// LoadConfig reads path and restores table in place, returning the
// node records to seed a Membership with. A missing file is not an
// error — a brand-new node starts with an empty table.
func LoadConfig(path string, table *Table) (selfID string, nodes []NodeInfo, epoch uint64, err error) {
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil, 0, nil
	}
	if err != nil {
		return "", nil, 0, fmt.Errorf("cluster: reading config: %w", err)
	}

	var in fileFormat
	if err := yaml.Unmarshal(body, &in); err != nil {
		return "", nil, 0, fmt.Errorf("cluster: decoding config: %w", err)
	}

	var slots [slotCount]SlotInfo
	for i, s := range in.Slots {
		if i < 0 || i >= slotCount {
			continue
		}
		slots[i] = SlotInfo{Owner: s.Owner, Phase: parsePhase(s.Phase), Peer: s.Peer}
	}
	table.Restore(slots)

	return in.SelfID, in.Nodes, in.Epoch, nil
}
