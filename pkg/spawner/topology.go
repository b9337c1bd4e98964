package spawner

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// Topology is an alternate, YAML-driven way to describe a device
// population, kept for hand-written test fixtures.
type Topology struct {
	Name     string                `yaml:"name"`
	Defaults TopologyDefaults      `yaml:"defaults"`
	Devices  map[string]DeviceSpec `yaml:"devices"`
	Arcs     []ArcDef              `yaml:"arcs"`
}

// TopologyDefaults holds values applied to every device that doesn't
// override them.
type TopologyDefaults struct {
	Start        float64 `yaml:"start"`
	RetainWindow float64 `yaml:"retain_window"`
}

// DeviceSpec defines one named device in a YAML topology. UID is
// required; a Start of 0 falls back to TopologyDefaults.Start via
// ResolveDeviceParams. RetainWindow is parsed but not carried into the
// resolved NodeSpec.
type DeviceSpec struct {
	UID          uint32  `yaml:"uid"`
	Start        float64 `yaml:"start,omitempty"`
	RetainWindow float64 `yaml:"retain_window,omitempty"`
}

// ArcDef defines a directed arc between two named devices.
type ArcDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LoadYAMLTopology parses and validates a YAML topology file.
func LoadYAMLTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.NewConfigError("spawner.LoadYAMLTopology", fmt.Sprintf("reading %s: %v", path, err))
	}
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, util.NewConfigError("spawner.LoadYAMLTopology", fmt.Sprintf("parsing %s: %v", path, err))
	}
	if err := validateTopology(&topo); err != nil {
		return nil, util.NewConfigError("spawner.LoadYAMLTopology", err.Error())
	}
	return &topo, nil
}

func validateTopology(topo *Topology) error {
	if topo.Name == "" {
		return fmt.Errorf("topology name is required")
	}
	if len(topo.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	seen := make(map[uint32]string, len(topo.Devices))
	for name, dev := range topo.Devices {
		if existing, ok := seen[dev.UID]; ok {
			return fmt.Errorf("devices %q and %q share uid %d", existing, name, dev.UID)
		}
		seen[dev.UID] = name
	}
	for i, arc := range topo.Arcs {
		if _, ok := topo.Devices[arc.From]; !ok {
			return fmt.Errorf("arc %d: unknown device %q", i, arc.From)
		}
		if _, ok := topo.Devices[arc.To]; !ok {
			return fmt.Errorf("arc %d: unknown device %q", i, arc.To)
		}
	}
	return nil
}

// ResolveDeviceParams applies TopologyDefaults.Start to every device
// that left Start unset: declare once at the top level, override per
// device, resolve down to a flat value before use. Retain-window
// values (default or per device) are not resolved; NodeSpec has no
// field for them.
func ResolveDeviceParams(topo *Topology) (nodes []NodeSpec, arcs []ArcSpec) {
	names := make([]string, 0, len(topo.Devices))
	for name := range topo.Devices {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dev := topo.Devices[name]
		start := dev.Start
		if start == 0 {
			start = topo.Defaults.Start
		}
		nodes = append(nodes, NodeSpec{UID: dev.UID, Start: start, Attrs: map[string]string{}})
	}

	for _, a := range topo.Arcs {
		arcs = append(arcs, ArcSpec{From: topo.Devices[a.From].UID, To: topo.Devices[a.To].UID})
	}
	return nodes, arcs
}
