// Package config loads a simulation scenario description from YAML: the
// seed, the set of nodes (with optional storage), and the network's
// fault parameters. A harness builds a system.System from a Scenario
// instead of hand-wiring every field in Go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes everything needed to construct a ready-to-run
// simulation: the RNG seed, the nodes to create, and the network's fault
// model.
type Scenario struct {
	Seed    uint64        `yaml:"seed"`
	Nodes   []NodeConfig  `yaml:"nodes"`
	Network NetworkConfig `yaml:"network"`
}

// NodeConfig describes one node and the processes running on it.
type NodeConfig struct {
	Name      string          `yaml:"name"`
	ClockSkew float64         `yaml:"clock_skew"`
	Storage   *StorageConfig  `yaml:"storage"`
	Processes []ProcessConfig `yaml:"processes"`
}

// StorageConfig describes a node's optional disk.
type StorageConfig struct {
	CapacityBytes uint64  `yaml:"capacity_bytes"`
	ThroughputBps float64 `yaml:"throughput_bps"`
}

// ProcessConfig names a process to install on a node. Kind selects which
// registered process constructor builds it; harnesses look Kind up in
// their own registry since Process implementations aren't serializable.
type ProcessConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// NetworkConfig describes the network's fault parameters. Partitions
// (when present, exactly two node-name groups) and DisabledLinks (node
// name pairs) both refer to nodes, not processes.
type NetworkConfig struct {
	MinDelay      float64     `yaml:"min_delay"`
	MaxDelay      float64     `yaml:"max_delay"`
	DropRate      float64     `yaml:"drop_rate"`
	DuplRate      float64     `yaml:"dupl_rate"`
	CorruptRate   float64     `yaml:"corrupt_rate"`
	Partitions    [][]string  `yaml:"partitions,omitempty"`
	DisabledLinks [][2]string `yaml:"disabled_links,omitempty"`
}

// Load reads and validates a Scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a Scenario from YAML bytes, applies defaults, and
// validates the result.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Network.MaxDelay == 0 && s.Network.MinDelay == 0 {
		s.Network.MinDelay, s.Network.MaxDelay = 0.01, 0.1
	}
	for i := range s.Nodes {
		if s.Nodes[i].Storage != nil && s.Nodes[i].Storage.ThroughputBps == 0 {
			s.Nodes[i].Storage.ThroughputBps = 1 << 20 // 1 MiB/s
		}
	}
}

// Validate checks the scenario is internally consistent: node names are
// unique, the network delay range is sane, and all rates lie in [0,1].
func (s *Scenario) Validate() error {
	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node with empty name")
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = true
	}
	if s.Network.MinDelay < 0 || s.Network.MaxDelay < s.Network.MinDelay {
		return fmt.Errorf("network: invalid delay range [%v, %v]", s.Network.MinDelay, s.Network.MaxDelay)
	}
	for _, r := range []struct {
		name string
		val  float64
	}{
		{"drop_rate", s.Network.DropRate},
		{"dupl_rate", s.Network.DuplRate},
		{"corrupt_rate", s.Network.CorruptRate},
	} {
		if r.val < 0 || r.val > 1 {
			return fmt.Errorf("network: %s %v out of range [0,1]", r.name, r.val)
		}
	}
	return nil
}
