package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	s, err := Parse([]byte(`
seed: 7
nodes:
  - name: server
    storage:
      capacity_bytes: 1048576
  - name: client
`))
	require.NoError(t, err)
	assert.EqualValues(t, 7, s.Seed)
	require.Len(t, s.Nodes, 2)
	assert.Equal(t, 0.01, s.Network.MinDelay)
	assert.Equal(t, 0.1, s.Network.MaxDelay)
	require.NotNil(t, s.Nodes[0].Storage)
	assert.EqualValues(t, 1<<20, s.Nodes[0].Storage.ThroughputBps)
}

func TestParseDuplicateNodeNameFails(t *testing.T) {
	_, err := Parse([]byte(`
nodes:
  - name: a
  - name: a
`))
	require.Error(t, err)
}

func TestParseInvalidDelayRangeFails(t *testing.T) {
	_, err := Parse([]byte(`
network:
  min_delay: 5
  max_delay: 1
`))
	require.Error(t, err)
}

func TestParseRateOutOfRangeFails(t *testing.T) {
	_, err := Parse([]byte(`
network:
  min_delay: 0
  max_delay: 1
  drop_rate: 1.5
`))
	require.Error(t, err)
}

func TestParseFullScenario(t *testing.T) {
	s, err := Parse([]byte(`
seed: 42
nodes:
  - name: n1
    clock_skew: 0.5
    processes:
      - name: p1
        kind: echo
network:
  min_delay: 0.01
  max_delay: 0.05
  drop_rate: 0.1
  partitions:
    - [n1]
    - [n2]
`))
	require.NoError(t, err)
	require.Len(t, s.Nodes[0].Processes, 1)
	assert.Equal(t, "echo", s.Nodes[0].Processes[0].Kind)
	assert.Equal(t, [][]string{{"n1"}, {"n2"}}, s.Network.Partitions)
}
