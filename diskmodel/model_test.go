package diskmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleRequestFinishesAtVolumeOverThroughput(t *testing.T) {
	m := New[string](10)
	m.Insert(0, 100, "a")

	finish, val, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", val)
	assert.Equal(t, 10.0, finish)
}

func TestConcurrentRequestsShareThroughput(t *testing.T) {
	m := New[string](10)
	m.Insert(0, 100, "a")
	m.Insert(0, 100, "b")

	// both requests share 10 bytes/sec equally from time 0, so each
	// should take twice as long as it would alone.
	finish, val, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", val)
	assert.Equal(t, 20.0, finish)

	finish, val, ok = m.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", val)
	assert.Equal(t, 20.0, finish)
}

func TestLateArrivalDelaysEarlierRequest(t *testing.T) {
	m := New[string](10)
	m.Insert(0, 100, "a") // alone would finish at t=10

	finishAlone, _, _ := m.Peek()
	assert.Equal(t, 10.0, finishAlone)

	m.Insert(5, 50, "b") // arrives while "a" is in flight, both now share

	_, _, ok := m.Peek()
	require.True(t, ok)
	// "a" now finishes later than it would have alone, since it started
	// sharing bandwidth with "b" from t=5 onward.
	finishA, _, ok := m.NextTime()
	require.True(t, ok)
	assert.Greater(t, finishA, finishAlone)
}

func TestEmptyModel(t *testing.T) {
	m := New[string](10)
	assert.True(t, m.IsEmpty())
	_, _, ok := m.Pop()
	assert.False(t, ok)
	_, ok = m.NextTime()
	assert.False(t, ok)
}
