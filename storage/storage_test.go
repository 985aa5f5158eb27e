package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-dslab/kernel"
	"github.com/joeycumines/go-dslab/trace"
)

func newTestStorage(t *testing.T, capacity uint64, throughput float64) (*kernel.Kernel, *Storage, kernel.ComponentID) {
	t.Helper()
	k := kernel.NewKernel(1)
	log := trace.NewLogger()
	owner := k.Registry.Register("n1")
	s := New(k, log, owner, "n1/storage", capacity, throughput)
	return k, s, owner
}

func runBlocking(k *kernel.Kernel, owner kernel.ComponentID, fn func(h *kernel.TaskHandle)) {
	k.SpawnTask(owner, fn)
	k.StepUntilNoEvents()
}

func TestCreateAppendReadAllRoundTrip(t *testing.T) {
	k, s, owner := newTestStorage(t, 1<<20, 1<<20)
	require.NoError(t, s.CreateFile("f1"))

	var got []byte
	var appendErr, readErr error
	runBlocking(k, owner, func(h *kernel.TaskHandle) {
		f, err := s.OpenFile("f1")
		require.NoError(t, err)
		_, appendErr = f.Append(h, []byte("string1\n"))
		_, appendErr = f.Append(h, []byte("string2\n"))
		got, readErr = f.ReadAll(h)
	})

	require.NoError(t, appendErr)
	require.NoError(t, readErr)
	assert.Equal(t, "string1\nstring2\n", string(got))
}

func TestCreateFileAlreadyExists(t *testing.T) {
	_, s, _ := newTestStorage(t, 1<<20, 1<<20)
	require.NoError(t, s.CreateFile("f1"))
	err := s.CreateFile("f1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestDeleteFileNotFound(t *testing.T) {
	_, s, _ := newTestStorage(t, 1<<20, 1<<20)
	err := s.DeleteFile("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAppendClampsToFreeSpace(t *testing.T) {
	k, s, owner := newTestStorage(t, 10, 10)
	require.NoError(t, s.CreateFile("f1"))

	var n uint64
	runBlocking(k, owner, func(h *kernel.TaskHandle) {
		f, _ := s.OpenFile("f1")
		n, _ = f.Append(h, []byte("0123456789ABCDEF")) // 16 bytes, only 10 free
	})

	assert.EqualValues(t, 10, n)
	assert.EqualValues(t, 0, s.FreeSpace())
}

func TestConcurrentRequestsShareDiskThroughput(t *testing.T) {
	k, s, owner := newTestStorage(t, 1<<20, 10) // 10 bytes/sec
	require.NoError(t, s.CreateFile("f1"))
	require.NoError(t, s.CreateFile("f2"))

	var t1, t2 float64
	runBlocking(k, owner, func(h *kernel.TaskHandle) {
		f1, _ := s.OpenFile("f1")
		h.Spawn(func(h2 *kernel.TaskHandle) {
			f1.Append(h2, make([]byte, 100))
			t1 = k.Now()
		})
		f2, _ := s.OpenFile("f2")
		h.Spawn(func(h2 *kernel.TaskHandle) {
			f2.Append(h2, make([]byte, 100))
			t2 = k.Now()
		})
	})

	assert.Equal(t, 20.0, t1)
	assert.Equal(t, 20.0, t2)
}

func TestCrashInterruptsPendingRequestsAndPreservesContent(t *testing.T) {
	k, s, owner := newTestStorage(t, 1<<20, 1) // slow disk so the write is still in flight
	require.NoError(t, s.CreateFile("f1"))

	var appendErr error
	var done bool
	k.SpawnTask(owner, func(h *kernel.TaskHandle) {
		f, _ := s.OpenFile("f1")
		_, appendErr = f.Append(h, []byte("hello"))
		done = true
	})
	k.DrainReady() // let the append submit its request without letting it complete

	s.Crash()
	k.StepUntilNoEvents()

	require.True(t, done)
	require.Error(t, appendErr)
	assert.True(t, errors.Is(appendErr, ErrUnavailable))
	assert.False(t, s.IsAvailable())
	assert.True(t, s.FileExists("f1"))
}

func TestRecoverDestroysFileContent(t *testing.T) {
	k, s, owner := newTestStorage(t, 1<<20, 1<<20)
	require.NoError(t, s.CreateFile("f1"))
	runBlocking(k, owner, func(h *kernel.TaskHandle) {
		f, _ := s.OpenFile("f1")
		f.Append(h, []byte("data"))
	})

	s.Crash()
	s.Recover()

	assert.True(t, s.IsAvailable())
	assert.False(t, s.FileExists("f1"))
	assert.EqualValues(t, 1<<20, s.FreeSpace())
}

func TestRecoverPanicsWhenAvailable(t *testing.T) {
	_, s, _ := newTestStorage(t, 1<<20, 1<<20)
	assert.Panics(t, func() { s.Recover() })
}

func TestCrashPanicsWhenAlreadyUnavailable(t *testing.T) {
	_, s, _ := newTestStorage(t, 1<<20, 1<<20)
	s.Crash()
	assert.Panics(t, func() { s.Crash() })
}

func TestReadPastEOFReturnsZero(t *testing.T) {
	k, s, owner := newTestStorage(t, 1<<20, 1<<20)
	require.NoError(t, s.CreateFile("f1"))

	var n uint64
	var err error
	runBlocking(k, owner, func(h *kernel.TaskHandle) {
		f, _ := s.OpenFile("f1")
		buf := make([]byte, 10)
		n, err = f.Read(h, 100, buf)
	})

	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
