package ext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	duplicated int
	synced     int
}

func (h *recordingHook) Duplicate(parent *Frame) *Frame {
	h.duplicated++
	return &Frame{Data: h.duplicated}
}

func (h *recordingHook) Sync(*Frame) { h.synced++ }

func TestNoHookIsNoop(t *testing.T) {
	Register(nil)
	require.False(t, Active())
	require.Nil(t, PushFrame(nil))

	ExtendSync(nil) // must not panic with no hook installed
}

func TestRegisteredHookDuplicatesAndTracksParent(t *testing.T) {
	h := &recordingHook{}
	Register(h)
	defer Register(nil)

	require.True(t, Active())

	root := PushFrame(nil)
	require.NotNil(t, root)
	require.Equal(t, 1, root.Data)

	child := PushFrame(root)
	require.Equal(t, 2, child.Data)
	require.Equal(t, root, PopFrame(child))
	require.Nil(t, PopFrame(nil))
}

func TestExtendSyncInvokesHook(t *testing.T) {
	h := &recordingHook{}
	Register(h)
	defer Register(nil)

	f := PushFrame(nil)
	ExtendSync(f)
	require.Equal(t, 1, h.synced)
}
