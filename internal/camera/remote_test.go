package camera

import (
	"context"
	"sync"
	"testing"

	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/MeKo-Tech/qrlens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemote_PushDeliversAndDrops(t *testing.T) {
	var mu sync.Mutex
	var controls []Control
	r := NewRemote(func(c Control) {
		mu.Lock()
		controls = append(controls, c)
		mu.Unlock()
	})

	released := 0
	newFrame := func() *frame.Frame {
		return frame.New(testutil.BlankImage(4, 4), 0, 0, func() { released++ })
	}

	assert.False(t, r.Push(newFrame()), "no stream yet")
	assert.Equal(t, 1, released)

	ch, err := r.Start(context.Background(), Back)
	require.NoError(t, err)

	assert.True(t, r.Push(newFrame()))
	assert.False(t, r.Push(newFrame()), "channel holds one frame")
	assert.Equal(t, 2, released)

	f := receive(t, ch)
	assert.NotZero(t, f.Seq)
	f.Release()

	require.NoError(t, r.Stop())
	waitClosed(t, ch)
	assert.False(t, r.Push(newFrame()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, controls)
	assert.Equal(t, "back", controls[0].Facing)
}

func TestRemote_Controls(t *testing.T) {
	var got []Control
	r := NewRemote(func(c Control) { got = append(got, c) })

	_, err := r.Start(context.Background(), Front)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	require.NoError(t, r.SetZoom(0.5))
	assert.ErrorIs(t, r.SetZoom(5), ErrZoomOutOfRange)
	assert.ErrorIs(t, r.SetTorch(true), ErrTorchUnavailable)
	require.NoError(t, r.SetTorch(false))

	require.Len(t, got, 3)
	assert.Equal(t, "front", got[0].Facing)
	require.NotNil(t, got[1].Zoom)
	assert.InDelta(t, 0.5, *got[1].Zoom, 1e-9)
	require.NotNil(t, got[2].Torch)
	assert.False(t, *got[2].Torch)
}

func TestRemote_StoppedStreamReleasesPending(t *testing.T) {
	r := NewRemote(nil)
	ch, err := r.Start(context.Background(), Back)
	require.NoError(t, err)

	f := frame.New(nil, 0, 0, nil)
	require.True(t, r.Push(f))
	require.NoError(t, r.Stop())

	for range ch {
		t.Fatal("pending frame should have been drained by stop")
	}
	assert.True(t, f.Released())
}
