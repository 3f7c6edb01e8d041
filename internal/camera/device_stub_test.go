//go:build !camera_gocv

package camera

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceStub(t *testing.T) {
	assert.False(t, Available())

	d := NewDevice(DeviceConfig{Device: "3", Permission: Granted})
	_, err := d.Start(context.Background(), Back)

	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "3", be.Device)
	assert.ErrorIs(t, err, ErrNoDeviceBackend)

	d = NewDevice(DeviceConfig{Permission: Denied})
	_, err = d.Start(context.Background(), Back)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.NoError(t, d.Stop())
	assert.NoError(t, d.SetZoom(0.5))
	assert.ErrorIs(t, d.SetTorch(true), ErrNotStarted)
}
