package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcorbani/volman/pkg/device"
	"github.com/lcorbani/volman/pkg/metadata"
)

func TestDevicesSortedByName(t *testing.T) {
	l := NewLayer()
	l.AddDevice(&device.Device{Name: "/dev/c"}, nil)
	l.AddDevice(&device.Device{Name: "/dev/a"}, nil)
	l.AddDevice(&device.Device{Name: "/dev/b"}, nil)

	devs, err := l.Devices(false)
	require.NoError(t, err)
	require.Len(t, devs, 3)
	assert.Equal(t, "/dev/a", devs[0].Name)
	assert.Equal(t, "/dev/b", devs[1].Name)
	assert.Equal(t, "/dev/c", devs[2].Name)
}

func TestFilterAppliesOnRefreshOnly(t *testing.T) {
	l := NewLayer()
	l.AddDevice(&device.Device{Name: "/dev/a"}, nil)
	l.AddDevice(&device.Device{Name: "/dev/b"}, nil)
	l.SetFilter(func(name string) bool { return name == "/dev/a" })

	devs, err := l.Devices(false)
	require.NoError(t, err)
	assert.Len(t, devs, 2, "filter must not apply before a refresh")
	assert.Equal(t, 0, l.FilterRefreshes())

	devs, err = l.Devices(true)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "/dev/a", devs[0].Name)
	assert.Equal(t, 1, l.FilterRefreshes())

	// The rebuilt chain stays in effect without further refreshes.
	devs, err = l.Devices(false)
	require.NoError(t, err)
	assert.Len(t, devs, 1)
}

func TestReadLabel(t *testing.T) {
	l := NewLayer()
	dev := &device.Device{Name: "/dev/a"}
	label := &device.Label{PVID: metadata.MakeID("pv1"), FormatName: "text"}
	l.AddDevice(dev, label)
	l.AddDevice(&device.Device{Name: "/dev/b"}, nil)

	got, err := l.ReadLabel(dev)
	require.NoError(t, err)
	assert.Equal(t, label, got)
	assert.Equal(t, 1, l.OpenHandles())

	_, err = l.ReadLabel(&device.Device{Name: "/dev/b"})
	assert.ErrorIs(t, err, device.ErrNoLabel)

	_, err = l.ReadLabel(&device.Device{Name: "/dev/missing"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, device.ErrNoLabel)

	l.CloseAll()
	assert.Equal(t, 0, l.OpenHandles())
}

func TestFailLabel(t *testing.T) {
	l := NewLayer()
	dev := &device.Device{Name: "/dev/a"}
	l.AddDevice(dev, &device.Label{PVID: metadata.MakeID("pv1")})

	boom := errors.New("I/O error")
	l.FailLabel("/dev/a", boom)
	_, err := l.ReadLabel(dev)
	assert.ErrorIs(t, err, boom)

	l.FailLabel("/dev/a", nil)
	_, err = l.ReadLabel(dev)
	assert.NoError(t, err)
}

func TestRemoveDevice(t *testing.T) {
	l := NewLayer()
	l.AddDevice(&device.Device{Name: "/dev/a"}, nil)
	l.RemoveDevice("/dev/a")

	devs, err := l.Devices(false)
	require.NoError(t, err)
	assert.Empty(t, devs)
}
