package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"

	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/daemon"
	daemonMemory "github.com/lcorbani/volman/pkg/daemon/memory"
	"github.com/lcorbani/volman/pkg/device"
	deviceMemory "github.com/lcorbani/volman/pkg/device/memory"
	"github.com/lcorbani/volman/pkg/filtercache"
	"github.com/lcorbani/volman/pkg/format"
	formatText "github.com/lcorbani/volman/pkg/format/text"
	formatXDR "github.com/lcorbani/volman/pkg/format/xdr"
	"github.com/lcorbani/volman/pkg/metadata"
)

// CreateDeviceLayer creates a device layer based on configuration.
//
// This factory function uses the Type field to determine which implementation
// to create, then decodes the type-specific configuration from the
// corresponding map and passes it to the implementation's constructor.
//
// Supported types:
//   - "memory": Uses pkg/device/memory (in-memory devices, for testing and
//     embedding)
//
// Returns:
//   - device.Layer: Initialized device layer
//   - error: Configuration or initialization error
func CreateDeviceLayer(cfg *DevicesConfig) (device.Layer, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryDeviceLayer(cfg.Memory)
	default:
		return nil, fmt.Errorf("unknown device layer type: %q (supported: memory)", cfg.Type)
	}
}

// createMemoryDeviceLayer creates an in-memory device layer populated with
// the configured devices and labels.
func createMemoryDeviceLayer(options map[string]any) (device.Layer, error) {
	var layerCfg MemoryDevicesConfig
	if err := mapstructure.Decode(options, &layerCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory device layer config: %w", err)
	}

	layer := deviceMemory.NewLayer()
	seen := make(map[string]bool, len(layerCfg.Devices))

	for i, devCfg := range layerCfg.Devices {
		if devCfg.Name == "" {
			return nil, fmt.Errorf("devices[%d]: name is required", i)
		}
		if seen[devCfg.Name] {
			return nil, fmt.Errorf("devices[%d]: duplicate device name %q", i, devCfg.Name)
		}
		seen[devCfg.Name] = true

		dev := &device.Device{Name: devCfg.Name, Size: devCfg.Size}

		var label *device.Label
		if devCfg.PVID != "" {
			formatName := devCfg.Format
			if formatName == "" {
				formatName = formatText.FormatName
			}
			label = &device.Label{
				PVID:       metadata.MakeID(devCfg.PVID),
				FormatName: formatName,
				DeviceSize: devCfg.Size,
			}
			if devCfg.VGName != "" {
				vgid := metadata.MakeID(devCfg.VGID)
				if devCfg.VGID == "" {
					vgid = metadata.MakeID(devCfg.VGName)
				}
				label.VG = &metadata.VGSummary{
					VGName: devCfg.VGName,
					VGID:   vgid,
				}
			}
		}

		layer.AddDevice(dev, label)
	}

	logger.Info("Memory device layer initialized: %d device(s)", len(layerCfg.Devices))
	return layer, nil
}

// CreateFormats creates the configured metadata format backends.
//
// Supported names:
//   - "text": Uses pkg/format/text (YAML metadata blobs)
//   - "xdr": Uses pkg/format/xdr (XDR metadata blobs)
func CreateFormats(names []string) ([]format.Format, error) {
	formats := make([]format.Format, 0, len(names))
	for _, name := range names {
		switch name {
		case formatText.FormatName:
			formats = append(formats, formatText.New())
		case formatXDR.FormatName:
			formats = append(formats, formatXDR.New())
		default:
			return nil, fmt.Errorf("unknown metadata format: %q (supported: text, xdr)", name)
		}
	}
	return formats, nil
}

// CreateDaemonClient creates the external daemon client based on
// configuration.
//
// Supported types:
//   - "none": No daemon; the cache always scans devices itself
//   - "memory": Uses pkg/daemon/memory (in-process client, for testing and
//     embedding; starts inactive)
func CreateDaemonClient(cfg *DaemonConfig) (daemon.Client, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "memory":
		return daemonMemory.NewClient(), nil
	default:
		return nil, fmt.Errorf("unknown daemon client type: %q (supported: none, memory)", cfg.Type)
	}
}

// CreateFilterCache opens the persisted device filter cache, or returns
// nil when it is disabled. The caller owns the returned store and must
// close it.
func CreateFilterCache(cfg *FilterCacheConfig) (*filtercache.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := filtercache.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open filter cache at %s: %w", cfg.Path, err)
	}
	logger.Info("Filter cache opened at %s", cfg.Path)
	return store, nil
}

// Hostname resolves the host name used for duplicate VG name resolution:
// the configured override, or the OS host name.
func Hostname(cfg *CacheConfig) string {
	if cfg.Hostname != "" {
		return cfg.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		logger.Warn("Failed to resolve hostname: %v", err)
		return ""
	}
	return name
}
