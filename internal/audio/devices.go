package audio

import (
	"fmt"
	"io"
	"sort"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio input device.
type Device struct {
	Name            string
	MaxInput        int
	DefaultSampleHz float64
	HostAPI         string
	IsDefaultInput  bool
}

// ListDevices returns every device able to record, sorted by host and name.
func ListDevices() ([]Device, error) {
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	var defaultInputIndex = -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultInputIndex = def.Index
	}

	var devices []Device
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxInputChannels <= 0 {
				continue
			}
			devices = append(devices, Device{
				Name:            d.Name,
				MaxInput:        d.MaxInputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				HostAPI:         host.Name,
				IsDefaultInput:  d.Index == defaultInputIndex,
			})
		}
	}

	sortDevices(devices)
	return devices, nil
}

// PrintDevices writes a human readable device list, marking auto as the
// device that would be picked without -audio-device.
func PrintDevices(w io.Writer, devices []Device, auto string) {
	fmt.Fprintf(w, "\n=== Audio Input Devices ===\n\n")
	if len(devices) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	for _, dev := range devices {
		markers := ""
		if dev.IsDefaultInput {
			markers += " (default)"
		}
		if dev.Name == auto {
			markers += " (auto)"
		}
		fmt.Fprintf(w, "- %s [%s]%s\n    inputs:%d sample:%.0f Hz\n",
			dev.Name, dev.HostAPI, markers, dev.MaxInput, dev.DefaultSampleHz)
	}
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})
}
