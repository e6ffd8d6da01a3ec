package hardware

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
)

// DevicePortScanner finds serial ports by globbing device nodes.
type DevicePortScanner struct {
	// Patterns are glob patterns for candidate device nodes.
	Patterns []string

	glob func(pattern string) ([]string, error)
}

// NewDevicePortScanner returns a scanner with the platform's usual USB-serial patterns.
func NewDevicePortScanner() *DevicePortScanner {
	var patterns []string
	switch runtime.GOOS {
	case "darwin":
		patterns = []string{"/dev/cu.usbserial*", "/dev/cu.usbmodem*"}
	default:
		patterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/serial/by-id/*"}
	}
	return &DevicePortScanner{Patterns: patterns, glob: filepath.Glob}
}

// EnumeratePorts implements PortScanner. Results are sorted and de-duplicated.
func (s *DevicePortScanner) EnumeratePorts() ([]PortDescriptor, error) {
	glob := s.glob
	if glob == nil {
		glob = filepath.Glob
	}

	seen := make(map[string]bool)
	var ports []PortDescriptor
	for _, pattern := range s.Patterns {
		matches, err := glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			ports = append(ports, PortDescriptor{Port: m})
		}
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Port < ports[j].Port })
	return ports, nil
}
