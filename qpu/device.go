package qpu

import (
	"fmt"

	"tlog.app/go/errors"
)

// Channels is the SIMD width of a QPU.
const Channels = 16

// PhysCount is the number of physical register file entries.
const PhysCount = 64

// DeviceInfo describes the target V3D hardware revision.
type DeviceInfo struct {
	// Ver is the hardware version times ten plus the minor (42, 71).
	Ver int

	// HasAccumulators reports whether r0-r5 exist.
	HasAccumulators bool

	// QPUCount is the number of QPUs per core.
	QPUCount int

	// VPMSize is the size of the vertex pipe memory in bytes.
	VPMSize int
}

// V42 returns the device description of a V3D 4.2 core.
func V42() *DeviceInfo {
	return &DeviceInfo{
		Ver:             42,
		HasAccumulators: true,
		QPUCount:        8,
		VPMSize:         16 * 1024,
	}
}

// V71 returns the device description of a V3D 7.1 core.
func V71() *DeviceInfo {
	return &DeviceInfo{
		Ver:             71,
		HasAccumulators: false,
		QPUCount:        16,
		VPMSize:         16 * 1024,
	}
}

// DeviceByVersion returns the preset for a version number.
func DeviceByVersion(ver int) (*DeviceInfo, error) {
	switch ver {
	case 42:
		return V42(), nil
	case 71:
		return V71(), nil
	}
	return nil, errors.New("unsupported device version %d", ver)
}

// PhysRegs returns how many register file entries each thread may use
// when the QPU runs the given number of threads.
//
// 4.x and later have double the register space of 3.x, so 64 registers
// are available at both one and two threads, and 32 at four.
func (d *DeviceInfo) PhysRegs(threads int) int {
	return PhysCount >> d.ThreadIndex(threads)
}

// ThreadIndex maps a thread count (1, 2, 4) to the register class index
// used by the register allocator.
func (d *DeviceInfo) ThreadIndex(threads int) int {
	idx := 0
	for t := threads; t > 1; t >>= 1 {
		idx++
	}
	if idx >= 1 {
		idx--
	}
	return idx
}

// String implements fmt.Stringer.
func (d *DeviceInfo) String() string {
	return fmt.Sprintf("V3D %d.%d", d.Ver/10, d.Ver%10)
}
