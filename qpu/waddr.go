package qpu

import "fmt"

// Waddr is a magic write address: a destination that is not a register
// file entry (accumulators, TMU, TLB, SFU and VPM ports).
type Waddr uint8

const (
	WaddrR0       Waddr = 0
	WaddrR1       Waddr = 1
	WaddrR2       Waddr = 2
	WaddrR3       Waddr = 3
	WaddrR4       Waddr = 4
	WaddrR5       Waddr = 5
	WaddrQuad     Waddr = 5
	WaddrNOP      Waddr = 6
	WaddrTLB      Waddr = 7
	WaddrTLBU     Waddr = 8
	WaddrUnifa    Waddr = 9
	WaddrTMUL     Waddr = 10
	WaddrTMUD     Waddr = 11
	WaddrTMUA     Waddr = 12
	WaddrTMUAU    Waddr = 13
	WaddrVPM      Waddr = 14
	WaddrVPMU     Waddr = 15
	WaddrSync     Waddr = 16
	WaddrSyncU    Waddr = 17
	WaddrSyncB    Waddr = 18
	WaddrRecip    Waddr = 19
	WaddrRSQRT    Waddr = 20
	WaddrExp      Waddr = 21
	WaddrLog      Waddr = 22
	WaddrSin      Waddr = 23
	WaddrRSQRT2   Waddr = 24
	WaddrTMUC     Waddr = 32
	WaddrTMUS     Waddr = 33
	WaddrTMUT     Waddr = 34
	WaddrTMUR     Waddr = 35
	WaddrTMUI     Waddr = 36
	WaddrTMUB     Waddr = 37
	WaddrTMUDRef  Waddr = 38
	WaddrTMUOff   Waddr = 39
	WaddrTMUSCM   Waddr = 40
	WaddrTMUSF    Waddr = 41
	WaddrTMUSLOD  Waddr = 42
	WaddrTMUHS    Waddr = 43
	WaddrTMUHSCM  Waddr = 44
	WaddrTMUHSF   Waddr = 45
	WaddrTMUHSLOD Waddr = 46
	WaddrR5Rep    Waddr = 55
)

var waddrNames = map[Waddr]string{
	WaddrR0:       "r0",
	WaddrR1:       "r1",
	WaddrR2:       "r2",
	WaddrR3:       "r3",
	WaddrR4:       "r4",
	WaddrR5:       "r5",
	WaddrNOP:      "-",
	WaddrTLB:      "tlb",
	WaddrTLBU:     "tlbu",
	WaddrUnifa:    "unifa",
	WaddrTMUL:     "tmul",
	WaddrTMUD:     "tmud",
	WaddrTMUA:     "tmua",
	WaddrTMUAU:    "tmuau",
	WaddrVPM:      "vpm",
	WaddrVPMU:     "vpmu",
	WaddrSync:     "sync",
	WaddrSyncU:    "syncu",
	WaddrSyncB:    "syncb",
	WaddrRecip:    "recip",
	WaddrRSQRT:    "rsqrt",
	WaddrExp:      "exp",
	WaddrLog:      "log",
	WaddrSin:      "sin",
	WaddrRSQRT2:   "rsqrt2",
	WaddrTMUC:     "tmuc",
	WaddrTMUS:     "tmus",
	WaddrTMUT:     "tmut",
	WaddrTMUR:     "tmur",
	WaddrTMUI:     "tmui",
	WaddrTMUB:     "tmub",
	WaddrTMUDRef:  "tmudref",
	WaddrTMUOff:   "tmuoff",
	WaddrTMUSCM:   "tmuscm",
	WaddrTMUSF:    "tmusf",
	WaddrTMUSLOD:  "tmuslod",
	WaddrTMUHS:    "tmuhs",
	WaddrTMUHSCM:  "tmuhscm",
	WaddrTMUHSF:   "tmuhsf",
	WaddrTMUHSLOD: "tmuhslod",
	WaddrR5Rep:    "r5rep",
}

func (w Waddr) String() string {
	if name, ok := waddrNames[w]; ok {
		return name
	}
	return fmt.Sprintf("waddr(%d)", uint8(w))
}

// ParseWaddr returns the magic address with the given name.
func ParseWaddr(name string) (Waddr, bool) {
	for w, n := range waddrNames {
		if n == name && n != "-" {
			return w, true
		}
	}
	return 0, false
}

// IsTMU reports whether a write to w feeds the texture/memory unit.
func (d *DeviceInfo) IsTMU(w Waddr) bool {
	return (w >= WaddrTMUD && w <= WaddrTMUAU) ||
		(w >= WaddrTMUC && w <= WaddrTMUHSLOD)
}

// IsSFU reports whether a write to w issues a special function request.
func (w Waddr) IsSFU() bool {
	return w >= WaddrRecip && w <= WaddrRSQRT2
}

// IsTLB reports whether a write to w goes to the tile buffer.
func (w Waddr) IsTLB() bool {
	return w == WaddrTLB || w == WaddrTLBU
}

// IsVPM reports whether a write to w goes to the vertex pipe memory.
func (w Waddr) IsVPM() bool {
	return w == WaddrVPM || w == WaddrVPMU ||
		(w >= WaddrSync && w <= WaddrSyncB)
}

// IsAccumulator reports whether w names one of r0-r5 on dev.
func (d *DeviceInfo) IsAccumulator(w Waddr) bool {
	return d.HasAccumulators && w <= WaddrR5
}

// Reg is an allocated register: a physical register file entry, or when
// Magic is set an accumulator or other magic address.
type Reg struct {
	Magic bool
	Index uint8
}

func (r Reg) String() string {
	if r.Magic {
		return Waddr(r.Index).String()
	}
	return fmt.Sprintf("rf%d", r.Index)
}
