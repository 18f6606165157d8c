package vir

import (
	"testing"

	"github.com/gogpu/v3d/qpu"
)

func findInst(c *Compile, pred func(*Inst) bool) *Inst {
	var found *Inst
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if found == nil && pred(inst) {
			found = inst
		}
	})
	return found
}

func isTMURequest(inst *Inst) bool { return inst.LdtmuCount > 0 }

func TestScheduleHoistsTMURequests(t *testing.T) {
	tests := []struct {
		name    string
		disable bool
	}{
		{"enabled", false},
		{"disabled", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompile(Config{Device: qpu.V42(), Stage: StageFragment, DisableGeneralTMUSched: tt.disable})
			addr := c.ADD(c.EIDX(), c.TIDX())
			other := c.XOR(c.TIDX(), c.EIDX())
			v := c.TMULoad(addr, 1)
			c.FlushTMU()
			c.MOVDest(Magic(qpu.WaddrTLB), c.ADD(v[0], other))

			c.Schedule()

			req := findInst(c, isTMURequest)
			prev := c.Prev(req)
			if tt.disable {
				if prev != c.Def(int(other.Index)) {
					t.Errorf("request moved with scheduling disabled:\n%s", c.Dump())
				}
				return
			}
			if prev != c.Def(int(addr.Index)) {
				t.Errorf("request not hoisted to its address:\n%s", c.Dump())
			}
		})
	}
}

func TestScheduleMovesBufferLoads(t *testing.T) {
	tests := []struct {
		name string
		move bool
	}{
		{"move", true},
		{"dry run", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompile(Config{Device: qpu.V71(), Stage: StageFragment, MoveBufferLoads: tt.move})
			addr := c.EIDX()
			v := c.TMULoad(addr, 2)
			c.FlushTMU()
			x := c.XOR(c.TIDX(), addr)
			y := c.ADD(v[1], x)
			c.MOVDest(Magic(qpu.WaddrTLB), c.ADD(v[0], y))
			before := c.Dump()

			c.Schedule()

			if !c.Telemetry.MovableBufferLoads && !tt.move {
				t.Error("dry run found nothing to move")
			}
			ld0, ld1 := c.Def(int(v[0].Index)), c.Def(int(v[1].Index))
			if !tt.move {
				if c.Dump() != before {
					t.Errorf("program changed by the dry run:\n%s", c.Dump())
				}
				return
			}
			if c.Next(ld0) != ld1 {
				t.Errorf("result loads out of order:\n%s", c.Dump())
			}
			if c.Next(ld1) != c.Def(int(y.Index)) {
				t.Errorf("second load not next to its reader:\n%s", c.Dump())
			}
			if c.Prev(ld0) != c.Def(int(x.Index)) {
				t.Errorf("first load not sunk past unrelated work:\n%s", c.Dump())
			}
		})
	}
}

func TestScheduleFallbackSinksToUses(t *testing.T) {
	tests := []struct {
		name     string
		fallback bool
	}{
		{"fallback", true},
		{"dry run", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompile(Config{Device: qpu.V42(), Stage: StageFragment, FallbackScheduler: tt.fallback})
			a := c.EIDX()
			b := c.TIDX()
			s := c.ADD(a, b)
			x := c.XOR(a, a)
			u := c.SHL(b, b)
			w := c.ADD(u, s)
			c.MOVDest(Magic(qpu.WaddrTLB), w)
			last := c.MOVDest(Magic(qpu.WaddrTLB), x)
			before := c.Dump()

			c.Schedule()

			if !tt.fallback {
				if !c.Telemetry.SchedulableForPressure {
					t.Error("dry run found nothing to sink")
				}
				if c.Dump() != before {
					t.Errorf("program changed by the dry run:\n%s", c.Dump())
				}
				return
			}
			if c.Next(c.Def(int(s.Index))) != c.Def(int(w.Index)) {
				t.Errorf("sum not sunk to its reader:\n%s", c.Dump())
			}
			if c.Next(c.Def(int(x.Index))) != last {
				t.Errorf("xor not sunk to its reader:\n%s", c.Dump())
			}
		})
	}
}

func TestScheduleNothingToMove(t *testing.T) {
	c := newTestCompile(qpu.V42())
	c.MOVDest(Magic(qpu.WaddrTLB), c.ADD(c.EIDX(), c.TIDX()))
	before := c.Dump()

	c.Schedule()

	if c.Telemetry.MovableBufferLoads || c.Telemetry.SchedulableForPressure {
		t.Errorf("telemetry = %+v, want nothing movable", c.Telemetry)
	}
	if c.Dump() != before {
		t.Errorf("program changed:\n%s", c.Dump())
	}
}

func TestFinishWithSchedulingToggles(t *testing.T) {
	for _, dev := range []*qpu.DeviceInfo{qpu.V42(), qpu.V71()} {
		t.Run(dev.String(), func(t *testing.T) {
			c := NewCompile(Config{
				Device:            dev,
				Stage:             StageFragment,
				Validate:          true,
				MoveBufferLoads:   true,
				FallbackScheduler: true,
			})
			addr := c.ADD(c.EIDX(), c.UniformUI(0x1000))
			v := c.TMULoad(addr, 2)
			c.FlushTMU()
			k := c.XOR(c.TIDX(), addr)
			sum := c.ADD(c.ADD(v[0], k), v[1])
			c.MOVDest(Magic(qpu.WaddrTLB), sum)

			p, err := c.Finish()
			if err != nil {
				t.Fatalf("Finish() error = %v", err)
			}
			for i, word := range p.Code {
				if _, err := qpu.Decode(dev, word); err != nil {
					t.Errorf("instruction %d does not decode: %v", i, err)
				}
			}
		})
	}
}
