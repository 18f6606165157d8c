package vir

import (
	"testing"

	"github.com/gogpu/v3d/qpu"
)

func TestGetUniformIndexDedup(t *testing.T) {
	c := newTestCompile(qpu.V42())
	a := c.GetUniformIndex(UniformConstant, 1)
	b := c.GetUniformIndex(UniformConstant, 2)
	if c.GetUniformIndex(UniformConstant, 1) != a {
		t.Error("same constant got a new slot")
	}
	if u := c.GetUniformIndex(UniformUBOAddr, 1); u == a || u == b {
		t.Errorf("ubo_addr 1 shares slot %d with a constant", u)
	}
	if n := len(c.UniformPool()); n != 3 {
		t.Errorf("pool has %d slots, want 3", n)
	}
}

func TestLdunifReuse(t *testing.T) {
	tests := []struct {
		name    string
		between func(c *Compile, first Reg)
		disable bool
		reused  bool
	}{
		{"adjacent", func(*Compile, Reg) {}, false, true},
		{"inside window", func(c *Compile, _ Reg) {
			for i := 0; i < ldunifLookback-1; i++ {
				c.NOP()
			}
		}, false, true},
		{"outside window", func(c *Compile, _ Reg) {
			for i := 0; i < ldunifLookback; i++ {
				c.NOP()
			}
		}, false, false},
		{"redefined", func(c *Compile, first Reg) {
			c.MOVDest(first, c.EIDX())
		}, false, false},
		{"disabled", func(*Compile, Reg) {}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompile(Config{Device: qpu.V42(), DisableLdunifOpt: tt.disable})
			first := c.UniformUI(0x1234)
			tt.between(c, first)
			second := c.UniformUI(0x1234)
			if got := second == first; got != tt.reused {
				t.Errorf("reused = %v, want %v", got, tt.reused)
			}
			if n := len(c.UniformPool()); n != 1 {
				t.Errorf("pool has %d slots, want 1", n)
			}
		})
	}
}

func TestLdunifReuseStaysInBlock(t *testing.T) {
	c := newTestCompile(qpu.V42())
	first := c.UniformUI(9)
	b := c.NewBlock()
	c.LinkBlocks(c.EntryBlock(), b)
	c.SetEmitBlock(b)
	if c.UniformUI(9) == first {
		t.Error("load reused across blocks")
	}
}
