package vir

type optPass struct {
	name string
	run  func(c *Compile) bool
}

var optPasses = []optPass{
	{"copy_propagate", (*Compile).OptCopyPropagate},
	{"redundant_flags", (*Compile).OptRedundantFlags},
	{"dead_code", (*Compile).OptDeadCode},
	{"small_immediates", (*Compile).OptSmallImmediates},
	{"constant_alu", (*Compile).OptConstantALU},
}

// Optimize runs the optimization passes until a full sweep makes no
// progress. The cursor is left parked at the end of the emit block.
func (c *Compile) Optimize() {
	for pass := 1; ; pass++ {
		progress := false
		for _, p := range optPasses {
			if !p.run(c) {
				continue
			}
			progress = true
			if c.log.If("opt") {
				c.log.Printw("optimization progress", "pass", p.name, "sweep", pass,
					"insts", c.NumInsts())
			}
		}
		if !progress {
			break
		}
	}
	c.clearCursor()
}
