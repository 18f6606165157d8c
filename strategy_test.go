package v3d

import (
	"testing"

	"github.com/gogpu/v3d/vir"
)

func TestDefaultStrategies(t *testing.T) {
	s := DefaultStrategies()
	if len(s) != 13 {
		t.Fatalf("%d strategies, want 13", len(s))
	}
	for i, st := range s {
		four := i < 6
		if four && (st.MaxThreads != 4 || st.MinThreads != 4 || st.MaxTMUSpills != 0) {
			t.Errorf("%d %q: threads %d..%d budget %d", i, st.Name, st.MinThreads, st.MaxThreads, st.MaxTMUSpills)
		}
		if !four && (st.MaxThreads != 2 || st.MinThreads != 1 || st.MaxTMUSpills != -1) {
			t.Errorf("%d %q: threads %d..%d budget %d", i, st.Name, st.MinThreads, st.MaxThreads, st.MaxTMUSpills)
		}
		if st.FallbackScheduler != (i == len(s)-1) {
			t.Errorf("%d %q: fallback scheduler = %v", i, st.Name, st.FallbackScheduler)
		}
	}
}

func TestSkipStrategy(t *testing.T) {
	s := DefaultStrategies()
	tmuLoads := vir.Telemetry{HasGeneralTMULoad: true}
	pipelined := vir.Telemetry{HasGeneralTMULoad: true, PipelinedAnyTMU: true}

	tests := []struct {
		name      string
		idx       int
		telemetry vir.Telemetry
		threads   int
		skip      bool
	}{
		{"no tmu loads", 1, vir.Telemetry{}, 4, true},
		{"tmu loads", 1, tmuLoads, 4, false},
		{"no gcm progress", 2, tmuLoads, 4, true},
		{"gcm progress", 2, vir.Telemetry{GCMProgress: true}, 4, false},
		{"no unrolled loops", 3, vir.Telemetry{}, 4, true},
		{"unrolled loops", 3, vir.Telemetry{UnrolledAnyLoops: true}, 4, false},
		{"no sorted loads", 4, vir.Telemetry{}, 4, true},
		{"sorted loads", 4, vir.Telemetry{SortedAnyUBOLoads: true}, 4, false},
		{"no pipelining", 5, tmuLoads, 4, true},
		{"pipelining", 5, pipelined, 4, false},
		{"spill budget changes", 6, vir.Telemetry{}, 2, false},
		{"two thread tmu sched", 7, vir.Telemetry{}, 2, true},
		{"no movable buffer loads", 10, vir.Telemetry{}, 2, true},
		{"movable buffer loads", 10, vir.Telemetry{MovableBufferLoads: true}, 2, false},
		{"sorted loads before moving", 10, vir.Telemetry{SortedAnyUBOLoads: true}, 2, false},
		{"two thread pipelining", 11, vir.Telemetry{}, 2, true},
		{"nothing to reschedule", 12, vir.Telemetry{}, 2, true},
		{"fallback scheduler", 12, vir.Telemetry{SchedulableForPressure: true}, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := &attempt{idx: tt.idx - 1, threads: tt.threads, telemetry: tt.telemetry}
			if got := skipStrategy(s[tt.idx-1], s[tt.idx], last); got != tt.skip {
				t.Errorf("skipStrategy(%q) = %v, want %v", s[tt.idx].Name, got, tt.skip)
			}
		})
	}
}

func TestSkipStrategyThreads(t *testing.T) {
	prev := Strategy{Name: "four", MaxThreads: 4, MinThreads: 4}
	cur := Strategy{Name: "two", MaxThreads: 2, MinThreads: 1}

	tests := []struct {
		name    string
		threads int
		skip    bool
	}{
		{"ran at four threads", 4, false},
		{"already below four", 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := &attempt{threads: tt.threads}
			if got := skipStrategy(prev, cur, last); got != tt.skip {
				t.Errorf("skipStrategy() = %v, want %v", got, tt.skip)
			}
		})
	}
}
