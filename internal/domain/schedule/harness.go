package schedule

import "sync"

// DefaultHarnessRuns bounds the pipeline test harness when no override is
// configured.
const DefaultHarnessRuns = 5

// HarnessState tracks the fixed-rate test harness: how many runs it has
// emitted and whether it is active. All access is serialized so the ticker
// goroutine and control calls can race safely.
type HarnessState struct {
	mu      sync.Mutex
	maxRuns int
	runs    int
	running bool
}

func NewHarnessState(maxRuns int) *HarnessState {
	if maxRuns <= 0 {
		maxRuns = DefaultHarnessRuns
	}
	return &HarnessState{maxRuns: maxRuns}
}

// Start activates the harness. It reports false when the harness is already
// active or the run budget is spent; Reset first to rearm a spent budget.
func (h *HarnessState) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.runs >= h.maxRuns {
		return false
	}
	h.running = true
	return true
}

// Stop deactivates the harness without clearing the run counter.
func (h *HarnessState) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
}

// Reset clears the counter and deactivates the harness.
func (h *HarnessState) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = 0
	h.running = false
}

// Next consumes one run from the budget. It reports false once the harness
// is stopped or exhausted; exhaustion also deactivates the harness so the
// ticker can tear itself down.
func (h *HarnessState) Next() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running || h.runs >= h.maxRuns {
		h.running = false
		return false
	}
	h.runs++
	if h.runs >= h.maxRuns {
		h.running = false
	}
	return true
}

func (h *HarnessState) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

func (h *HarnessState) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}
