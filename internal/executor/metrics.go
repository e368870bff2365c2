package executor

import (
	"sync"
	"time"
)

// ExecutorMetrics tracks statistics about plan execution.
type ExecutorMetrics struct {
	PlansExecuted   int
	PlansSucceeded  int
	PlansFailed     int
	StepsExecuted   int
	StepsSkipped    int // steps after a translate step that never ran
	CodeResults     int
	RowsLoaded      int
	TotalDuration   time.Duration
	LongestPlanTime time.Duration

	mu sync.Mutex
}

// Copy returns a snapshot without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ExecutorMetrics{
		PlansExecuted:   m.PlansExecuted,
		PlansSucceeded:  m.PlansSucceeded,
		PlansFailed:     m.PlansFailed,
		StepsExecuted:   m.StepsExecuted,
		StepsSkipped:    m.StepsSkipped,
		CodeResults:     m.CodeResults,
		RowsLoaded:      m.RowsLoaded,
		TotalDuration:   m.TotalDuration,
		LongestPlanTime: m.LongestPlanTime,
	}
}

func (m *ExecutorMetrics) recordStep(rowsLoaded int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepsExecuted++
	m.RowsLoaded += rowsLoaded
}

func (m *ExecutorMetrics) recordPlan(d time.Duration, err error, code bool, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlansExecuted++
	if err != nil {
		m.PlansFailed++
	} else {
		m.PlansSucceeded++
	}
	if code {
		m.CodeResults++
	}
	m.StepsSkipped += skipped
	m.TotalDuration += d
	if d > m.LongestPlanTime {
		m.LongestPlanTime = d
	}
}
