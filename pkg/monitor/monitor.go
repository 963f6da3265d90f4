package monitor

import "fmt"

// Config parameterises a Monitor's gas, context, and flush behaviour.
type Config struct {
	GasLimit       uint64
	ContextCap     int
	FlushThreshold float64
	AutoFlush      bool
	FlushCount     int
	DetectCycles   bool
}

// DefaultConfig returns the documented defaults: 10,000 gas,
// 1,000 context frames, 0.8 flush threshold, auto-flush enabled
// evicting 100 frames at a time, cycle detection enabled.
func DefaultConfig() Config {
	return Config{
		GasLimit:       10_000,
		ContextCap:     1000,
		FlushThreshold: 0.8,
		AutoFlush:      true,
		FlushCount:     100,
		DetectCycles:   true,
	}
}

// Status is a point-in-time snapshot of monitor state, returned by
// the status_report() auxiliary operation.
type Status struct {
	StepCount           uint64
	GasRemaining        uint64
	GasConsumed         uint64
	GasUtilization      float64
	ContextFrames       int
	ContextCapacity     int
	ContextUtilization  float64
	ContextEvictedTotal uint64
	CycleDetected       bool
	LastCycle           *CycleRecord
	Halted              bool
}

// Monitor is the composed execution-state monitor: begin_step/end_step
// orchestrate cycle detection, gas accounting, and context bounding in
// a fixed order. It is not safe for concurrent use;
// callers needing concurrency hold one Monitor per execution or
// serialise access with their own mutex.
type Monitor struct {
	config      Config
	cycles      *CycleDetector
	gas         *GasBudget
	context     *ContextStore
	stepCount   uint64
	currentStep *string
	lastCycle   *CycleRecord
	halted      bool
}

// New returns a monitor configured per cfg.
func New(cfg Config) *Monitor {
	return &Monitor{
		config:  cfg,
		cycles:  NewCycleDetector(),
		gas:     NewGasBudget(cfg.GasLimit),
		context: NewContextStoreWithThreshold(cfg.ContextCap, cfg.FlushThreshold),
	}
}

// NewDefault returns a monitor with DefaultConfig().
func NewDefault() *Monitor {
	return New(DefaultConfig())
}

// BeginStep runs the ordered checks:
// halted -> already-open -> gas -> cycle -> context, in that order.
// A failure at any step aborts without side effects on the next — a
// failed cycle check does not refund gas (the gas was already spent on
// the attempted operation), while a failed gas check records no step
// at all.
func (m *Monitor) BeginStep(stepID string, kind OperationKind) error {
	if m.halted {
		return ErrHalted
	}
	if m.currentStep != nil {
		return ErrStepAlreadyOpen
	}

	if _, err := m.gas.Consume(kind); err != nil {
		return err
	}

	m.stepCount++
	node := ExecutionNode{StateID: stepID, Step: m.stepCount}

	if m.config.DetectCycles {
		m.cycles.RecordStep(node)
		if cycle := m.cycles.DetectCycle(); cycle != nil {
			m.lastCycle = cycle
			m.halted = true
			return &CycleDetectedError{
				Step:        m.stepCount,
				Description: describeCycle(*cycle),
				Cycle:       *cycle,
			}
		}
	}

	if m.context.ShouldFlush() {
		if m.config.AutoFlush {
			m.context.Flush(m.config.FlushCount)
		} else {
			return &ContextOverflowError{Current: m.context.Len(), Limit: m.context.Capacity()}
		}
	}

	id := stepID
	m.currentStep = &id
	return nil
}

func describeCycle(c CycleRecord) string {
	return fmt.Sprintf("cycle of %d unique state(s) detected at step %d", c.UniqueCount, c.DetectedAt)
}

// EndStep closes the current step, pushing a context frame carrying
// result at priority 0. Eviction may occur here as well as in
// BeginStep.
func (m *Monitor) EndStep(result string) error {
	if m.halted {
		return ErrHalted
	}
	if m.currentStep == nil {
		return ErrNoStepOpen
	}
	stepID := *m.currentStep
	m.currentStep = nil

	m.context.Push(Frame{ID: stepID, Content: result, Priority: 0})
	return nil
}

func (m *Monitor) GasRemaining() uint64        { return m.gas.Remaining() }
func (m *Monitor) GasUtilization() float64     { return m.gas.Utilization() }
func (m *Monitor) StepCount() uint64           { return m.stepCount }
func (m *Monitor) IsHalted() bool              { return m.halted }
func (m *Monitor) CycleDetected() bool         { return m.lastCycle != nil }
func (m *Monitor) LastCycle() *CycleRecord     { return m.lastCycle }
func (m *Monitor) ContextFrameCount() int      { return m.context.Len() }
func (m *Monitor) ContextUtilization() float64 { return m.context.Utilization() }
func (m *Monitor) ContextEvictedTotal() uint64 { return m.context.EvictedTotal() }

// CanAfford is a non-mutating pre-flight check.
func (m *Monitor) CanAfford(kind OperationKind) bool {
	return !m.halted && m.gas.CanAfford(kind)
}

// FlushContext manually evicts count frames.
func (m *Monitor) FlushContext(count int) int {
	return m.context.Flush(count)
}

// Reset is privileged: it clears cycle detection, gas, context, step
// count, and the halted flag, for use only at the boundary of a fresh
// execution.
func (m *Monitor) Reset() {
	m.cycles.Clear()
	m.gas.Reset()
	m.context.Clear()
	m.stepCount = 0
	m.currentStep = nil
	m.lastCycle = nil
	m.halted = false
}

// StatusReport returns a snapshot of the monitor's current state.
func (m *Monitor) StatusReport() Status {
	return Status{
		StepCount:           m.stepCount,
		GasRemaining:        m.gas.Remaining(),
		GasConsumed:         m.gas.Consumed(),
		GasUtilization:      m.gas.Utilization(),
		ContextFrames:       m.context.Len(),
		ContextCapacity:     m.context.Capacity(),
		ContextUtilization:  m.context.Utilization(),
		ContextEvictedTotal: m.context.EvictedTotal(),
		CycleDetected:       m.lastCycle != nil,
		LastCycle:           m.lastCycle,
		Halted:              m.halted,
	}
}
