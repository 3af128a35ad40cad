package config

import "sync"

// Runtime holds the operationally tunable subset of the configuration behind
// a lock. The risk gate and the orchestrator read through it on every
// assessment and execution, so a change made through the control API takes
// effect on the next cycle rather than requiring a restart.
type Runtime struct {
	mu       sync.RWMutex
	risk     RiskConfig
	executor ExecutorConfig
}

// NewRuntime seeds the runtime view from the loaded configuration.
func NewRuntime(risk RiskConfig, executor ExecutorConfig) *Runtime {
	return &Runtime{risk: risk, executor: executor}
}

// Risk returns a copy of the current risk limits.
func (r *Runtime) Risk() RiskConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.risk
}

// Executor returns a copy of the current execution parameters.
func (r *Runtime) Executor() ExecutorConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executor
}

// TradingEnabled reports the current global trading flag.
func (r *Runtime) TradingEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executor.TradingEnabled
}

// SetTradingEnabled flips the global trading flag.
func (r *Runtime) SetTradingEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executor.TradingEnabled = enabled
}

// UpdateRisk replaces the risk limits wholesale.
func (r *Runtime) UpdateRisk(risk RiskConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.risk = risk
}

// UpdateExecutor replaces the execution parameters wholesale.
func (r *Runtime) UpdateExecutor(executor ExecutorConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executor = executor
}
