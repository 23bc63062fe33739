package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector counts engine, instance and sync activity
type Collector struct {
	engineMetrics     *EngineMetrics
	operationCounters map[string]*int64
	mu                sync.RWMutex
	startTime         time.Time
}

// EngineMetrics tracks render and sync activity
type EngineMetrics struct {
	// Rendering
	RendersRun       int64 `json:"renders_run"`
	Substitutions    int64 `json:"substitutions"`
	ExpressionErrors int64 `json:"expression_errors"`

	// Template instances
	InstancesCreated int64 `json:"instances_created"`
	InstancesDeleted int64 `json:"instances_deleted"`
	ActiveInstances  int64 `json:"active_instances"`
	MaxInstances     int64 `json:"max_instances"`

	// Remote sync
	MessagesApplied int64 `json:"messages_applied"`
	MessagesIgnored int64 `json:"messages_ignored"`
	ConnectAttempts int64 `json:"connect_attempts"`
	ConnectFailures int64 `json:"connect_failures"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		engineMetrics: &EngineMetrics{
			StartTime: time.Now(),
		},
		operationCounters: make(map[string]*int64),
		startTime:         time.Now(),
	}
}

// IncrementRender records a completed render pass
func (c *Collector) IncrementRender() {
	atomic.AddInt64(&c.engineMetrics.RendersRun, 1)
}

// AddSubstitutions records substituted expressions
func (c *Collector) AddSubstitutions(n int64) {
	atomic.AddInt64(&c.engineMetrics.Substitutions, n)
}

// IncrementExpressionError records an inline expression that failed to evaluate
func (c *Collector) IncrementExpressionError() {
	atomic.AddInt64(&c.engineMetrics.ExpressionErrors, 1)
}

// IncrementInstanceCreated records a new template instance
func (c *Collector) IncrementInstanceCreated() {
	atomic.AddInt64(&c.engineMetrics.InstancesCreated, 1)
	currentActive := atomic.AddInt64(&c.engineMetrics.ActiveInstances, 1)

	// Update max concurrent if needed
	for {
		max := atomic.LoadInt64(&c.engineMetrics.MaxInstances)
		if currentActive <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.engineMetrics.MaxInstances, max, currentActive) {
			break
		}
	}
}

// IncrementInstanceDeleted records a deleted template instance
func (c *Collector) IncrementInstanceDeleted() {
	atomic.AddInt64(&c.engineMetrics.InstancesDeleted, 1)
	atomic.AddInt64(&c.engineMetrics.ActiveInstances, -1)
}

// IncrementMessageApplied records a remote set message applied to state
func (c *Collector) IncrementMessageApplied() {
	atomic.AddInt64(&c.engineMetrics.MessagesApplied, 1)
}

// IncrementMessageIgnored records a malformed or unrecognized remote message
func (c *Collector) IncrementMessageIgnored() {
	atomic.AddInt64(&c.engineMetrics.MessagesIgnored, 1)
}

// IncrementConnectAttempt records a transport connection attempt
func (c *Collector) IncrementConnectAttempt() {
	atomic.AddInt64(&c.engineMetrics.ConnectAttempts, 1)
}

// IncrementConnectFailure records a failed transport connection attempt
func (c *Collector) IncrementConnectFailure() {
	atomic.AddInt64(&c.engineMetrics.ConnectFailures, 1)
}

// IncrementCustomCounter increments a custom named counter
func (c *Collector) IncrementCustomCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.operationCounters[name]; exists {
		atomic.AddInt64(counter, 1)
	} else {
		var newCounter int64 = 1
		c.operationCounters[name] = &newCounter
	}
}

// GetMetrics returns current engine metrics
func (c *Collector) GetMetrics() EngineMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return a copy with current atomic values
	return EngineMetrics{
		RendersRun:       atomic.LoadInt64(&c.engineMetrics.RendersRun),
		Substitutions:    atomic.LoadInt64(&c.engineMetrics.Substitutions),
		ExpressionErrors: atomic.LoadInt64(&c.engineMetrics.ExpressionErrors),
		InstancesCreated: atomic.LoadInt64(&c.engineMetrics.InstancesCreated),
		InstancesDeleted: atomic.LoadInt64(&c.engineMetrics.InstancesDeleted),
		ActiveInstances:  atomic.LoadInt64(&c.engineMetrics.ActiveInstances),
		MaxInstances:     atomic.LoadInt64(&c.engineMetrics.MaxInstances),
		MessagesApplied:  atomic.LoadInt64(&c.engineMetrics.MessagesApplied),
		MessagesIgnored:  atomic.LoadInt64(&c.engineMetrics.MessagesIgnored),
		ConnectAttempts:  atomic.LoadInt64(&c.engineMetrics.ConnectAttempts),
		ConnectFailures:  atomic.LoadInt64(&c.engineMetrics.ConnectFailures),
		StartTime:        c.engineMetrics.StartTime,
		Uptime:           time.Since(c.startTime),
	}
}

// GetCustomCounters returns all custom counters
func (c *Collector) GetCustomCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64)
	for name, counter := range c.operationCounters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// Reset resets all metrics to zero
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	atomic.StoreInt64(&c.engineMetrics.RendersRun, 0)
	atomic.StoreInt64(&c.engineMetrics.Substitutions, 0)
	atomic.StoreInt64(&c.engineMetrics.ExpressionErrors, 0)
	atomic.StoreInt64(&c.engineMetrics.InstancesCreated, 0)
	atomic.StoreInt64(&c.engineMetrics.InstancesDeleted, 0)
	atomic.StoreInt64(&c.engineMetrics.ActiveInstances, 0)
	atomic.StoreInt64(&c.engineMetrics.MaxInstances, 0)
	atomic.StoreInt64(&c.engineMetrics.MessagesApplied, 0)
	atomic.StoreInt64(&c.engineMetrics.MessagesIgnored, 0)
	atomic.StoreInt64(&c.engineMetrics.ConnectAttempts, 0)
	atomic.StoreInt64(&c.engineMetrics.ConnectFailures, 0)

	// Reset custom counters
	c.operationCounters = make(map[string]*int64)

	c.startTime = time.Now()
	c.engineMetrics.StartTime = c.startTime
}

// GetExpressionErrorRate returns the share of substitutions that were evaluation errors, in percent
func (c *Collector) GetExpressionErrorRate() float64 {
	substitutions := atomic.LoadInt64(&c.engineMetrics.Substitutions)
	errors := atomic.LoadInt64(&c.engineMetrics.ExpressionErrors)

	if substitutions == 0 {
		return 0.0
	}

	return float64(errors) / float64(substitutions) * 100.0
}

// GetConnectSuccessRate returns the success rate for connection attempts
func (c *Collector) GetConnectSuccessRate() float64 {
	attempts := atomic.LoadInt64(&c.engineMetrics.ConnectAttempts)
	failures := atomic.LoadInt64(&c.engineMetrics.ConnectFailures)

	if attempts == 0 {
		return 100.0 // No attempts means 100% success rate
	}

	return float64(attempts-failures) / float64(attempts) * 100.0
}
