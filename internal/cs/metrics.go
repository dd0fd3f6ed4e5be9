package cs

import "time"

// Metrics receives engine events. internal/metrics exports them to prometheus.
type Metrics interface {
	CycleFinished(status string, d time.Duration)
	ItemMaterialized(kind string)
	ItemFailed(kind string)
	ContainerFailed()
	SetPending(kind string, n int64)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) CycleFinished(string, time.Duration) {}
func (NopMetrics) ItemMaterialized(string)             {}
func (NopMetrics) ItemFailed(string)                   {}
func (NopMetrics) ContainerFailed()                    {}
func (NopMetrics) SetPending(string, int64)            {}
