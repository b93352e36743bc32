package port

// MetricsRecorder receives domain counters. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	SequenceAllocated(family string)
	SequenceRetried(family, reason string)
	DecisionRecorded(kind, decision, status string)
	DecisionConflict()
	NotificationDelivered(status string)
	InventoryCacheLookup(result string)
}

// NopMetrics discards every observation
type NopMetrics struct{}

func (NopMetrics) SequenceAllocated(string)                {}
func (NopMetrics) SequenceRetried(string, string)          {}
func (NopMetrics) DecisionRecorded(string, string, string) {}
func (NopMetrics) DecisionConflict()                       {}
func (NopMetrics) NotificationDelivered(string)            {}
func (NopMetrics) InventoryCacheLookup(string)             {}
