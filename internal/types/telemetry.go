package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricReconcileSuccess = "ReconcileSuccess"
	MetricReconcileFailure = "ReconcileFailure"
	MetricReconcileSkipped = "ReconcileSkipped"
	MetricSweepCandidates  = "SweepCandidates"

	// Dimension Keys
	DimTrigger = "Trigger"

	// Metric Namespace
	MetricNamespace = "SimpleNotes"
)
