package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricPassCandidates = "PassCandidates"
	MetricPassDirectDue  = "PassDirectDue"
	MetricPassTriggers   = "PassTriggers"
	MetricMailBatches    = "MailBatches"
	MetricMailFailures   = "MailFailures"
	MetricPushPayloads   = "PushPayloads"
	MetricPushFailures   = "PushFailures"
	MetricCursorLag      = "CursorLag"
	MetricAPILatency     = "APILatency"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"

	// Metric Namespace
	MetricNamespace = "CalWatch"
)
