// Package metrics emits operational telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"calwatch/internal/alarm"
	"calwatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchRecorder implements alarm.PassRecorder.
var _ alarm.PassRecorder = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder publishes per-pass and per-request metrics to a single
// CloudWatch namespace. Emission failures are logged and never propagated;
// telemetry must not fail a reminder pass.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to the given namespace.
// An empty namespace falls back to the service default.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordPass emits one datum per pass counter plus the cursor lag, the age of
// the watermark at the time the pass completed. Lag growing across passes
// means the worker is falling behind its schedule.
func (r *CloudWatchRecorder) RecordPass(ctx context.Context, stats alarm.PassStats) {
	counts := []struct {
		name  string
		value int
	}{
		{types.MetricPassCandidates, stats.Candidates},
		{types.MetricPassDirectDue, stats.DirectDue},
		{types.MetricPassTriggers, stats.Triggers},
		{types.MetricMailBatches, stats.MailBatches},
		{types.MetricMailFailures, stats.MailFailures},
		{types.MetricPushPayloads, stats.PushPayloads},
		{types.MetricPushFailures, stats.PushFailures},
	}

	data := make([]cwtypes.MetricDatum, 0, len(counts)+1)
	for _, c := range counts {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(c.name),
			Value:      aws.Float64(float64(c.value)),
			Unit:       cwtypes.StandardUnitCount,
		})
	}
	if !stats.Cursor.IsZero() {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricCursorLag),
			Value:      aws.Float64(float64(time.Since(stats.Cursor).Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	}
	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.Error("failed to record pass metrics",
			"error", err.Error(),
			"triggers", stats.Triggers,
		)
	}
}

// RecordAPILatency emits an APILatency metric with Endpoint and Status
// dimensions for one handled HTTP request.
func (r *CloudWatchRecorder) RecordAPILatency(ctx context.Context, endpoint string, status int, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimEndpoint),
						Value: aws.String(endpoint),
					},
					{
						Name:  aws.String(types.DimStatus),
						Value: aws.String(httpStatusClass(status)),
					},
				},
			},
		},
	}
	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.Error("failed to record api latency metric",
			"error", err.Error(),
			"endpoint", endpoint,
			"status", status,
		)
	}
}

// httpStatusClass collapses a status code into its class ("2xx", "4xx", ...)
// to keep dimension cardinality bounded.
func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
