// Package metrics publishes scheduler and monitor telemetry to CloudWatch.
package metrics

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"remindpoint/internal/scheduler"
	"remindpoint/internal/types"
)

// Metric and dimension names.
const (
	MetricReminderAttempt = "ReminderAttempt"
	MetricAlertRaised     = "AlertRaised"

	DimNotificationType = "NotificationType"
	DimStatus           = "Status"
	DimAlertType        = "AlertType"
	DimSeverity         = "Severity"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchMetrics implements scheduler.Metrics.
var _ scheduler.Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics implements scheduler.Metrics by emitting counts to a
// CloudWatch namespace. Publish failures are logged and never surfaced:
// telemetry must not break a tick.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordAttempt emits one ReminderAttempt count with NotificationType and
// Status dimensions.
func (m *CloudWatchMetrics) RecordAttempt(ctx context.Context, t types.NotificationType, status types.AttemptStatus) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricReminderAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(DimNotificationType),
						Value: aws.String(string(t)),
					},
					{
						Name:  aws.String(DimStatus),
						Value: aws.String(string(status)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record attempt metric",
			"error", err.Error(),
			"type", string(t),
			"status", string(status),
		)
	}
}

// RecordAlert emits one AlertRaised count with AlertType and Severity
// dimensions.
func (m *CloudWatchMetrics) RecordAlert(ctx context.Context, alertType types.AlertType, severity types.Severity) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricAlertRaised),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(DimAlertType),
						Value: aws.String(string(alertType)),
					},
					{
						Name:  aws.String(DimSeverity),
						Value: aws.String(string(severity)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record alert metric",
			"error", err.Error(),
			"alert_type", string(alertType),
			"severity", string(severity),
		)
	}
}
