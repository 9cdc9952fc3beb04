package worker

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"simplenotes/internal/billing"
	"simplenotes/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// maxDatumsPerPut is the PutMetricData per-request limit.
const maxDatumsPerPut = 1000

var outcomeMetric = map[string]string{
	billing.OutcomeSuccess: types.MetricReconcileSuccess,
	billing.OutcomeFailure: types.MetricReconcileFailure,
	billing.OutcomeSkipped: types.MetricReconcileSkipped,
}

type metricKey struct {
	name    string
	trigger types.ReconcileTrigger
}

// CloudWatchMetrics buffers reconciliation counters for one invocation and
// publishes them with Flush. It implements billing.Recorder.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	mu     sync.Mutex
	counts map[metricKey]float64
}

var _ billing.Recorder = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics for namespace. An empty
// namespace uses types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		counts:    make(map[metricKey]float64),
	}
}

// RecordReconcile counts one reconciliation outcome.
func (m *CloudWatchMetrics) RecordReconcile(trigger types.ReconcileTrigger, outcome string) {
	name, ok := outcomeMetric[outcome]
	if !ok {
		return
	}
	m.add(metricKey{name: name, trigger: trigger}, 1)
}

// RecordSweepCandidates records how many stale records a sweep selected.
func (m *CloudWatchMetrics) RecordSweepCandidates(n int) {
	m.add(metricKey{name: types.MetricSweepCandidates, trigger: types.TriggerSweep}, float64(n))
}

func (m *CloudWatchMetrics) add(k metricKey, v float64) {
	m.mu.Lock()
	m.counts[k] += v
	m.mu.Unlock()
}

// Flush publishes and resets the buffered counters. Publishing failures are
// logged, not returned, so metrics never fail an invocation.
func (m *CloudWatchMetrics) Flush(ctx context.Context) {
	m.mu.Lock()
	counts := m.counts
	m.counts = make(map[metricKey]float64)
	m.mu.Unlock()

	if len(counts) == 0 {
		return
	}

	keys := make([]metricKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].trigger < keys[j].trigger
	})

	data := make([]cwtypes.MetricDatum, 0, len(keys))
	for _, k := range keys {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(k.name),
			Value:      aws.Float64(counts[k]),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String(types.DimTrigger),
					Value: aws.String(string(k.trigger)),
				},
			},
		})
	}

	for start := 0; start < len(data); start += maxDatumsPerPut {
		end := min(start+maxDatumsPerPut, len(data))
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to publish reconcile metrics",
				"error", err,
				"datums", end-start,
			)
		}
	}
}
