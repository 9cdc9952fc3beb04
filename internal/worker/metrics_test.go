package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"simplenotes/internal/billing"
	"simplenotes/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestCloudWatchMetrics_FlushAggregates(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewCloudWatchMetrics(cw, "", nil)

	m.RecordReconcile(types.TriggerQueue, billing.OutcomeSuccess)
	m.RecordReconcile(types.TriggerQueue, billing.OutcomeSuccess)
	m.RecordReconcile(types.TriggerSweep, billing.OutcomeFailure)
	m.RecordReconcile(types.TriggerSweep, "bogus")
	m.RecordSweepCandidates(7)

	m.Flush(context.Background())

	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.inputs))
	}
	in := cw.inputs[0]
	if *in.Namespace != types.MetricNamespace {
		t.Errorf("namespace = %q", *in.Namespace)
	}
	if len(in.MetricData) != 3 {
		t.Fatalf("expected 3 datums, got %d", len(in.MetricData))
	}

	got := make(map[string]float64)
	for _, d := range in.MetricData {
		if len(d.Dimensions) != 1 || *d.Dimensions[0].Name != types.DimTrigger {
			t.Errorf("datum %s missing trigger dimension", *d.MetricName)
			continue
		}
		got[*d.MetricName+"/"+*d.Dimensions[0].Value] = *d.Value
	}
	want := map[string]float64{
		types.MetricReconcileSuccess + "/queue": 2,
		types.MetricReconcileFailure + "/sweep": 1,
		types.MetricSweepCandidates + "/sweep":  7,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestCloudWatchMetrics_FlushResetsAndSkipsEmpty(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewCloudWatchMetrics(cw, "Custom", nil)

	m.Flush(context.Background())
	if len(cw.inputs) != 0 {
		t.Fatal("empty flush must not call CloudWatch")
	}

	m.RecordReconcile(types.TriggerWebhook, billing.OutcomeSkipped)
	m.Flush(context.Background())
	m.Flush(context.Background())
	if len(cw.inputs) != 1 {
		t.Errorf("expected counters reset after flush, got %d calls", len(cw.inputs))
	}
	if *cw.inputs[0].Namespace != "Custom" {
		t.Errorf("namespace = %q, want Custom", *cw.inputs[0].Namespace)
	}
}

func TestCloudWatchMetrics_ErrorSwallowed(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchMetrics(cw, "", nil)

	m.RecordReconcile(types.TriggerManual, billing.OutcomeSuccess)
	m.Flush(context.Background())

	if len(cw.inputs) != 1 {
		t.Errorf("expected one attempt, got %d", len(cw.inputs))
	}
}
