package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bookflow/logger"
)

type nopPutter struct{}

func (nopPutter) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func captureBatches(t *testing.T, interval time.Duration, now *time.Time) *[][]cwtypes.MetricDatum {
	t.Helper()
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: nopPutter{}, namespace: "Test"})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = interval
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	timeNow = func() time.Time { return *now }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return &batches
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	now := time.Now()
	batches := captureBatches(t, 50*time.Millisecond, &now)

	publishMetricDatum("test", "days", 1, logger.Fields{"unit": "count"})
	now = now.Add(25 * time.Millisecond)
	publishMetricDatum("test", "days", 2, logger.Fields{"unit": "count"})

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}
	datum := (*batches)[0][0]
	if datum.MetricName == nil || *datum.MetricName != "days" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	now := time.Now()
	batches := captureBatches(t, 50*time.Millisecond, &now)

	publishMetricDatum("test", "days", 1, logger.Fields{"venue": "bybit"})
	now = now.Add(75 * time.Millisecond)
	publishMetricDatum("test", "days", 2, logger.Fields{"venue": "bybit"})

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	second := (*batches)[1][0]
	if second.Value == nil || *second.Value != 2 {
		t.Fatalf("unexpected metric value: %v", second.Value)
	}
	if len(second.Dimensions) != 2 || *second.Dimensions[1].Name != "venue" {
		t.Fatalf("unexpected dimensions: %+v", second.Dimensions)
	}
}

func TestPublishSummarySortsAndBypassesInterval(t *testing.T) {
	now := time.Now()
	batches := captureBatches(t, time.Hour, &now)

	PublishSummary(context.Background(), "binance", map[string]float64{"records": 1440, "days": 1})
	PublishSummary(context.Background(), "binance", map[string]float64{"days": 2})

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	first := (*batches)[0]
	if len(first) != 2 || *first[0].MetricName != "days" || *first[1].MetricName != "records" {
		t.Fatalf("unexpected summary batch: %+v", first)
	}
}

func TestPublishDisabledWithoutClient(t *testing.T) {
	now := time.Now()
	batches := captureBatches(t, 0, &now)
	cwState.Store(&cloudWatchState{})

	EmitMetric(nil, "test", "days", 1, "counter", nil)
	PublishSummary(context.Background(), "bybit", map[string]float64{"days": 1})
	if len(*batches) != 0 {
		t.Fatalf("expected no publishes, got %d", len(*batches))
	}
}
