package otel

import (
	"context"
	"testing"
	"time"
)

func TestInitMetricsRecord(t *testing.T) {
	ctx := context.Background()
	h, err := InitMeterProvider(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if h == nil {
		t.Fatal("want non-nil /metrics handler")
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordQueueOp(ctx, "enqueue")
	RecordDispatch(ctx, "success", 100*time.Millisecond)
	RecordScan(ctx, 50*time.Millisecond)
	RecordTrackerCall(ctx, "create_issue")
}

func TestInitMetricsWithBucketCount(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "bucket-test")
	err := InitMetricsWithBucketCount(ctx, func() (pending, active, completed, failed int64) {
		return 4, 1, 2, 0
	})
	if err != nil {
		t.Fatalf("InitMetricsWithBucketCount: %v", err)
	}
}

func TestInitMetricsWithBucketCountNilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "bucket-nil-test")
	if err := InitMetricsWithBucketCount(ctx, nil); err != nil {
		t.Fatalf("InitMetricsWithBucketCount(nil): %v", err)
	}
}
