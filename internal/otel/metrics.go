package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce  sync.Once
	queueOpsCounter  metric.Int64Counter
	dispatchCounter  metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	scanDuration     metric.Float64Histogram
	trackerCalls     metric.Int64Counter
)

// InitMetrics creates the meter instruments. Safe to call multiple times;
// only runs once. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		queueOpsCounter, err = m.Int64Counter("specq_queue_operations_total",
			metric.WithDescription("Total queue operations (enqueue, claim, requeue, complete, escalate)"))
		if err != nil {
			return
		}
		dispatchCounter, err = m.Int64Counter("specq_dispatches_total",
			metric.WithDescription("Total worker dispatches by terminal class"))
		if err != nil {
			return
		}
		dispatchDuration, err = m.Float64Histogram("specq_dispatch_duration_seconds",
			metric.WithDescription("Worker run duration in seconds"))
		if err != nil {
			return
		}
		scanDuration, err = m.Float64Histogram("specq_scan_duration_seconds",
			metric.WithDescription("Corpus scan duration in seconds"))
		if err != nil {
			return
		}
		trackerCalls, err = m.Int64Counter("specq_tracker_requests_total",
			metric.WithDescription("Total tracker API operations"))
	})
	return err
}

// RecordQueueOp records one queue mutation.
func RecordQueueOp(ctx context.Context, op string) {
	if queueOpsCounter == nil {
		return
	}
	queueOpsCounter.Add(ctx, 1, metric.WithAttributes(AttrOp.String(op)))
}

// RecordDispatch records one worker run and its terminal class.
func RecordDispatch(ctx context.Context, class string, duration time.Duration) {
	if dispatchCounter != nil {
		dispatchCounter.Add(ctx, 1, metric.WithAttributes(AttrClass.String(class)))
	}
	if dispatchDuration != nil {
		dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrClass.String(class)))
	}
}

// RecordScan records one corpus scan.
func RecordScan(ctx context.Context, duration time.Duration) {
	if scanDuration != nil {
		scanDuration.Record(ctx, duration.Seconds())
	}
}

// RecordTrackerCall records one tracker API operation.
func RecordTrackerCall(ctx context.Context, op string) {
	if trackerCalls != nil {
		trackerCalls.Add(ctx, 1, metric.WithAttributes(AttrOp.String(op)))
	}
}

// BucketCountFunc returns (pending, active, completed, failed) counts for
// the queue-size gauge.
type BucketCountFunc func() (pending, active, completed, failed int64)

// InitMetricsWithBucketCount creates instruments and registers a gauge
// callback sampling the queue buckets. If bucketCount is nil, the gauge is
// not reported.
func InitMetricsWithBucketCount(ctx context.Context, bucketCount BucketCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if bucketCount == nil {
		return nil
	}
	m := Meter()
	gauge, err := m.Float64ObservableGauge("specq_queue_items",
		metric.WithDescription("Number of work items by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		pending, active, completed, failed := bucketCount()
		o.ObserveFloat64(gauge, float64(pending), metric.WithAttributes(AttrStatus.String("pending")))
		o.ObserveFloat64(gauge, float64(active), metric.WithAttributes(AttrStatus.String("active")))
		o.ObserveFloat64(gauge, float64(completed), metric.WithAttributes(AttrStatus.String("completed")))
		o.ObserveFloat64(gauge, float64(failed), metric.WithAttributes(AttrStatus.String("failed")))
		return nil
	}, gauge)
	return err
}
