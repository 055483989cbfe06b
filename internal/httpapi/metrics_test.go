package httpapi

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"modelhost/internal/manager"
)

func TestIncrementBackpressure_IncrementsCounter(t *testing.T) {
	baseline := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue"))
	IncrementBackpressure("queue")
	IncrementBackpressure("queue")
	if got := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue")); got != baseline+2 {
		t.Fatalf("expected %v, got %v", baseline+2, got)
	}

	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	IncrementBackpressure("")
	if after := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified")); after != before+1 {
		t.Fatalf("unspecified reason: before=%v after=%v", before, after)
	}
}

func TestMetricsPublisher_LoadEvents(t *testing.T) {
	var p MetricsPublisher
	okBefore := testutil.ToFloat64(loadAttemptsTotal.WithLabelValues("cpu", "ok"))
	failBefore := testutil.ToFloat64(loadAttemptsTotal.WithLabelValues("cuda", "session_build_failed"))
	readyBefore := testutil.ToFloat64(loadsTotal.WithLabelValues("ready"))
	probeBefore := testutil.ToFloat64(probeTotal.WithLabelValues("unconfirmed"))

	p.Publish(manager.Event{Name: "load_attempt_result", Fields: map[string]any{"backend": "cuda", "success": false, "kind": "session_build_failed"}})
	p.Publish(manager.Event{Name: "load_attempt_result", Fields: map[string]any{"backend": "cpu", "success": true, "kind": ""}})
	p.Publish(manager.Event{Name: "probe_result", Fields: map[string]any{"confirmed": false}})
	p.Publish(manager.Event{Name: "load_ready", Fields: map[string]any{"backend": "cpu"}})

	if got := testutil.ToFloat64(loadAttemptsTotal.WithLabelValues("cuda", "session_build_failed")); got != failBefore+1 {
		t.Fatalf("failed attempts=%v", got)
	}
	if got := testutil.ToFloat64(loadAttemptsTotal.WithLabelValues("cpu", "ok")); got != okBefore+1 {
		t.Fatalf("ok attempts=%v", got)
	}
	if got := testutil.ToFloat64(loadsTotal.WithLabelValues("ready")); got != readyBefore+1 {
		t.Fatalf("ready loads=%v", got)
	}
	if got := testutil.ToFloat64(probeTotal.WithLabelValues("unconfirmed")); got != probeBefore+1 {
		t.Fatalf("unconfirmed probes=%v", got)
	}
}

func TestMetricsPublisher_DownloadEvents(t *testing.T) {
	var p MetricsPublisher
	bytesBefore := testutil.ToFloat64(downloadBytesTotal)
	doneBefore := testutil.ToFloat64(downloadsTotal.WithLabelValues("done"))
	cancelBefore := testutil.ToFloat64(downloadsTotal.WithLabelValues("cancelled"))

	p.Publish(manager.Event{Name: "download_done", Fields: map[string]any{"bytes": int64(2048)}})
	p.Publish(manager.Event{Name: "download_failed", Fields: map[string]any{"status": "cancelled"}})

	if got := testutil.ToFloat64(downloadBytesTotal); got != bytesBefore+2048 {
		t.Fatalf("bytes=%v", got)
	}
	if got := testutil.ToFloat64(downloadsTotal.WithLabelValues("done")); got != doneBefore+1 {
		t.Fatalf("done=%v", got)
	}
	if got := testutil.ToFloat64(downloadsTotal.WithLabelValues("cancelled")); got != cancelBefore+1 {
		t.Fatalf("cancelled=%v", got)
	}
}
