package observability

import (
	"testing"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrameRelayed(18, 3)
	RecordFrameDropped("checksum_mismatch")
	RecordDestinationAdded()
	RecordDestinationEvicted()
	RecordSourceRejected()
	RecordConnThrottled("source")

	if MetricsHandler() == nil {
		t.Fatalf("expected metrics handler")
	}
}
