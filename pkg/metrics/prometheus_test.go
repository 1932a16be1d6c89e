package metrics

import (
	"testing"

	"EffortLab/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordTrial(models.ActionAvoid, models.ResultSuccess)
	r.RecordTrial(models.ActionAvoid, models.ResultNone)
	r.RecordTrial(models.ActionAvoid, models.ResultNone)
	r.RecordMarker(models.MarkerEffortSuccess, false)
	r.RecordMessageSent("sqlite")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.trials.WithLabelValues("avoid", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.trials.WithLabelValues("avoid", "reject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.markers.WithLabelValues("effort_success", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("sqlite")))
}

func TestRecordersDoNotCollideAcrossRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
