package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeIsSingleton(t *testing.T) {
	a := Initialize()
	b := Get()
	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.NotNil(t, a.ApplicationMetrics)
}

func TestRecordAward(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.XPAwardedTotal.WithLabelValues("review_created"))
	RecordAward("review_created", 30, []string{"critic_bronze"}, false)
	RecordAward("review_created", 30, nil, true)

	assert.Equal(t, before+30, testutil.ToFloat64(m.XPAwardedTotal.WithLabelValues("review_created")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.BadgesUnlockedTotal.WithLabelValues("critic_bronze")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.AwardDuplicates.WithLabelValues("review_created")), 1.0)
}

func TestRecordTriggerStatus(t *testing.T) {
	m := Get()
	RecordTrigger("reviews", "created", time.Millisecond, nil)
	RecordTrigger("reviews", "created", time.Millisecond, errors.New("boom"))

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.TriggerEventsTotal.WithLabelValues("reviews", "created", "success")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.TriggerEventsTotal.WithLabelValues("reviews", "created", "error")), 1.0)
}
