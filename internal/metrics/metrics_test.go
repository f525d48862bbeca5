package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := New()

	require.NoError(t, c.Register(reg))
	require.NoError(t, c.Register(reg), "registering twice is a no-op")

	c.PlanCacheRequestsTotal.WithLabelValues(Hit).Inc()
	c.PlanCacheRequestsTotal.WithLabelValues(Hit).Inc()
	c.PlanCacheRequestsTotal.WithLabelValues(Miss).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.PlanCacheRequestsTotal.WithLabelValues(Hit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PlanCacheRequestsTotal.WithLabelValues(Miss)))

	n, err := testutil.GatherAndCount(reg, PlanCacheRequestsTotalKey)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, Ok, Status(nil))
	assert.Equal(t, Fail, Status(errors.New("boom")))
}
