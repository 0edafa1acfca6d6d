package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	// 重复注册不会 panic。
	Register(r)
	assert.Equal(t, prometheus.Registerer(r), GetRegisterer())

	RoundTripTotal.WithLabelValues(SuccessLabel, PhaseNone).Inc()
	RoundTripTotal.WithLabelValues(FailLabel, PhaseRead).Inc()
	RoundTripBytes.Observe(128)
	SessionCreated.WithLabelValues(RoleMarshaller, "fresh").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(RoundTripTotal.WithLabelValues(FailLabel, PhaseRead)))
	assert.Equal(t, 1, testutil.CollectAndCount(RoundTripBytes))

	families, err := r.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
