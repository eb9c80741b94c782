package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"envmonitor-service/internal/models"
)

func TestUpdateChannelMetrics(t *testing.T) {
	mean := 21.5
	UpdateChannelMetrics("dev-metrics", map[models.Channel]models.ChannelStatistics{
		models.Temperature: {Mean: &mean, Trend: 0.4},
		models.Humidity:    {Trend: 0},
	})

	assert.Equal(t, 21.5, testutil.ToFloat64(ChannelMean.WithLabelValues("dev-metrics", "temperature")))
	assert.Equal(t, 0.4, testutil.ToFloat64(ChannelTrend.WithLabelValues("dev-metrics", "temperature")))
	assert.False(t, ChannelMean.DeleteLabelValues("dev-metrics", "humidity"), "absent mean must not be exported")
}
