package prometheusmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

func createMetricsForTesting() *Metrics {
	return NewMetrics(config.PrometheusMetrics{
		Port:      8080,
		Namespace: "prebid",
		Subsystem: "server",
	})
}

func TestMetricsAreRegistered(t *testing.T) {
	m := createMetricsForTesting()
	m.RecordConnectionAccept(true)

	families, err := m.Gatherer.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["prebid_server_active_connections"])
}

func TestConnectionMetrics(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordConnectionAccept(true)
	m.RecordConnectionAccept(true)
	m.RecordConnectionClose(true)
	m.RecordConnectionAccept(false)
	m.RecordConnectionClose(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.connCounter))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connError.With(prometheus.Labels{connectionLabel: connectionAcceptError})))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connError.With(prometheus.Labels{connectionLabel: connectionCloseError})))
}

func TestRequestMetric(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRequest(metrics.Labels{RType: metrics.ReqTypeAuction, RequestStatus: metrics.RequestStatusOK, Browser: metrics.BrowserSafari})
	m.RecordRequest(metrics.Labels{RType: metrics.ReqTypeAuction, RequestStatus: metrics.RequestStatusOK})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.With(prometheus.Labels{
		requestTypeLabel:   string(metrics.ReqTypeAuction),
		requestStatusLabel: string(metrics.RequestStatusOK),
		browserLabel:       string(metrics.BrowserSafari),
	})))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.With(prometheus.Labels{
		requestTypeLabel:   string(metrics.ReqTypeAuction),
		requestStatusLabel: string(metrics.RequestStatusOK),
		browserLabel:       string(metrics.BrowserOther),
	})))
}

func TestAdapterMetrics(t *testing.T) {
	m := createMetricsForTesting()
	labels := metrics.AdapterLabels{
		RType:       metrics.ReqTypeAuction,
		Adapter:     openrtb_ext.BidderVertamedia,
		AdapterBids: metrics.AdapterBidPresent,
		AdapterErrors: map[metrics.AdapterError]struct{}{
			metrics.AdapterErrorBadServerResponse: {},
		},
	}

	m.RecordAdapterRequest(labels)
	m.RecordAdapterBidReceived(labels, openrtb_ext.BidTypeVideo, true)
	m.RecordAdapterPrice(labels, 0.9)
	m.RecordAdapterTime(labels, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.adapterRequests.With(prometheus.Labels{
		adapterLabel:     "vertamedia",
		requestTypeLabel: string(metrics.ReqTypeAuction),
		hasBidsLabel:     "true",
	})))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.adapterErrors.With(prometheus.Labels{
		adapterLabel:      "vertamedia",
		adapterErrorLabel: string(metrics.AdapterErrorBadServerResponse),
	})))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.adapterBids.With(prometheus.Labels{
		adapterLabel: "vertamedia",
		bidTypeLabel: "video",
		markupLabel:  "markup",
	})))
}
