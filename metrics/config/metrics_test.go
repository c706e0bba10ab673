package config

import (
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"

	mainConfig "github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	prometheusmetrics "github.com/vertamedia/vertamedia-pbs/metrics/prometheus"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// Start a simple test to insure we get valid MetricsEngines for various configurations
func TestDummyMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	adapterList := make([]openrtb_ext.BidderName, 0, 2)
	testEngine := NewMetricsEngine(&cfg, adapterList)
	_, ok := testEngine.MetricsEngine.(*DummyMetricsEngine)
	if !ok {
		t.Error("Expected a DummyMetricsEngine, but didn't get it")
	}
}

func TestGoMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	cfg.Metrics.Influxdb.Host = "localhost"
	cfg.Metrics.Influxdb.MetricSendInterval = 20
	adapterList := make([]openrtb_ext.BidderName, 0, 2)
	testEngine := NewMetricsEngine(&cfg, adapterList)
	_, ok := testEngine.MetricsEngine.(*metrics.Metrics)
	if !ok {
		t.Error("Expected a legacy Metrics as MetricsEngine, but didn't get it")
	}
}

func TestPrometheusMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	cfg.Metrics.Prometheus.Port = 9100
	testEngine := NewMetricsEngine(&cfg, openrtb_ext.CoreBidderNames())
	_, ok := testEngine.MetricsEngine.(*prometheusmetrics.Metrics)
	assert.True(t, ok, "Expected a Prometheus Metrics as MetricsEngine")
	assert.NotNil(t, testEngine.PrometheusMetrics)
	assert.Nil(t, testEngine.GoMetrics)
}

// Test the multiengine
func TestMultiMetricsEngine(t *testing.T) {
	adapterList := openrtb_ext.CoreBidderNames()
	goEngine := metrics.NewMetrics(gometrics.NewPrefixedRegistry("vertamedia."), adapterList)
	engineList := make(MultiMetricsEngine, 2)
	engineList[0] = goEngine
	engineList[1] = &DummyMetricsEngine{}
	var metricsEngine metrics.MetricsEngine
	metricsEngine = &engineList
	labels := metrics.Labels{
		RType:         metrics.ReqTypeAuction,
		Browser:       metrics.BrowserSafari,
		RequestStatus: metrics.RequestStatusOK,
	}
	vertamediaLabels := metrics.AdapterLabels{
		RType:       metrics.ReqTypeAuction,
		Adapter:     openrtb_ext.BidderVertamedia,
		AdapterBids: metrics.AdapterBidPresent,
	}
	for i := 0; i < 5; i++ {
		metricsEngine.RecordRequest(labels)
		metricsEngine.RecordRequestTime(labels, time.Millisecond*20)
		metricsEngine.RecordAdapterRequest(vertamediaLabels)
		metricsEngine.RecordAdapterPrice(vertamediaLabels, 1.34)
		metricsEngine.RecordAdapterBidReceived(vertamediaLabels, openrtb_ext.BidTypeVideo, true)
		metricsEngine.RecordAdapterTime(vertamediaLabels, time.Millisecond*20)
	}
	metricsEngine.RecordConnectionAccept(true)
	metricsEngine.RecordConnectionAccept(false)

	VerifyMetrics(t, "RequestStatuses.Auction.OK", goEngine.RequestStatuses[metrics.ReqTypeAuction][metrics.RequestStatusOK].Count(), 5)
	VerifyMetrics(t, "SafariRequestMeter", goEngine.SafariRequestMeter.Count(), 5)
	VerifyMetrics(t, "AdapterMetrics.Vertamedia.RequestMeter", goEngine.AdapterMetrics[openrtb_ext.BidderVertamedia].RequestMeter.Count(), 5)
	VerifyMetrics(t, "AdapterMetrics.Vertamedia.NoBidMeter", goEngine.AdapterMetrics[openrtb_ext.BidderVertamedia].NoBidMeter.Count(), 0)
	VerifyMetrics(t, "AdapterMetrics.Vertamedia.BidsReceivedMeter", goEngine.AdapterMetrics[openrtb_ext.BidderVertamedia].BidsReceivedMeter.Count(), 5)
	VerifyMetrics(t, "AdapterMetrics.Vertamedia.MarkupMetrics.Video.MarkupMeter", goEngine.AdapterMetrics[openrtb_ext.BidderVertamedia].MarkupMetrics[openrtb_ext.BidTypeVideo].MarkupMeter.Count(), 5)
	VerifyMetrics(t, "AdapterMetrics.Vertamedia.PriceHistogram", goEngine.AdapterMetrics[openrtb_ext.BidderVertamedia].PriceHistogram.Count(), 5)
	VerifyMetrics(t, "ConnectionAcceptErrorMeter", goEngine.ConnectionAcceptErrorMeter.Count(), 1)
	VerifyMetrics(t, "ConnectionCounter", goEngine.ConnectionCounter.Count(), 1)
}

func VerifyMetrics(t *testing.T, name string, actual int64, expected int64) {
	t.Helper()
	if expected != actual {
		t.Errorf("Error in metric %s: expected %d, got %d.", name, expected, actual)
	}
}
