package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry
	Gatherer prometheus.Gatherer

	connCounter     prometheus.Gauge
	connError       *prometheus.CounterVec
	requests        *prometheus.CounterVec
	reqTimer        *prometheus.HistogramVec
	adapterRequests *prometheus.CounterVec
	adapterErrors   *prometheus.CounterVec
	adapterBids     *prometheus.CounterVec
	adapterPrices   *prometheus.HistogramVec
	adapterReqTimer *prometheus.HistogramVec
}

const (
	adapterLabel       = "adapter"
	adapterErrorLabel  = "adapter_error"
	bidTypeLabel       = "bid_type"
	browserLabel       = "browser"
	connectionLabel    = "connection_error"
	hasBidsLabel       = "has_bids"
	markupLabel        = "markup_delivery"
	requestStatusLabel = "request_status"
	requestTypeLabel   = "request_type"
)

const (
	connectionAcceptError = "accept"
	connectionCloseError  = "close"
)

// NewMetrics initializes a new Prometheus metrics instance with preloaded label values.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	standardTimeBuckets := []float64{0.05, 0.1, 0.15, 0.20, 0.25, 0.3, 0.4, 0.5, 0.75, 1}
	priceBuckets := prometheus.LinearBuckets(0.25, 0.25, 40)

	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Gatherer: reg,
	}

	m.connCounter = newGauge(cfg, reg,
		"active_connections",
		"Current number of active (open) connections.")

	m.connError = newCounter(cfg, reg,
		"connection_errors",
		"Count of errors for requests to this server.",
		[]string{connectionLabel})

	m.requests = newCounter(cfg, reg,
		"requests",
		"Count of total requests to this server labeled by type and status.",
		[]string{requestTypeLabel, requestStatusLabel, browserLabel})

	m.reqTimer = newHistogram(cfg, reg,
		"request_time_seconds",
		"Seconds to resolve successful requests labeled by type.",
		[]string{requestTypeLabel},
		standardTimeBuckets)

	m.adapterRequests = newCounter(cfg, reg,
		"adapter_requests",
		"Count of requests labeled by adapter and whether they returned bids.",
		[]string{adapterLabel, requestTypeLabel, hasBidsLabel})

	m.adapterErrors = newCounter(cfg, reg,
		"adapter_errors",
		"Count of errors labeled by adapter and error type.",
		[]string{adapterLabel, adapterErrorLabel})

	m.adapterBids = newCounter(cfg, reg,
		"adapter_bids",
		"Count of bids labeled by adapter, bid type and markup delivery.",
		[]string{adapterLabel, bidTypeLabel, markupLabel})

	m.adapterPrices = newHistogram(cfg, reg,
		"adapter_prices",
		"Monetary value of the bids labeled by adapter.",
		[]string{adapterLabel},
		priceBuckets)

	m.adapterReqTimer = newHistogram(cfg, reg,
		"adapter_request_time_seconds",
		"Seconds to resolve each successful request labeled by adapter.",
		[]string{adapterLabel},
		standardTimeBuckets)

	return m
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newGauge(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Gauge {
	opts := prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	gauge := prometheus.NewGauge(opts)
	registry.MustRegister(gauge)
	return gauge
}

func newHistogram(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogramVec(opts, labels)
	registry.MustRegister(histogram)
	return histogram
}

func (m *Metrics) RecordConnectionAccept(success bool) {
	if success {
		m.connCounter.Inc()
	} else {
		m.connError.With(prometheus.Labels{
			connectionLabel: connectionAcceptError,
		}).Inc()
	}
}

func (m *Metrics) RecordConnectionClose(success bool) {
	if success {
		m.connCounter.Dec()
	} else {
		m.connError.With(prometheus.Labels{
			connectionLabel: connectionCloseError,
		}).Inc()
	}
}

func (m *Metrics) RecordRequest(labels metrics.Labels) {
	browser := labels.Browser
	if browser == "" {
		browser = metrics.BrowserOther
	}
	m.requests.With(prometheus.Labels{
		requestTypeLabel:   string(labels.RType),
		requestStatusLabel: string(labels.RequestStatus),
		browserLabel:       string(browser),
	}).Inc()
}

func (m *Metrics) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	if labels.RequestStatus == metrics.RequestStatusOK {
		m.reqTimer.With(prometheus.Labels{
			requestTypeLabel: string(labels.RType),
		}).Observe(length.Seconds())
	}
}

func (m *Metrics) RecordAdapterRequest(labels metrics.AdapterLabels) {
	m.adapterRequests.With(prometheus.Labels{
		adapterLabel:     string(labels.Adapter),
		requestTypeLabel: string(labels.RType),
		hasBidsLabel:     strconv.FormatBool(labels.AdapterBids == metrics.AdapterBidPresent),
	}).Inc()

	for err := range labels.AdapterErrors {
		m.adapterErrors.With(prometheus.Labels{
			adapterLabel:      string(labels.Adapter),
			adapterErrorLabel: string(err),
		}).Inc()
	}
}

func (m *Metrics) RecordAdapterBidReceived(labels metrics.AdapterLabels, bidType openrtb_ext.BidType, hasMarkup bool) {
	markupDelivery := "nomarkup"
	if hasMarkup {
		markupDelivery = "markup"
	}
	m.adapterBids.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
		bidTypeLabel: string(bidType),
		markupLabel:  markupDelivery,
	}).Inc()
}

func (m *Metrics) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64) {
	m.adapterPrices.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
	}).Observe(cpm)
}

func (m *Metrics) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	if len(labels.AdapterErrors) == 0 {
		m.adapterReqTimer.With(prometheus.Labels{
			adapterLabel: string(labels.Adapter),
		}).Observe(length.Seconds())
	}
}
