package metrics

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/rcrowley/go-metrics"

	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// Metrics is the go-metrics implementation of the MetricsEngine interface.
type Metrics struct {
	MetricsRegistry            metrics.Registry
	ConnectionCounter          metrics.Counter
	ConnectionAcceptErrorMeter metrics.Meter
	ConnectionCloseErrorMeter  metrics.Meter
	SafariRequestMeter         metrics.Meter
	RequestTimer               metrics.Timer
	RequestStatuses            map[RequestType]map[RequestStatus]metrics.Meter

	AdapterMetrics map[openrtb_ext.BidderName]*AdapterMetrics

	exchanges []openrtb_ext.BidderName
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	ErrorMeters       map[AdapterError]metrics.Meter
	NoBidMeter        metrics.Meter
	RequestMeter      metrics.Meter
	RequestTimer      metrics.Timer
	PriceHistogram    metrics.Histogram
	BidsReceivedMeter metrics.Meter
	MarkupMetrics     map[openrtb_ext.BidType]*MarkupDeliveryMetrics
}

// MarkupDeliveryMetrics counts bids of one media type by whether they carried a creative.
type MarkupDeliveryMetrics struct {
	MarkupMeter   metrics.Meter
	NoMarkupMeter metrics.Meter
}

// NewBlankMetrics creates a new Metrics object with all blank metrics object. This may also be useful for
// testing routines to ensure that no metrics are written anywhere.
func NewBlankMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:            registry,
		ConnectionCounter:          metrics.NilCounter{},
		ConnectionAcceptErrorMeter: blankMeter,
		ConnectionCloseErrorMeter:  blankMeter,
		SafariRequestMeter:         blankMeter,
		RequestTimer:               &metrics.NilTimer{},
		RequestStatuses:            make(map[RequestType]map[RequestStatus]metrics.Meter),

		AdapterMetrics: make(map[openrtb_ext.BidderName]*AdapterMetrics, len(exchanges)),

		exchanges: exchanges,
	}
	for _, a := range exchanges {
		newMetrics.AdapterMetrics[a] = makeBlankAdapterMetrics()
	}

	for _, t := range RequestTypes() {
		newMetrics.RequestStatuses[t] = make(map[RequestStatus]metrics.Meter)
		for _, s := range RequestStatuses() {
			newMetrics.RequestStatuses[t][s] = blankMeter
		}
	}

	return newMetrics
}

// NewMetrics creates a new Metrics object with needed metrics defined.
func NewMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	newMetrics := NewBlankMetrics(registry, exchanges)
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	newMetrics.ConnectionAcceptErrorMeter = metrics.GetOrRegisterMeter("connection_accept_errors", registry)
	newMetrics.ConnectionCloseErrorMeter = metrics.GetOrRegisterMeter("connection_close_errors", registry)
	newMetrics.SafariRequestMeter = metrics.GetOrRegisterMeter("safari_requests", registry)
	newMetrics.RequestTimer = metrics.GetOrRegisterTimer("request_time", registry)

	for _, a := range exchanges {
		registerAdapterMetrics(registry, "adapter", string(a), newMetrics.AdapterMetrics[a])
	}
	for typ, statusMap := range newMetrics.RequestStatuses {
		for stat := range statusMap {
			statusMap[stat] = metrics.GetOrRegisterMeter("requests."+string(stat)+"."+string(typ), registry)
		}
	}
	return newMetrics
}

func makeBlankAdapterMetrics() *AdapterMetrics {
	blankMeter := &metrics.NilMeter{}
	newAdapter := &AdapterMetrics{
		ErrorMeters:       make(map[AdapterError]metrics.Meter),
		NoBidMeter:        blankMeter,
		RequestMeter:      blankMeter,
		RequestTimer:      &metrics.NilTimer{},
		PriceHistogram:    &metrics.NilHistogram{},
		BidsReceivedMeter: blankMeter,
		MarkupMetrics:     make(map[openrtb_ext.BidType]*MarkupDeliveryMetrics),
	}
	for _, err := range AdapterErrors() {
		newAdapter.ErrorMeters[err] = blankMeter
	}
	for _, bidType := range openrtb_ext.BidTypes() {
		newAdapter.MarkupMetrics[bidType] = &MarkupDeliveryMetrics{
			MarkupMeter:   blankMeter,
			NoMarkupMeter: blankMeter,
		}
	}
	return newAdapter
}

func registerAdapterMetrics(registry metrics.Registry, adapterOrAccount string, exchange string, am *AdapterMetrics) {
	prefix := adapterOrAccount + "." + exchange
	am.NoBidMeter = metrics.GetOrRegisterMeter(prefix+".no_bid_requests", registry)
	am.RequestMeter = metrics.GetOrRegisterMeter(prefix+".requests", registry)
	am.RequestTimer = metrics.GetOrRegisterTimer(prefix+".request_time", registry)
	am.PriceHistogram = metrics.GetOrRegisterHistogram(prefix+".prices", registry, metrics.NewExpDecaySample(1028, 0.015))
	am.BidsReceivedMeter = metrics.GetOrRegisterMeter(prefix+".bids_received", registry)
	for err := range am.ErrorMeters {
		am.ErrorMeters[err] = metrics.GetOrRegisterMeter(fmt.Sprintf("%s.requests.%s", prefix, err), registry)
	}
	for bidType := range am.MarkupMetrics {
		am.MarkupMetrics[bidType] = &MarkupDeliveryMetrics{
			MarkupMeter:   metrics.GetOrRegisterMeter(prefix+"."+string(bidType)+".markup_bids_received", registry),
			NoMarkupMeter: metrics.GetOrRegisterMeter(prefix+"."+string(bidType)+".no_markup_bids_received", registry),
		}
	}
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordRequest(labels Labels) {
	if statuses, ok := me.RequestStatuses[labels.RType]; ok {
		if meter, ok := statuses[labels.RequestStatus]; ok {
			meter.Mark(1)
		}
	}
	if labels.Browser == BrowserSafari {
		me.SafariRequestMeter.Mark(1)
	}
}

// RecordRequestTime implements a part of the MetricsEngine interface. The calling code is responsible
// for determining the call duration.
func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	// Only record times for successful requests, as we don't have labels to screen out bad requests.
	if labels.RequestStatus == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

// RecordAdapterRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}

	am.RequestMeter.Mark(1)
	if labels.AdapterBids == AdapterBidNone {
		am.NoBidMeter.Mark(1)
	}
	for err := range labels.AdapterErrors {
		if meter, ok := am.ErrorMeters[err]; ok {
			meter.Mark(1)
		}
	}
}

// RecordAdapterBidReceived implements a part of the MetricsEngine interface.
func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasMarkup bool) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter bid metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}

	am.BidsReceivedMeter.Mark(1)
	if metricsForType, ok := am.MarkupMetrics[bidType]; ok {
		if hasMarkup {
			metricsForType.MarkupMeter.Mark(1)
		} else {
			metricsForType.NoMarkupMeter.Mark(1)
		}
	} else {
		glog.Errorf("bid/markup metrics map entry does not exist for type %s. This is a bug, and should be reported.", bidType)
	}
}

// RecordAdapterPrice implements a part of the MetricsEngine interface. The histogram is kept in
// thousandths of the currency unit, since go-metrics histograms only hold integers.
func (me *Metrics) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter price metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}
	am.PriceHistogram.Update(int64(cpm * 1000))
}

// RecordAdapterTime implements a part of the MetricsEngine interface. Records the adapter response time
func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	am, ok := me.AdapterMetrics[labels.Adapter]
	if !ok {
		glog.Errorf("Trying to run adapter latency metrics on %s: adapter metrics not found", string(labels.Adapter))
		return
	}
	// Adapter metrics
	am.RequestTimer.Update(length)
}
