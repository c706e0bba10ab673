package metrics

import (
	"time"

	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// Labels defines the labels that can be attached to the metrics.
type Labels struct {
	RType         RequestType
	Browser       Browser
	RequestStatus RequestStatus
}

// AdapterLabels defines the labels that can be attached to the adapter metrics.
type AdapterLabels struct {
	RType         RequestType
	Adapter       openrtb_ext.BidderName
	AdapterBids   AdapterBid
	AdapterErrors map[AdapterError]struct{}
}

// Label typecasting. Se below the type definitions for possible values

// RequestType : Request type enumeration
type RequestType string

// Browser type enumeration
type Browser string

// RequestStatus : The request return status
type RequestStatus string

// AdapterBid : Whether or not the adapter returned bids
type AdapterBid string

// AdapterError : Errors which may have occurred during the adapter's execution
type AdapterError string

// The request types (endpoints)
const (
	ReqTypeRequests RequestType = "requests"
	ReqTypeBids     RequestType = "bids"
	ReqTypeAuction  RequestType = "auction"
)

func RequestTypes() []RequestType {
	return []RequestType{
		ReqTypeRequests,
		ReqTypeBids,
		ReqTypeAuction,
	}
}

// Browser flag; at this point we only care about identifying Safari
const (
	BrowserSafari Browser = "safari"
	BrowserOther  Browser = "other"
)

func BrowserTypes() []Browser {
	return []Browser{
		BrowserSafari,
		BrowserOther,
	}
}

// Request/return status
const (
	RequestStatusOK       RequestStatus = "ok"
	RequestStatusBadInput RequestStatus = "badinput"
	RequestStatusErr      RequestStatus = "err"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
	}
}

// Adapter bid repsonse status.
const (
	AdapterBidPresent AdapterBid = "bid"
	AdapterBidNone    AdapterBid = "nobid"
)

func AdapterBids() []AdapterBid {
	return []AdapterBid{
		AdapterBidPresent,
		AdapterBidNone,
	}
}

// Adapter execution status
const (
	AdapterErrorBadInput          AdapterError = "badinput"
	AdapterErrorBadServerResponse AdapterError = "badserverresponse"
	AdapterErrorTimeout           AdapterError = "timeout"
	AdapterErrorUnknown           AdapterError = "unknown_error"
)

func AdapterErrors() []AdapterError {
	return []AdapterError{
		AdapterErrorBadInput,
		AdapterErrorBadServerResponse,
		AdapterErrorTimeout,
		AdapterErrorUnknown,
	}
}

// MetricsEngine is a generic interface to record metrics into the desired backend
// The first three metrics function fire exactly once per request, with the labels describing
// the request as a whole. The adapter functions fire once per call made to a bidder.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordRequest(labels Labels)
	RecordRequestTime(labels Labels, length time.Duration)
	RecordAdapterRequest(labels AdapterLabels)
	RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasMarkup bool)
	RecordAdapterPrice(labels AdapterLabels, cpm float64)
	RecordAdapterTime(labels AdapterLabels, length time.Duration)
}
