package adapters

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/context/ctxhttp"

	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

// Bidders participate in auctions.
type Bidder interface {
	// Bid gets the bids from this bidder for the given request.
	//
	// A Bidder *may* return two non-nil values here. Errors should describe situations which
	// make the bid (or no-bid) "less than ideal." Common examples include:
	//
	// 1. HTTP connection issues.
	// 2. Bid requests with media types which this Bidder doesn't support.
	// 3. The Context expired before all expected bids were returned.
	// 4. The Server sent back an unexpected Response, so some bids were ignored.
	//
	// Any errors will be user-facing... so the error messages should help publishers understand
	// what might account for "bad" bids.
	Bid(ctx context.Context, request *pbs.BidderRequest) (*SeatBid, []error)
}

// SeatBid is everything a Bidder produced for one bidder request.
type SeatBid struct {
	// Bids is the list of bids in this SeatBid. It is empty when the bidder had nothing to offer.
	Bids []*BidResult
	// HttpCalls holds the debug info of every server call, and is filled only for debug requests.
	HttpCalls []*openrtb_ext.ExtHttpCall
}

// AdaptBidder bridges the APIs between a Bidder and an Adapter.
//
// The server calls are made with the given client, and bounded only by the caller's context.
func AdaptBidder(adapter Adapter, client *http.Client, name openrtb_ext.BidderName, me metrics.MetricsEngine) Bidder {
	return &bidderAdapter{
		Adapter: adapter,
		Client:  client,
		Name:    name,
		me:      me,
	}
}

type bidderAdapter struct {
	Adapter Adapter
	Client  *http.Client
	Name    openrtb_ext.BidderName
	me      metrics.MetricsEngine
}

func (bidder *bidderAdapter) Bid(ctx context.Context, request *pbs.BidderRequest) (*SeatBid, []error) {
	start := time.Now()
	labels := metrics.AdapterLabels{
		RType:         metrics.ReqTypeAuction,
		Adapter:       bidder.Name,
		AdapterBids:   metrics.AdapterBidNone,
		AdapterErrors: map[metrics.AdapterError]struct{}{},
	}

	seatBid, errs := bidder.bid(ctx, request)

	for _, err := range errs {
		labels.AdapterErrors[adapterErrorOf(err)] = struct{}{}
	}
	if len(seatBid.Bids) > 0 {
		labels.AdapterBids = metrics.AdapterBidPresent
	}
	bidder.me.RecordAdapterRequest(labels)
	bidder.me.RecordAdapterTime(labels, time.Since(start))
	for _, bid := range seatBid.Bids {
		bidder.me.RecordAdapterBidReceived(labels, bid.MediaType, bid.Ad != "" || bid.VastURL != "")
		bidder.me.RecordAdapterPrice(labels, bid.CPM)
	}

	return seatBid, errs
}

func (bidder *bidderAdapter) bid(ctx context.Context, request *pbs.BidderRequest) (*SeatBid, []error) {
	var errs []error
	validBids := make([]*pbs.BidRequest, 0, len(request.Bids))
	for _, bid := range request.Bids {
		if bidder.Adapter.IsBidRequestValid(bid) {
			validBids = append(validBids, bid)
		} else {
			errs = append(errs, &errortypes.BadInput{
				Message: fmt.Sprintf("ignoring bid id=%s, its params are not valid for %s", bid.BidID, bidder.Name),
			})
		}
	}

	seatBid := &SeatBid{
		Bids: make([]*BidResult, 0, len(validBids)),
	}
	if len(validBids) == 0 {
		return seatBid, errs
	}

	reqData, buildErrs := bidder.Adapter.BuildRequests(validBids, request)
	errs = append(errs, buildErrs...)
	if len(reqData) == 0 {
		if len(errs) == 0 {
			errs = append(errs, &errortypes.FailedToRequestBids{Message: "The adapter failed to generate any bid requests, but also failed to generate an error explaining why"})
		}
		return seatBid, errs
	}

	// Make any HTTP requests in parallel.
	// If the bidder only needs to make one, save some cycles by just using the current one.
	responseChannel := make(chan *httpCallInfo, len(reqData))
	if len(reqData) == 1 {
		responseChannel <- bidder.doRequest(ctx, reqData[0])
	} else {
		for _, oneReqData := range reqData {
			go func(data *RequestData) {
				responseChannel <- bidder.doRequest(ctx, data)
			}(oneReqData) // Method arg avoids a race condition on oneReqData
		}
	}

	// If the bidder made multiple requests, we still want them to enter as many bids as possible...
	// even if the context expires sometime halfway through.
	for i := 0; i < len(reqData); i++ {
		httpInfo := <-responseChannel
		if request.Debug {
			seatBid.HttpCalls = append(seatBid.HttpCalls, makeExt(httpInfo))
		}

		if httpInfo.err == nil {
			bids, moreErrs := bidder.Adapter.InterpretResponse(httpInfo.response, request)
			errs = append(errs, moreErrs...)
			seatBid.Bids = append(seatBid.Bids, bids...)
		} else {
			errs = append(errs, httpInfo.err)
		}
	}

	return seatBid, errs
}

// makeExt transforms information about the HTTP call into the contract class for the debug response.
func makeExt(httpInfo *httpCallInfo) *openrtb_ext.ExtHttpCall {
	ext := &openrtb_ext.ExtHttpCall{
		Uri:            httpInfo.request.URL(),
		RequestHeaders: httpInfo.request.Headers,
	}
	if httpInfo.response != nil {
		ext.ResponseBody = string(httpInfo.response.Body)
		ext.Status = httpInfo.response.StatusCode
	}
	return ext
}

// doRequest makes a request, handles the response, and returns the data needed by the
// Adapter interface.
func (bidder *bidderAdapter) doRequest(ctx context.Context, req *RequestData) *httpCallInfo {
	httpReq, err := http.NewRequest(req.Method, req.URL(), nil)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
	}

	httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
	if err != nil {
		if err == context.DeadlineExceeded {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := ioutil.ReadAll(httpResp.Body)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 400 {
		glog.V(2).Infof("%s responded with status %d to %s", bidder.Name, httpResp.StatusCode, req.URL())
		err = &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Server responded with failure status: %d. Set debug=1 for debugging info.", httpResp.StatusCode),
		}
	}

	return &httpCallInfo{
		request: req,
		response: &ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
		err: err,
	}
}

type httpCallInfo struct {
	request  *RequestData
	response *ResponseData
	err      error
}

func adapterErrorOf(err error) metrics.AdapterError {
	switch err.(type) {
	case *errortypes.BadInput:
		return metrics.AdapterErrorBadInput
	case *errortypes.BadServerResponse:
		return metrics.AdapterErrorBadServerResponse
	case *errortypes.Timeout:
		return metrics.AdapterErrorTimeout
	default:
		return metrics.AdapterErrorUnknown
	}
}
