package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

// auctionServer answers with one display bid per call, except for the callback ids "nobid" and "fail".
func auctionServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callbackID := r.URL.Query().Get("callbackId")
		switch callbackID {
		case "nobid":
			w.WriteHeader(http.StatusNoContent)
		case "fail":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("internal error"))
		default:
			fmt.Fprintf(w, `[{"requestId":"%s","cpm":1.5,"mediaType":"display","ad":"<div/>"}]`, callbackID)
		}
	}))
}

func newTestBidder(t *testing.T, adapter Adapter) (Bidder, *metrics.Metrics) {
	t.Helper()
	me := metrics.NewMetrics(gometrics.NewRegistry(), openrtb_ext.CoreBidderNames())
	return AdaptBidder(adapter, http.DefaultClient, openrtb_ext.BidderVertamedia, me), me
}

func bidderRequest(bidIDs ...string) *pbs.BidderRequest {
	request := &pbs.BidderRequest{BidderCode: "vertamedia"}
	for _, id := range bidIDs {
		request.Bids = append(request.Bids, &pbs.BidRequest{BidID: id, Params: json.RawMessage(`{"aid":1}`)})
	}
	return request
}

func TestSingleRequest(t *testing.T) {
	server := auctionServer()
	defer server.Close()
	bidder, me := newTestBidder(t, &echoAdapter{endpoint: server.URL})

	seatBid, errs := bidder.Bid(context.Background(), bidderRequest("bid-1"))
	assert.Empty(t, errs)
	require.Len(t, seatBid.Bids, 1)
	assert.Equal(t, "bid-1", seatBid.Bids[0].RequestID)
	assert.Equal(t, 1.5, seatBid.Bids[0].CPM)
	assert.Empty(t, seatBid.HttpCalls, "server calls are only captured for debug requests")

	am := me.AdapterMetrics[openrtb_ext.BidderVertamedia]
	assert.Equal(t, int64(1), am.RequestMeter.Count())
	assert.Equal(t, int64(0), am.NoBidMeter.Count())
	assert.Equal(t, int64(1), am.BidsReceivedMeter.Count())
	assert.Equal(t, int64(1), am.MarkupMetrics[openrtb_ext.BidTypeDisplay].MarkupMeter.Count())
	assert.Equal(t, int64(1500), am.PriceHistogram.Max())
	assert.Equal(t, int64(1), am.RequestTimer.Count())
}

func TestMultipleRequests(t *testing.T) {
	server := auctionServer()
	defer server.Close()
	bidder, me := newTestBidder(t, &echoAdapter{endpoint: server.URL})

	seatBid, errs := bidder.Bid(context.Background(), bidderRequest("bid-1", "fail", "nobid", "bid-2"))
	require.Len(t, seatBid.Bids, 2)
	ids := []string{seatBid.Bids[0].RequestID, seatBid.Bids[1].RequestID}
	assert.ElementsMatch(t, []string{"bid-1", "bid-2"}, ids)

	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
	assert.Equal(t, "Server responded with failure status: 500. Set debug=1 for debugging info.", errs[0].Error())

	am := me.AdapterMetrics[openrtb_ext.BidderVertamedia]
	assert.Equal(t, int64(1), am.RequestMeter.Count())
	assert.Equal(t, int64(1), am.ErrorMeters[metrics.AdapterErrorBadServerResponse].Count())
	assert.Equal(t, int64(2), am.BidsReceivedMeter.Count())
}

func TestInvalidBidsAreSkipped(t *testing.T) {
	server := auctionServer()
	defer server.Close()
	adapter := &echoAdapter{endpoint: server.URL}
	bidder, me := newTestBidder(t, adapter)

	request := bidderRequest("bid-1")
	request.Bids = append(request.Bids, &pbs.BidRequest{BidID: "no-params"})

	seatBid, errs := bidder.Bid(context.Background(), request)
	require.Len(t, seatBid.Bids, 1)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadInput{}, errs[0])
	assert.Equal(t, "ignoring bid id=no-params, its params are not valid for vertamedia", errs[0].Error())
	assert.Equal(t, []string{"bid-1"}, adapter.builtFor)

	am := me.AdapterMetrics[openrtb_ext.BidderVertamedia]
	assert.Equal(t, int64(1), am.ErrorMeters[metrics.AdapterErrorBadInput].Count())
}

func TestNoValidBids(t *testing.T) {
	adapter := &echoAdapter{endpoint: "http://localhost:1/auction"}
	bidder, me := newTestBidder(t, adapter)

	seatBid, errs := bidder.Bid(context.Background(), &pbs.BidderRequest{
		Bids: []*pbs.BidRequest{{BidID: "no-params"}},
	})
	assert.Empty(t, seatBid.Bids)
	assert.Len(t, errs, 1)
	assert.Nil(t, adapter.builtFor, "BuildRequests should not be called")

	am := me.AdapterMetrics[openrtb_ext.BidderVertamedia]
	assert.Equal(t, int64(1), am.NoBidMeter.Count())
}

func TestAdapterWithoutRequestsOrErrors(t *testing.T) {
	bidder, _ := newTestBidder(t, &echoAdapter{silent: true})

	seatBid, errs := bidder.Bid(context.Background(), bidderRequest("bid-1"))
	assert.Empty(t, seatBid.Bids)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.FailedToRequestBids{}, errs[0])
}

func TestExpiredContext(t *testing.T) {
	server := auctionServer()
	defer server.Close()
	bidder, me := newTestBidder(t, &echoAdapter{endpoint: server.URL})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	seatBid, errs := bidder.Bid(ctx, bidderRequest("bid-1"))
	assert.Empty(t, seatBid.Bids)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.Timeout{}, errs[0])

	am := me.AdapterMetrics[openrtb_ext.BidderVertamedia]
	assert.Equal(t, int64(1), am.ErrorMeters[metrics.AdapterErrorTimeout].Count())
}

func TestDebugServerCalls(t *testing.T) {
	server := auctionServer()
	defer server.Close()
	bidder, _ := newTestBidder(t, &echoAdapter{endpoint: server.URL})

	request := bidderRequest("fail")
	request.Debug = true
	seatBid, errs := bidder.Bid(context.Background(), request)
	assert.Len(t, errs, 1)
	require.Len(t, seatBid.HttpCalls, 1)

	call := seatBid.HttpCalls[0]
	assert.Equal(t, server.URL+"?callbackId=fail", call.Uri)
	assert.Equal(t, http.StatusInternalServerError, call.Status)
	assert.Equal(t, "internal error", call.ResponseBody)
}

// echoAdapter sends one call per bid, and reads the response as a JSON array of bid results.
type echoAdapter struct {
	endpoint string
	silent   bool
	builtFor []string
}

func (a *echoAdapter) IsBidRequestValid(bid *pbs.BidRequest) bool {
	return len(bid.Params) > 0
}

func (a *echoAdapter) BuildRequests(bids []*pbs.BidRequest, request *pbs.BidderRequest) ([]*RequestData, []error) {
	if a.silent {
		return nil, nil
	}
	reqs := make([]*RequestData, 0, len(bids))
	for _, bid := range bids {
		a.builtFor = append(a.builtFor, bid.BidID)
		reqs = append(reqs, &RequestData{
			Method: http.MethodGet,
			Uri:    a.endpoint,
			Params: map[string]interface{}{"callbackId": bid.BidID},
		})
	}
	return reqs, nil
}

func (a *echoAdapter) InterpretResponse(response *ResponseData, request *pbs.BidderRequest) ([]*BidResult, []error) {
	if response.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var bids []*BidResult
	if err := json.Unmarshal(response.Body, &bids); err != nil {
		return nil, []error{&errortypes.BadServerResponse{Message: err.Error()}}
	}
	return bids, nil
}
