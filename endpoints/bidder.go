package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/mssola/user_agent"

	"github.com/vertamedia/vertamedia-pbs/adapters"
	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

// BidderEndpoints serves the /bidders/:bidderName/* routes.
//
// The requests and bids routes expose the pure adapter operations, so a host auction can let this
// server build the calls and read the answers while making the calls itself. The auction route
// makes the calls too, bounded only by the lifetime of the incoming request.
type BidderEndpoints struct {
	adapters        map[openrtb_ext.BidderName]adapters.Adapter
	bidders         map[openrtb_ext.BidderName]adapters.Bidder
	paramsValidator openrtb_ext.BidderParamValidator
	metricsEngine   metrics.MetricsEngine
}

func NewBidderEndpoints(adapterMap map[openrtb_ext.BidderName]adapters.Adapter, bidders map[openrtb_ext.BidderName]adapters.Bidder, paramsValidator openrtb_ext.BidderParamValidator, metricsEngine metrics.MetricsEngine) *BidderEndpoints {
	return &BidderEndpoints{
		adapters:        adapterMap,
		bidders:         bidders,
		paramsValidator: paramsValidator,
		metricsEngine:   metricsEngine,
	}
}

type requestsResponse struct {
	Requests []*adapters.RequestData        `json:"requests"`
	Errors   []openrtb_ext.ExtBidderMessage `json:"errors,omitempty"`
	Warnings []openrtb_ext.ExtBidderMessage `json:"warnings,omitempty"`
}

type bidsRequest struct {
	BidderRequest  *pbs.BidderRequest `json:"bidderRequest"`
	ServerResponse *serverResponse    `json:"serverResponse"`
}

type serverResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bidsResponse struct {
	Bids     []*adapters.BidResult          `json:"bids"`
	Errors   []openrtb_ext.ExtBidderMessage `json:"errors,omitempty"`
	Warnings []openrtb_ext.ExtBidderMessage `json:"warnings,omitempty"`
	Debug    *responseDebug                 `json:"debug,omitempty"`
}

type responseDebug struct {
	HttpCalls []*openrtb_ext.ExtHttpCall `json:"httpcalls"`
}

// Requests implements POST /bidders/:bidderName/requests
func (e *BidderEndpoints) Requests(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	labels, start := e.startRequest(r, metrics.ReqTypeRequests)
	defer e.finishRequest(&labels, start)

	bidderName, adapter, ok := e.lookupAdapter(w, ps)
	if !ok {
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}

	req, err := pbs.ParseBidderRequest(r)
	if err != nil {
		glog.V(2).Infof("Failed to parse /bidders/%s/requests request: %v", bidderName, err)
		writeError(w, http.StatusBadRequest, err)
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}

	bids, errs := e.validBids(bidderName, adapter, req.Bids)
	resp := requestsResponse{
		Requests: []*adapters.RequestData{},
	}
	if len(bids) > 0 {
		reqs, buildErrs := adapter.BuildRequests(bids, req)
		errs = append(errs, buildErrs...)
		if len(reqs) > 0 {
			resp.Requests = reqs
		}
	}
	resp.Errors, resp.Warnings = splitBidderMessages(errs)

	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
	}
}

// Bids implements POST /bidders/:bidderName/bids
func (e *BidderEndpoints) Bids(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	labels, start := e.startRequest(r, metrics.ReqTypeBids)
	defer e.finishRequest(&labels, start)

	bidderName, adapter, ok := e.lookupAdapter(w, ps)
	if !ok {
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}

	req, err := parseBidsRequest(r)
	if err != nil {
		glog.V(2).Infof("Failed to parse /bidders/%s/bids request: %v", bidderName, err)
		writeError(w, http.StatusBadRequest, err)
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}

	bids, errs := adapter.InterpretResponse(&adapters.ResponseData{
		StatusCode: req.ServerResponse.Status,
		Body:       req.ServerResponse.Body,
	}, req.BidderRequest)

	resp := bidsResponse{
		Bids: []*adapters.BidResult{},
	}
	resp.Errors, resp.Warnings = splitBidderMessages(errs)
	if len(bids) > 0 {
		resp.Bids = bids
	}

	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
	}
}

// Auction implements POST /bidders/:bidderName/auction
func (e *BidderEndpoints) Auction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	labels, start := e.startRequest(r, metrics.ReqTypeAuction)
	defer e.finishRequest(&labels, start)

	bidderName, adapter, ok := e.lookupAdapter(w, ps)
	if !ok {
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}
	bidder, ok := e.bidders[bidderName]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("bidder %s cannot run auctions", bidderName))
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}

	req, err := pbs.ParseBidderRequest(r)
	if err != nil {
		glog.V(2).Infof("Failed to parse /bidders/%s/auction request: %v", bidderName, err)
		writeError(w, http.StatusBadRequest, err)
		labels.RequestStatus = metrics.RequestStatusBadInput
		return
	}

	bids, errs := e.validBids(bidderName, adapter, req.Bids)
	resp := bidsResponse{
		Bids: []*adapters.BidResult{},
	}
	if len(bids) > 0 {
		req.Bids = bids
		seatBid, bidErrs := bidder.Bid(r.Context(), req)
		errs = append(errs, bidErrs...)
		if seatBid != nil {
			if len(seatBid.Bids) > 0 {
				resp.Bids = seatBid.Bids
			}
			if req.Debug {
				resp.Debug = &responseDebug{HttpCalls: seatBid.HttpCalls}
			}
		}
	}
	resp.Errors, resp.Warnings = splitBidderMessages(errs)
	if errortypes.ContainsFatalError(errs) {
		glog.V(2).Infof("/bidders/%s/auction dropped bids: %v", bidderName, errortypes.FatalOnly(errs))
	}

	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
	}
}

func (e *BidderEndpoints) startRequest(r *http.Request, requestType metrics.RequestType) (metrics.Labels, time.Time) {
	labels := metrics.Labels{
		RType:         requestType,
		Browser:       metrics.BrowserOther,
		RequestStatus: metrics.RequestStatusOK,
	}
	if ua := user_agent.New(r.Header.Get("User-Agent")); ua != nil {
		name, _ := ua.Browser()
		if name == "Safari" {
			labels.Browser = metrics.BrowserSafari
		}
	}
	return labels, time.Now()
}

func (e *BidderEndpoints) finishRequest(labels *metrics.Labels, start time.Time) {
	e.metricsEngine.RecordRequest(*labels)
	e.metricsEngine.RecordRequestTime(*labels, time.Since(start))
}

func (e *BidderEndpoints) lookupAdapter(w http.ResponseWriter, ps httprouter.Params) (openrtb_ext.BidderName, adapters.Adapter, bool) {
	name := ps.ByName("bidderName")
	bidderName, ok := openrtb_ext.GetBidderName(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown bidder %s", name))
		return "", nil, false
	}
	adapter, ok := e.adapters[bidderName]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("bidder %s is disabled", name))
		return "", nil, false
	}
	return bidderName, adapter, true
}

// validBids drops the bids whose params fail the bidder's JSON schema or its own validation.
func (e *BidderEndpoints) validBids(bidderName openrtb_ext.BidderName, adapter adapters.Adapter, bids []*pbs.BidRequest) ([]*pbs.BidRequest, []error) {
	var errs []error
	valid := make([]*pbs.BidRequest, 0, len(bids))
	for i, bid := range bids {
		if err := e.paramsValidator.Validate(bidderName, bid.Params); err != nil {
			errs = append(errs, &errortypes.BadInput{
				Message: fmt.Sprintf("bids[%d].params failed validation for %s: %v", i, bidderName, err),
			})
			continue
		}
		if !adapter.IsBidRequestValid(bid) {
			errs = append(errs, &errortypes.BadInput{
				Message: fmt.Sprintf("bids[%d] is not a valid %s bid request", i, bidderName),
			})
			continue
		}
		valid = append(valid, bid)
	}
	return valid, errs
}

func parseBidsRequest(r *http.Request) (*bidsRequest, error) {
	defer r.Body.Close()

	var req bidsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("Invalid bids request: %v", err)
	}
	if req.BidderRequest == nil {
		return nil, fmt.Errorf("bidderRequest is required")
	}
	if req.ServerResponse == nil {
		return nil, fmt.Errorf("serverResponse is required")
	}
	if req.ServerResponse.Status == 0 {
		req.ServerResponse.Status = http.StatusOK
	}
	if err := req.BidderRequest.Normalize(r); err != nil {
		return nil, err
	}
	return &req, nil
}

// splitBidderMessages reports fatal errors under "errors" and warnings under "warnings".
func splitBidderMessages(errs []error) (errors, warnings []openrtb_ext.ExtBidderMessage) {
	return toBidderMessages(errortypes.FatalOnly(errs)), toBidderMessages(errortypes.WarningOnly(errs))
}

func toBidderMessages(errs []error) []openrtb_ext.ExtBidderMessage {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]openrtb_ext.ExtBidderMessage, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	return messages
}

type errorResponse struct {
	Errors []string `json:"errors"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Errors: []string{err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		glog.Errorf("Failed to marshal response JSON: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		glog.Errorf("Failed to write response: %v", err)
		return err
	}
	return nil
}
