package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

// Adapter connects the auction to one demand partner.
//
// Its only responsibility is to describe the HTTP request(s) for a set of bid requests, and to
// turn the partner's response back into bids. It never does any I/O itself.
type Adapter interface {
	// IsBidRequestValid reports whether the bid carries everything this adapter needs to build a request.
	IsBidRequestValid(bid *pbs.BidRequest) bool

	// BuildRequests describes the HTTP requests which should be made to fetch bids.
	//
	// The errors should contain a list of errors which explain why some bids were left out.
	// For example: one of the bids had malformed params.
	BuildRequests(bids []*pbs.BidRequest, request *pbs.BidderRequest) ([]*RequestData, []error)

	// InterpretResponse unpacks the server's response into bids.
	//
	// The bids can be nil (for no bids), but should not contain nil elements.
	//
	// The errors should contain a list of errors which explain why this bidder's bids will be
	// "subpar" in some way. For example: the server response didn't have the expected format.
	InterpretResponse(response *ResponseData, request *pbs.BidderRequest) ([]*BidResult, []error)
}

// Builder is the constructor every adapter package exposes.
type Builder func(openrtb_ext.BidderName, config.Adapter) (Adapter, error)

// BidResult is one bid as the auction consumes it.
//
// Exactly one of Ad and VastURL is set, depending on MediaType. CreativeID keeps the JSON token of
// the server, so a numeric id stays a number.
type BidResult struct {
	RequestID  string              `json:"requestId"`
	CPM        float64             `json:"cpm"`
	Width      uint64              `json:"width"`
	Height     uint64              `json:"height"`
	CreativeID json.RawMessage     `json:"creativeId,omitempty"`
	Currency   string              `json:"currency"`
	NetRevenue bool                `json:"netRevenue"`
	TTL        int                 `json:"ttl"`
	MediaType  openrtb_ext.BidType `json:"mediaType"`
	Ad         string              `json:"ad,omitempty"`
	VastURL    string              `json:"vastUrl,omitempty"`
}

// RequestData packages together the fields needed to make an http.Request.
//
// Params are sent as the query string of Uri.
type RequestData struct {
	Method  string
	Uri     string
	Params  map[string]interface{}
	Headers http.Header
}

// URL returns Uri with the Params appended to its query string.
func (r *RequestData) URL() string {
	if len(r.Params) == 0 {
		return r.Uri
	}
	query := url.Values{}
	for key, value := range r.Params {
		query.Set(key, fmt.Sprint(value))
	}
	separator := "?"
	if strings.Contains(r.Uri, "?") {
		separator = "&"
	}
	return r.Uri + separator + query.Encode()
}

type requestDataJSON struct {
	Method string                 `json:"method"`
	URL    string                 `json:"url"`
	Data   map[string]interface{} `json:"data"`
}

func (r *RequestData) MarshalJSON() ([]byte, error) {
	data := r.Params
	if data == nil {
		data = map[string]interface{}{}
	}
	return json.Marshal(requestDataJSON{
		Method: r.Method,
		URL:    r.Uri,
		Data:   data,
	})
}

// ResponseData packages together information from the server's http.Response.
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}
