package vertamedia

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/buger/jsonparser"

	"github.com/vertamedia/vertamedia-pbs/adapters"
	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

const (
	bidTTL          = 3600
	defaultCurrency = "USD"
)

type VertamediaAdapter struct {
	endpoint string
}

// AccountID returns the publisher account id (params.aid) of the bid. The second value is false
// when the bid has no usable aid.
func (a *VertamediaAdapter) AccountID(bid *pbs.BidRequest) (int64, bool) {
	if bid == nil || len(bid.Params) == 0 {
		return 0, false
	}

	var params openrtb_ext.ExtImpVertamedia
	if err := json.Unmarshal(bid.Params, &params); err != nil {
		return 0, false
	}

	aid, err := params.SourceId.Int64()
	if err != nil || aid == 0 {
		return 0, false
	}
	return aid, true
}

func (a *VertamediaAdapter) IsBidRequestValid(bid *pbs.BidRequest) bool {
	_, ok := a.AccountID(bid)
	return ok
}

// BuildRequests describes one GET call per bid. Bids are never batched.
func (a *VertamediaAdapter) BuildRequests(bids []*pbs.BidRequest, request *pbs.BidderRequest) ([]*adapters.RequestData, []error) {
	var errors []error
	domain := request.PageDomain()

	reqs := make([]*adapters.RequestData, 0, len(bids))
	for i, bid := range bids {
		if bid == nil {
			errors = append(errors, &errortypes.BadInput{
				Message: fmt.Sprintf("ignoring bids[%d], it is null", i),
			})
			continue
		}

		aid, ok := a.AccountID(bid)
		if !ok {
			errors = append(errors, &errortypes.BadInput{
				Message: fmt.Sprintf("ignoring bid id=%s, params.aid is missing or invalid", bid.BidID),
			})
			continue
		}

		headers := http.Header{}
		headers.Add("Accept", "application/json")

		reqs = append(reqs, &adapters.RequestData{
			Method: http.MethodGet,
			Uri:    a.endpoint,
			Params: map[string]interface{}{
				"callbackId": bid.BidID,
				"aid":        aid,
				"ad_type":    string(bid.MediaType()),
				"sizes":      adSizes(bid).String(),
				"domain":     domain,
			},
			Headers: headers,
		})
	}

	return reqs, errors
}

// adSizes returns the sizes of the bid, falling back to the sizes declared on its media type.
func adSizes(bid *pbs.BidRequest) pbs.Sizes {
	if len(bid.Sizes) > 0 || bid.MediaTypes == nil {
		return bid.Sizes
	}
	if bid.MediaTypes.Video != nil {
		return bid.MediaTypes.Video.PlayerSize
	}
	if bid.MediaTypes.Banner != nil {
		return bid.MediaTypes.Banner.Sizes
	}
	return nil
}

// InterpretResponse turns the "bids" array of the server response into bid results.
//
// Every element is read on its own, so a malformed or unknown bid only costs that bid.
func (a *VertamediaAdapter) InterpretResponse(response *adapters.ResponseData, request *pbs.BidderRequest) ([]*adapters.BidResult, []error) {
	if response.StatusCode == http.StatusNoContent || len(response.Body) == 0 {
		return nil, nil
	}

	if !json.Valid(response.Body) {
		return nil, []error{&errortypes.BadServerResponse{
			Message: "error while decoding response, body is not valid JSON",
		}}
	}

	if _, rootType, _, err := jsonparser.Get(response.Body); err != nil || rootType != jsonparser.Object {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("error while decoding response, body is %s, not an object", rootType),
		}}
	}

	bidsData, dataType, _, err := jsonparser.Get(response.Body, "bids")
	if err == jsonparser.KeyPathNotFoundError || dataType == jsonparser.Null {
		return nil, nil
	}
	if err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("error while decoding response, err: %s", err),
		}}
	}
	if dataType != jsonparser.Array {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("error while decoding response, bids is %s, not an array", dataType),
		}}
	}

	var bids []*adapters.BidResult
	var errors []error
	index := 0
	_, err = jsonparser.ArrayEach(bidsData, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		defer func() { index++ }()
		if err != nil {
			errors = append(errors, &errortypes.BadServerResponse{
				Message: fmt.Sprintf("ignoring bids[%d], err: %s", index, err),
			})
			return
		}
		bid, bidErr := interpretBid(index, value, dataType, request)
		if bidErr != nil {
			errors = append(errors, bidErr)
			return
		}
		bids = append(bids, bid)
	})
	if err != nil {
		errors = append(errors, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("error while decoding response bids, err: %s", err),
		})
	}

	return bids, errors
}

func interpretBid(index int, value []byte, dataType jsonparser.ValueType, request *pbs.BidderRequest) (*adapters.BidResult, error) {
	if dataType != jsonparser.Object {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring bids[%d], it is %s, not an object", index, dataType),
		}
	}

	requestID, err := jsonparser.GetString(value, "requestId")
	if err != nil {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring bids[%d], requestId is missing", index),
		}
	}

	bidRequest := request.LookupBid(requestID)
	if bidRequest == nil {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring bids[%d], request doesn't contain any bid with id=%s", index, requestID),
		}
	}

	cpm, err := jsonparser.GetFloat(value, "cpm")
	if err != nil {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring bids[%d], cpm is missing or not a number", index),
		}
	}

	currency, err := jsonparser.GetString(value, "cur")
	if err != nil || currency == "" {
		currency = defaultCurrency
	}

	width, err := getDimension(value, "width")
	if err != nil {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring bids[%d], %v", index, err),
		}
	}
	height, err := getDimension(value, "height")
	if err != nil {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring bids[%d], %v", index, err),
		}
	}

	mediaType := bidRequest.MediaType()
	result := &adapters.BidResult{
		RequestID:  requestID,
		CPM:        cpm,
		Width:      width,
		Height:     height,
		CreativeID: getCreativeID(value),
		Currency:   currency,
		NetRevenue: true,
		TTL:        bidTTL,
		MediaType:  mediaType,
	}

	markupKey := "ad"
	if mediaType == openrtb_ext.BidTypeVideo {
		markupKey = "vastUrl"
	}
	markup, err := jsonparser.GetString(value, markupKey)
	if err != nil || markup == "" {
		return nil, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("ignoring %s bids[%d], %s is missing", mediaType, index, markupKey),
		}
	}
	if mediaType == openrtb_ext.BidTypeVideo {
		result.VastURL = markup
	} else {
		result.Ad = markup
	}

	return result, nil
}

// getCreativeID returns creative_id as the JSON token the server sent, a number or a string.
func getCreativeID(value []byte) json.RawMessage {
	raw, dataType, _, err := jsonparser.Get(value, "creative_id")
	if err != nil {
		return nil
	}
	switch dataType {
	case jsonparser.String:
		id, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil
		}
		quoted, err := json.Marshal(id)
		if err != nil {
			return nil
		}
		return quoted
	case jsonparser.Number:
		return json.RawMessage(raw)
	default:
		return nil
	}
}

// getDimension reads a width or height. A missing value is 0. Whole floats such as 300.0 are accepted.
func getDimension(value []byte, key string) (uint64, error) {
	raw, dataType, _, err := jsonparser.Get(value, key)
	if err == jsonparser.KeyPathNotFoundError || dataType == jsonparser.Null {
		return 0, nil
	}
	if err != nil || dataType != jsonparser.Number {
		return 0, fmt.Errorf("%s is not a number", key)
	}
	dimension, err := jsonparser.ParseFloat(raw)
	if err != nil || dimension < 0 || dimension != math.Trunc(dimension) {
		return 0, fmt.Errorf("%s=%s is not a valid size", key, raw)
	}
	return uint64(dimension), nil
}

// Builder builds a new instance of the Vertamedia adapter for the given bidder with the given config.
func Builder(bidderName openrtb_ext.BidderName, config config.Adapter) (adapters.Adapter, error) {
	bidder := &VertamediaAdapter{
		endpoint: config.Endpoint,
	}
	return bidder, nil
}
