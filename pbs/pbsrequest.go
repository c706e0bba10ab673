package pbs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"

	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// MediaTypes declares which kinds of creative an ad unit accepts.
// A bid request is a video request if and only if Video is set.
type MediaTypes struct {
	Banner *BannerMediaType `json:"banner,omitempty"`
	Video  *VideoMediaType  `json:"video,omitempty"`
}

type BannerMediaType struct {
	Sizes Sizes `json:"sizes,omitempty"`
}

type VideoMediaType struct {
	Context    string   `json:"context,omitempty"`
	PlayerSize Sizes    `json:"playerSize,omitempty"`
	Mimes      []string `json:"mimes,omitempty"`
}

// BidRequest is one ad slot submitted into an auction for a single bidder.
type BidRequest struct {
	Bidder          string          `json:"bidder,omitempty"`
	BidID           string          `json:"bidId"`
	AdUnitCode      string          `json:"adUnitCode,omitempty"`
	BidderRequestID string          `json:"bidderRequestId,omitempty"`
	AuctionID       string          `json:"auctionId,omitempty"`
	Params          json.RawMessage `json:"params,omitempty"`
	Sizes           Sizes           `json:"sizes,omitempty"`
	MediaTypes      *MediaTypes     `json:"mediaTypes,omitempty"`
}

// MediaType returns the declared media type of this request.
func (bid *BidRequest) MediaType() openrtb_ext.BidType {
	if bid.MediaTypes != nil && bid.MediaTypes.Video != nil {
		return openrtb_ext.BidTypeVideo
	}
	return openrtb_ext.BidTypeDisplay
}

type RefererInfo struct {
	Referer    string `json:"referer"`
	ReachedTop bool   `json:"reachedTop,omitempty"`
}

// BidderRequest is the auction-round context wrapping every bid request sent to one bidder.
type BidderRequest struct {
	BidderCode      string        `json:"bidderCode"`
	BidderRequestID string        `json:"bidderRequestId,omitempty"`
	AuctionID       string        `json:"auctionId,omitempty"`
	Bids            []*BidRequest `json:"bids"`
	RefererInfo     *RefererInfo  `json:"refererInfo,omitempty"`
	Debug           bool          `json:"debug,omitempty"`

	Start time.Time `json:"-"`
}

// LookupBid returns the bid request with the given bid id, or nil if there is none.
func (req *BidderRequest) LookupBid(bidID string) *BidRequest {
	if req == nil {
		return nil
	}
	for _, bid := range req.Bids {
		if bid != nil && bid.BidID == bidID {
			return bid
		}
	}
	return nil
}

// PageDomain returns the hostname of the page the auction runs on, or "" if it is unknown.
func (req *BidderRequest) PageDomain() string {
	if req == nil || req.RefererInfo == nil || req.RefererInfo.Referer == "" {
		return ""
	}
	pageURL := req.RefererInfo.Referer
	if !strings.Contains(pageURL, "://") {
		pageURL = "http://" + strings.TrimPrefix(pageURL, "//")
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func (req *BidderRequest) Elapsed() time.Duration {
	return time.Since(req.Start)
}

func (req BidderRequest) String() string {
	b, _ := json.MarshalIndent(req, "", "    ")
	return string(b)
}

// ParseBidderRequest reads a bidder request from the body of r.
//
// The page URL falls back to the Referer header (or the url_override form value) when the body
// carries no refererInfo. Bids without an id get a random one.
func ParseBidderRequest(r *http.Request) (*BidderRequest, error) {
	defer r.Body.Close()

	req := &BidderRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, fmt.Errorf("Invalid bidder request: %v", err)
	}
	req.Start = time.Now()

	if err := req.Normalize(r); err != nil {
		return nil, err
	}
	return req, nil
}

// Normalize fills in the fields a bidder request may omit and rejects requests without bids.
func (req *BidderRequest) Normalize(r *http.Request) error {
	if len(req.Bids) == 0 {
		return fmt.Errorf("No bids specified")
	}
	if req.Start.IsZero() {
		req.Start = time.Now()
	}

	if req.RefererInfo == nil || req.RefererInfo.Referer == "" {
		pageURL := r.Header.Get("Referer")
		if override := r.FormValue("url_override"); override != "" {
			pageURL = override
		}
		if pageURL != "" {
			req.RefererInfo = &RefererInfo{Referer: pageURL}
		}
	}

	if r.FormValue("debug") == "1" {
		req.Debug = true
	}

	if req.AuctionID == "" {
		req.AuctionID = newID()
	}

	for i, bid := range req.Bids {
		if bid == nil {
			return fmt.Errorf("bids[%d] is null", i)
		}
		if bid.BidID == "" {
			bid.BidID = newID()
		}
		if bid.AuctionID == "" {
			bid.AuctionID = req.AuctionID
		}
		if bid.BidderRequestID == "" {
			bid.BidderRequestID = req.BidderRequestID
		}
	}

	if glog.V(2) {
		glog.Infof("Bidder request %s for %s has %d bids on %s", req.AuctionID, req.BidderCode, len(req.Bids), req.PageDomain())
	}
	return nil
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		glog.Errorf("Failed to generate a bid id: %v", err)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id.String()
}
