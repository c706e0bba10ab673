package openrtb_ext

import "encoding/json"

// ExtImpVertamedia defines the contract for bids[i].params when the bidder is vertamedia.
type ExtImpVertamedia struct {
	SourceId json.Number `json:"aid"`
}
