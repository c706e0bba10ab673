package openrtb_ext

// ExtHttpCall defines the contract for a debug entry describing one call made to a bidder.
type ExtHttpCall struct {
	Uri            string              `json:"uri"`
	RequestHeaders map[string][]string `json:"requestheaders,omitempty"`
	ResponseBody   string              `json:"responsebody"`
	Status         int                 `json:"status"`
}

// ExtBidderMessage defines an error object to be returned, consiting of a machine readable error code,
// and a human readable error message string.
type ExtBidderMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
