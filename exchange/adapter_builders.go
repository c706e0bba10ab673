package exchange

import (
	"github.com/vertamedia/vertamedia-pbs/adapters"
	"github.com/vertamedia/vertamedia-pbs/adapters/vertamedia"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// The newAdapterBuilders function is responsible for returning the builder of every core bidder.
func newAdapterBuilders() map[openrtb_ext.BidderName]adapters.Builder {
	return map[openrtb_ext.BidderName]adapters.Builder{
		openrtb_ext.BidderVertamedia: vertamedia.Builder,
	}
}
