package adapters

import (
	"context"
	"fmt"

	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

// InfoAwareBidder wraps a Bidder to ensure all requests abide by the media types defined in the
// static/bidder-info/{bidder}.yaml file.
//
// It adjusts incoming requests in the following ways:
//  1. If site traffic is not supported by the info file, the delegate is never called.
//  2. Bids whose media type is not supported are removed with a warning.
//  3. If there are no bids left, the delegate won't be called at all.
type InfoAwareBidder struct {
	Bidder
	name  openrtb_ext.BidderName
	infos BidderInfos
}

// BuildInfoAwareBidder wraps a bidder to enforce media type support.
func BuildInfoAwareBidder(bidder Bidder, name openrtb_ext.BidderName, infos BidderInfos) Bidder {
	return &InfoAwareBidder{
		Bidder: bidder,
		name:   name,
		infos:  infos,
	}
}

func (i *InfoAwareBidder) Bid(ctx context.Context, request *pbs.BidderRequest) (*SeatBid, []error) {
	if !i.infos.HasSiteSupport(i.name) {
		return &SeatBid{}, []error{&errortypes.Warning{
			Message:     fmt.Sprintf("%s does not support site requests", i.name),
			WarningCode: errortypes.UnsupportedMediaTypeWarningCode,
		}}
	}

	var errs []error
	allowed := make([]*pbs.BidRequest, 0, len(request.Bids))
	for index, bid := range request.Bids {
		mediaType := bid.MediaType()
		if !i.infos.SupportsWebMediaType(i.name, mediaType) {
			errs = append(errs, &errortypes.Warning{
				Message:     fmt.Sprintf("bids[%d] uses %s, but %s doesn't support it", index, mediaType, i.name),
				WarningCode: errortypes.UnsupportedMediaTypeWarningCode,
			})
			continue
		}
		allowed = append(allowed, bid)
	}

	if len(allowed) == 0 {
		return &SeatBid{}, append(errs, &errortypes.Warning{
			Message:     "Bidder request didn't contain media types supported by the bidder",
			WarningCode: errortypes.UnsupportedMediaTypeWarningCode,
		})
	}

	if len(allowed) < len(request.Bids) {
		pruned := *request
		pruned.Bids = allowed
		request = &pruned
	}

	seatBid, delegateErrs := i.Bidder.Bid(ctx, request)
	return seatBid, append(errs, delegateErrs...)
}
