package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertamedia/vertamedia-pbs/errortypes"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
	"github.com/vertamedia/vertamedia-pbs/pbs"
)

func displayOnlyInfos() BidderInfos {
	return BidderInfos{
		"vertamedia": BidderInfo{
			Capabilities: &CapabilitiesInfo{
				Site: &PlatformInfo{MediaTypes: []openrtb_ext.BidType{openrtb_ext.BidTypeDisplay}},
			},
		},
	}
}

func TestSiteNotSupported(t *testing.T) {
	delegate := &recordingBidder{}
	infos := BidderInfos{"vertamedia": BidderInfo{Capabilities: &CapabilitiesInfo{}}}
	constrained := BuildInfoAwareBidder(delegate, openrtb_ext.BidderVertamedia, infos)

	seatBid, errs := constrained.Bid(context.Background(), &pbs.BidderRequest{
		Bids: []*pbs.BidRequest{{BidID: "bid-1"}},
	})
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "vertamedia does not support site requests")
	assert.Equal(t, errortypes.UnsupportedMediaTypeWarningCode, errortypes.ReadCode(errs[0]))
	assert.Empty(t, seatBid.Bids)
	assert.Nil(t, delegate.lastRequest, "the delegate should not be called")
}

func TestUnsupportedMediaTypeIsRemoved(t *testing.T) {
	delegate := &recordingBidder{}
	constrained := BuildInfoAwareBidder(delegate, openrtb_ext.BidderVertamedia, displayOnlyInfos())

	request := &pbs.BidderRequest{
		Bids: []*pbs.BidRequest{
			{BidID: "video-bid", MediaTypes: &pbs.MediaTypes{Video: &pbs.VideoMediaType{}}},
			{BidID: "display-bid"},
		},
	}
	_, errs := constrained.Bid(context.Background(), request)

	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "bids[0] uses video, but vertamedia doesn't support it")
	assert.False(t, errortypes.ContainsFatalError(errs))

	require.NotNil(t, delegate.lastRequest)
	require.Len(t, delegate.lastRequest.Bids, 1)
	assert.Equal(t, "display-bid", delegate.lastRequest.Bids[0].BidID)
	assert.Len(t, request.Bids, 2, "the caller's request should not be modified")
}

func TestAllMediaTypesUnsupported(t *testing.T) {
	delegate := &recordingBidder{}
	constrained := BuildInfoAwareBidder(delegate, openrtb_ext.BidderVertamedia, displayOnlyInfos())

	_, errs := constrained.Bid(context.Background(), &pbs.BidderRequest{
		Bids: []*pbs.BidRequest{{BidID: "video-bid", MediaTypes: &pbs.MediaTypes{Video: &pbs.VideoMediaType{}}}},
	})
	assert.Len(t, errs, 2)
	assert.Nil(t, delegate.lastRequest, "the delegate should not be called")
}

func TestSupportedRequestIsForwarded(t *testing.T) {
	delegate := &recordingBidder{
		seatBid: &SeatBid{Bids: []*BidResult{{RequestID: "display-bid"}}},
	}
	constrained := BuildInfoAwareBidder(delegate, openrtb_ext.BidderVertamedia, displayOnlyInfos())

	request := &pbs.BidderRequest{Bids: []*pbs.BidRequest{{BidID: "display-bid"}}}
	seatBid, errs := constrained.Bid(context.Background(), request)
	assert.Empty(t, errs)
	assert.Same(t, request, delegate.lastRequest)
	assert.Len(t, seatBid.Bids, 1)
}

type recordingBidder struct {
	lastRequest *pbs.BidderRequest
	seatBid     *SeatBid
}

func (b *recordingBidder) Bid(ctx context.Context, request *pbs.BidderRequest) (*SeatBid, []error) {
	b.lastRequest = request
	if b.seatBid == nil {
		return &SeatBid{}, nil
	}
	return b.seatBid, nil
}
