package openrtb_ext

import (
	"fmt"
)

// BidType describes the media type of a bid request and of the bid returned for it.
type BidType string

const (
	BidTypeDisplay BidType = "display"
	BidTypeVideo   BidType = "video"
)

func BidTypes() []BidType {
	return []BidType{
		BidTypeDisplay,
		BidTypeVideo,
	}
}

func ParseBidType(bidType string) (BidType, error) {
	switch bidType {
	case "display", "banner":
		return BidTypeDisplay, nil
	case "video":
		return BidTypeVideo, nil
	default:
		return "", fmt.Errorf("invalid BidType: %s", bidType)
	}
}
