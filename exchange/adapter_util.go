package exchange

import (
	"fmt"
	"net/http"

	"github.com/vertamedia/vertamedia-pbs/adapters"
	"github.com/vertamedia/vertamedia-pbs/config"
	"github.com/vertamedia/vertamedia-pbs/metrics"
	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

// BuildAdapters builds every bidder which is active in the config.
func BuildAdapters(cfg *config.Configuration) (map[openrtb_ext.BidderName]adapters.Adapter, []error) {
	return buildAdapters(cfg, newAdapterBuilders())
}

func buildAdapters(cfg *config.Configuration, builders map[openrtb_ext.BidderName]adapters.Builder) (map[openrtb_ext.BidderName]adapters.Adapter, []error) {
	built := make(map[openrtb_ext.BidderName]adapters.Adapter)
	var errs []error

	for _, bidderName := range cfg.ActiveBidders() {
		builder, builderFound := builders[bidderName]
		if !builderFound {
			errs = append(errs, fmt.Errorf("%v: builder not registered", bidderName))
			continue
		}

		adapter, builderErr := builder(bidderName, cfg.Adapters[string(bidderName)])
		if builderErr != nil {
			errs = append(errs, fmt.Errorf("%v: %v", bidderName, builderErr))
			continue
		}
		built[bidderName] = adapter
	}
	return built, errs
}

// AdaptBidders wraps every adapter into a Bidder which makes its server calls with the given client,
// and which only sees the media types its bidder-info file declares.
func AdaptBidders(built map[openrtb_ext.BidderName]adapters.Adapter, client *http.Client, infos adapters.BidderInfos, me metrics.MetricsEngine) map[openrtb_ext.BidderName]adapters.Bidder {
	bidders := make(map[openrtb_ext.BidderName]adapters.Bidder, len(built))
	for bidderName, adapter := range built {
		bidder := adapters.AdaptBidder(adapter, client, bidderName, me)
		bidders[bidderName] = adapters.BuildInfoAwareBidder(bidder, bidderName, infos)
	}
	return bidders
}
