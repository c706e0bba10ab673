package adapters

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"

	"github.com/vertamedia/vertamedia-pbs/openrtb_ext"
)

type BidderInfos map[string]BidderInfo

// ParseBidderInfos reads all the static/bidder-info/{bidder}.yaml files from the filesystem.
// The map it returns will have a key for every element of the bidders array.
// It fails if a {bidder}.yaml file does not exist for some bidder.
func ParseBidderInfos(infoDir string, bidders []openrtb_ext.BidderName) (BidderInfos, error) {
	bidderInfos := make(BidderInfos, len(bidders))
	for _, bidderName := range bidders {
		bidderString := string(bidderName)
		fileName := filepath.Join(infoDir, bidderString+".yaml")
		fileData, err := ioutil.ReadFile(fileName)
		if err != nil {
			return nil, fmt.Errorf("error reading from file %s: %v", fileName, err)
		}

		var parsedInfo BidderInfo
		if err := yaml.Unmarshal(fileData, &parsedInfo); err != nil {
			return nil, fmt.Errorf("error parsing yaml in file %s: %v", fileName, err)
		}
		bidderInfos[bidderString] = parsedInfo
	}
	return bidderInfos, nil
}

func (infos BidderInfos) HasSiteSupport(bidder openrtb_ext.BidderName) bool {
	info, ok := infos[string(bidder)]
	return ok && info.Capabilities != nil && info.Capabilities.Site != nil
}

func (infos BidderInfos) SupportsWebMediaType(bidder openrtb_ext.BidderName, mediaType openrtb_ext.BidType) bool {
	if !infos.HasSiteSupport(bidder) {
		return false
	}
	return containsMediaType(infos[string(bidder)].Capabilities.Site.MediaTypes, mediaType)
}

type BidderInfo struct {
	Maintainer   *MaintainerInfo   `yaml:"maintainer" json:"maintainer"`
	Capabilities *CapabilitiesInfo `yaml:"capabilities" json:"capabilities"`
}

type MaintainerInfo struct {
	Email string `yaml:"email" json:"email"`
}

type CapabilitiesInfo struct {
	Site *PlatformInfo `yaml:"site" json:"site"`
}

type PlatformInfo struct {
	MediaTypes []openrtb_ext.BidType `yaml:"mediaTypes" json:"mediaTypes"`
}

func containsMediaType(haystack []openrtb_ext.BidType, needle openrtb_ext.BidType) bool {
	for i := 0; i < len(haystack); i++ {
		if needle == haystack[i] {
			return true
		}
	}
	return false
}
