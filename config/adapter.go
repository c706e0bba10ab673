package config

import (
	"fmt"

	validator "github.com/asaskevich/govalidator"
)

type Adapter struct {
	Endpoint         string `mapstructure:"endpoint"` // Required
	Disabled         bool   `mapstructure:"disabled"`
	ExtraAdapterInfo string `mapstructure:"extra_info"`
}

// validateAdapters validates every enabled adapter's endpoint
func validateAdapters(adapterMap map[string]Adapter, errs []error) []error {
	for adapterName, adapter := range adapterMap {
		if !adapter.Disabled {
			errs = validateAdapterEndpoint(adapter.Endpoint, adapterName, errs)
		}
	}
	return errs
}

// validateAdapterEndpoint makes sure that an adapter has a valid endpoint
// associated with it
func validateAdapterEndpoint(endpoint string, adapterName string, errs []error) []error {
	if endpoint == "" {
		return append(errs, fmt.Errorf("There's no default endpoint available for %s. Calls to this bidder will fail. "+
			"Please set adapters.%s.endpoint in your app config", adapterName, adapterName))
	}

	// Validating using both IsURL and IsRequestURL because IsURL allows relative paths
	// whereas IsRequestURL requires absolute path but fails to check other valid URL
	// format constraints.
	//
	// For example: IsURL will allow "abcd.com" but IsRequestURL won't
	// IsRequestURL will allow "http://http://abcd.com" but IsURL won't
	if !validator.IsURL(endpoint) || !validator.IsRequestURL(endpoint) {
		errs = append(errs, fmt.Errorf("The endpoint: %s for %s is not a valid URL", endpoint, adapterName))
	}
	return errs
}
