package errortypes

// Severity tells whether an error cost the caller a bid or only trimmed the request.
type Severity int

const (
	SeverityUnknown Severity = iota

	// SeverityFatal marks an error which dropped a bid request or a bid from the server response.
	SeverityFatal

	// SeverityWarning marks an error where part of the bidder request was skipped, such as a bid
	// with a media type the bidder does not serve, while the rest went through.
	SeverityWarning
)

// SeverityOf returns the severity of err. Errors outside this package count as fatal.
func SeverityOf(err error) Severity {
	if coder, ok := err.(Coder); ok {
		return coder.Severity()
	}
	return SeverityFatal
}

// IsWarning is true for errors of type Warning, the only SeverityWarning type in this package.
func IsWarning(err error) bool {
	return SeverityOf(err) == SeverityWarning
}

// ContainsFatalError reports whether any of errs is fatal.
func ContainsFatalError(errs []error) bool {
	for _, err := range errs {
		if SeverityOf(err) == SeverityFatal {
			return true
		}
	}
	return false
}

// FatalOnly keeps the fatal errors of errs, in order.
func FatalOnly(errs []error) []error {
	return filterBySeverity(errs, SeverityFatal)
}

// WarningOnly keeps the warnings of errs, in order.
func WarningOnly(errs []error) []error {
	return filterBySeverity(errs, SeverityWarning)
}

func filterBySeverity(errs []error, severity Severity) []error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if SeverityOf(err) == severity {
			filtered = append(filtered, err)
		}
	}
	return filtered
}
