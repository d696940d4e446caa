package analysis

import "fmt"

// Settings is the immutable configuration of a single analysis run.
type Settings struct {
	Endpoint        string
	APIVersion      string
	SubscriptionKey string
	AADToken        string
	AnalyzerID      string
	FileLocation    string
	// UserAgent is sent as x-ms-useragent; empty means the client default.
	UserAgent string
}

// Validate requires at least one credential form.
func (s Settings) Validate() error {
	if s.SubscriptionKey == "" && s.AADToken == "" {
		return fmt.Errorf("%w: either subscription key or aad token must be provided", ErrConfig)
	}
	return nil
}

// TokenProvider returns a supplier for the AAD token, or nil when no token is set.
func (s Settings) TokenProvider() func() (string, error) {
	if s.AADToken == "" {
		return nil
	}
	token := s.AADToken
	return func() (string, error) { return token, nil }
}
