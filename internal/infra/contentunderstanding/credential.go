package contentunderstanding

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
)

const (
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	authorizationHeader   = "Authorization"
	userAgentHeader       = "x-ms-useragent"
)

// Credential produces the auth header sent with every request.
type Credential interface {
	Header() (name, value string)
}

// SubscriptionKey authenticates with the Ocp-Apim-Subscription-Key header.
type SubscriptionKey string

func (k SubscriptionKey) Header() (string, string) {
	return subscriptionKeyHeader, string(k)
}

// BearerToken authenticates with an Authorization: Bearer header.
type BearerToken string

func (t BearerToken) Header() (string, string) {
	return authorizationHeader, "Bearer " + string(t)
}

// TokenProvider supplies an AAD token. It is called once, when the client is built.
type TokenProvider func() (string, error)

// resolveCredential picks the subscription key when present, otherwise asks the provider.
func resolveCredential(key string, provider TokenProvider) (Credential, error) {
	if key != "" {
		return SubscriptionKey(key), nil
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: either subscription key or token provider must be provided", domain.ErrConfig)
	}
	token, err := provider()
	if err != nil {
		return nil, fmt.Errorf("%w: token provider: %v", domain.ErrConfig, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token provider returned an empty token", domain.ErrConfig)
	}
	return BearerToken(token), nil
}
