package urlstrategy

import (
	"fmt"
)

// URLStrategyType represents the type of URL strategy
type URLStrategyType string

const (
	// CDN strategy for direct URLs to the object key
	StrategyTypeCDN URLStrategyType = "cdn"

	// Content-based strategy for application-routed URLs
	StrategyTypeContentBased URLStrategyType = "content-based"
)

// DefaultAPIBaseURL is used by the content-based strategy when no base is set
const DefaultAPIBaseURL = "/api/v1"

// Config holds configuration for URL strategy creation
type Config struct {
	Type       URLStrategyType
	CDNBaseURL string // For CDN strategy
	APIBaseURL string // For content-based strategy
}

// NewURLStrategy creates a URL strategy based on the configuration
func NewURLStrategy(config Config) (URLStrategy, error) {
	switch config.Type {
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL), nil

	case StrategyTypeContentBased:
		if config.APIBaseURL == "" {
			config.APIBaseURL = DefaultAPIBaseURL
		}
		return NewContentBasedStrategy(config.APIBaseURL), nil

	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// NewRecommendedStrategy creates the recommended URL strategy based on environment.
// Production with a CDN serves images straight from it; everything else goes
// through the API.
func NewRecommendedStrategy(environment string, cdnURL string, apiURL string) URLStrategy {
	if environment == "production" && cdnURL != "" {
		return NewCDNStrategy(cdnURL)
	}
	if apiURL == "" {
		apiURL = DefaultAPIBaseURL
	}
	return NewContentBasedStrategy(apiURL)
}
