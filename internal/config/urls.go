// Package config provides configuration management for the OAuth2 service.
package config

// ServiceURLs contains URLs for downstream services based on environment.
// URLs are automatically configured based on the current environment setting.
type ServiceURLs struct {
	// ParishAppBaseURL is the base URL for the main OutwardSign application
	// API, used to notify it of consent changes.
	ParishAppBaseURL string
}

// GetServiceURLs returns environment-appropriate URLs for downstream services.
// Calling code does not need to know about the environment - it's handled internally.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	urls := cfg.GetServiceURLs()
//	appURL := urls.ParishAppBaseURL
func (c *Config) GetServiceURLs() ServiceURLs {
	switch c.Environment.Environment {
	case NonProd:
		fallthrough
	case Prod:
		return ServiceURLs{
			ParishAppBaseURL: "http://outwardsign-app.outwardsign.svc.cluster.local:3000/api/v1",
		}
	case Local:
		fallthrough
	default:
		return ServiceURLs{
			ParishAppBaseURL: "http://outwardsign.local/api/v1",
		}
	}
}
