package gateway

import (
	"fmt"
)

// Config carries the credentials needed to build an adapter
type Config struct {
	Processor     ProcessorType
	SecretKey     string
	KeyID         string
	WebhookSecret string
}

// NewAdapter builds the configured processor adapter
func NewAdapter(cfg Config) (ProcessorAdapter, error) {
	switch cfg.Processor {
	case ProcessorStripe:
		return NewStripeAdapter(cfg.SecretKey, cfg.WebhookSecret)
	case ProcessorRazorpay:
		return NewRazorpayAdapter(cfg.KeyID, cfg.SecretKey, cfg.WebhookSecret)
	default:
		return nil, fmt.Errorf("unsupported processor: %s", cfg.Processor)
	}
}
