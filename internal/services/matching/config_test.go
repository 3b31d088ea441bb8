package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights not summing to one", func(c *Config) { c.AmountWeight = 0.9 }},
		{"negative weight", func(c *Config) { c.DateWeight = -0.15 }},
		{"negative epsilon", func(c *Config) { c.AmountEpsilon = decimal.RequireFromString("-0.01") }},
		{"zero date window", func(c *Config) { c.DateWindowDays = 0 }},
		{"auto accept above one", func(c *Config) { c.AutoAcceptScore = 1.5 }},
		{"review above auto accept", func(c *Config) { c.ReviewScore = 0.95 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
