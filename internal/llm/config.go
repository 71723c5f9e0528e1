// Package llm generates outreach copy through a hosted language model.
package llm

// ModelTier selects between a cheap model for short copy and a stronger one
// for longer pages.
type ModelTier string

const (
	// TierFast is used for subject lines, short emails and campaign names.
	TierFast ModelTier = "fast"
	// TierQuality is used for landing page copy.
	TierQuality ModelTier = "quality"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider.
const ProviderGemini Provider = "gemini"

// Config holds the model configuration.
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the Gemini configuration used by the agent.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierFast:    "gemini-2.5-flash-lite",
			TierQuality: "gemini-2.5-flash",
		},
		Temperature: 0.7,
	}
}

// GetModel returns the model name for a tier, falling back to the fast tier.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	return c.Models[TierFast]
}

// WithModel returns a copy of c using model for tier.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := &Config{Provider: c.Provider, Models: make(map[ModelTier]string, len(c.Models)), Temperature: c.Temperature}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return out
}
