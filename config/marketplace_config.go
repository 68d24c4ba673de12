package config

// MarketplaceConfig holds the authenticated marketplace API settings
type MarketplaceConfig struct {
	APIBase        string `toml:"api_base"`
	AuthToken      string `toml:"auth_token"`
	InstallationID string `toml:"installation_id"`
	Language       string `toml:"language"`
	Region         string `toml:"region"`
}

// DefaultMarketplaceConfig returns the public endpoint with no credentials
func DefaultMarketplaceConfig() MarketplaceConfig {
	return MarketplaceConfig{
		APIBase:  "https://api.umarket.uz/api/v2/product/",
		Language: "uz-UZ",
	}
}

// IsValid checks if the marketplace credentials are present
func (c *MarketplaceConfig) IsValid() bool {
	return c.AuthToken != "" && c.InstallationID != ""
}

// GameMarketConfig holds the game-item market API settings
type GameMarketConfig struct {
	Endpoint string `toml:"endpoint"`
	// Currency is the market's numeric currency code (1 = USD).
	Currency int `toml:"currency"`
}
