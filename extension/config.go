package extension

// Config holds the Recur extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.recur" or "recur" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the ISO currency code every plan price and payment
	// must carry (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// Owner is the account bootstrapped as ledger owner on first start.
	// Ignored once the store already records an owner.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency: "usd",
	}
}
