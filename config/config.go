package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"shade/crypto"
)

// TokenEntry seeds the external token directory with a contract the platform
// knows how to ask for a symbol.
type TokenEntry struct {
	Address  string `toml:"Address"`
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

type Config struct {
	RPCAddress       string       `toml:"RPCAddress"`
	DataDir          string       `toml:"DataDir"`
	EventJournalPath string       `toml:"EventJournalPath"`
	AdminAddress     string       `toml:"AdminAddress"`
	NetworkName      string       `toml:"NetworkName"`
	RPCToken         string       `toml:"RPCToken"`
	OTLPEndpoint     string       `toml:"OTLPEndpoint"`
	OTLPInsecure     bool         `toml:"OTLPInsecure"`
	TelemetryEnabled bool         `toml:"TelemetryEnabled"`
	Tokens           []TokenEntry `toml:"Tokens"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown field %s", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field shapes that cannot wait until first use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if addr := strings.TrimSpace(c.AdminAddress); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("AdminAddress: %w", err)
		}
	}
	for i, token := range c.Tokens {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(token.Address)); err != nil {
			return fmt.Errorf("Tokens[%d].Address: %w", i, err)
		}
		if strings.TrimSpace(token.Symbol) == "" {
			return fmt.Errorf("Tokens[%d].Symbol must not be empty", i)
		}
	}
	return nil
}

// Journal returns the event journal path, defaulting to a file inside the
// data directory.
func (c *Config) Journal() string {
	if strings.TrimSpace(c.EventJournalPath) != "" {
		return c.EventJournalPath
	}
	return filepath.Join(c.DataDir, "events.db")
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       "127.0.0.1:8645",
		DataDir:          "./shade-data",
		NetworkName:      "shade-local",
		TelemetryEnabled: false,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
