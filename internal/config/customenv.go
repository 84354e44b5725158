package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadEnvironmentFile parses a YAML network environment file, the Go
// equivalent of the env_config_file an operator can point a frontend at to
// target a private or staging deployment instead of one of the compiled-in
// environments. Moniker defaults to "custom" when left blank.
func LoadEnvironmentFile(path string) (*NetworkEnvironment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read environment file: %w", err)
	}

	var env NetworkEnvironment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("config: parse environment file %s: %w", path, err)
	}
	if env.NymAPIURL == "" {
		return nil, fmt.Errorf("config: environment file %s missing nym_api_url", path)
	}
	if env.Moniker == "" {
		env.Moniker = "custom"
	}

	applyOverrides(&env)
	return &env, nil
}
