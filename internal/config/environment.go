// Package config describes the network environments nym-vpnd can target
// and resolves local data/config directories.
package config

import "fmt"

// Environment names accepted on the command line and in the control API.
const (
	EnvMainnet = "mainnet"
	EnvCanary  = "canary"
	EnvQA      = "qa"
	EnvSandbox = "sandbox"
)

// NetworkEnvironment bundles the addresses and chain parameters that differ
// between deployments. The four named environments are compiled in; a
// custom one can be read from YAML with LoadEnvironmentFile. NYM_VPND_*
// environment variables can override the two most commonly overridden
// endpoints in either case.
type NetworkEnvironment struct {
	Moniker string `yaml:"moniker,omitempty"`

	NymAPIURL string `yaml:"nym_api_url"`
	VpnAPIURL string `yaml:"vpn_api_url,omitempty"`

	ChainID      string `yaml:"chain_id,omitempty"`
	Bech32Prefix string `yaml:"bech32_prefix,omitempty"`
	MixDenom     string `yaml:"mix_denom,omitempty"`
	StakeDenom   string `yaml:"stake_denom,omitempty"`
	ExplorerURL  string `yaml:"explorer_url,omitempty"`

	MixnetContractAddress      string `yaml:"mixnet_contract_address,omitempty"`
	VestingContractAddress     string `yaml:"vesting_contract_address,omitempty"`
	EcashContractAddress       string `yaml:"ecash_contract_address,omitempty"`
	GroupContractAddress       string `yaml:"group_contract_address,omitempty"`
	MultisigContractAddress    string `yaml:"multisig_contract_address,omitempty"`
	PerformanceContractAddress string `yaml:"performance_contract_address,omitempty"`
}

var mainnet = NetworkEnvironment{
	Moniker:                    EnvMainnet,
	NymAPIURL:                  "https://validator.nymtech.net/api",
	VpnAPIURL:                  "https://nymvpn.com/api",
	ChainID:                    "nyx",
	Bech32Prefix:               "n",
	MixDenom:                   "unym",
	StakeDenom:                 "unyx",
	ExplorerURL:                "https://nym.explorers.guru",
	MixnetContractAddress:      "n17srjznxl9dvzdkpwpw24gg668wc73val88a6m5ajg6ffsn7us4yq2dyzf5",
	VestingContractAddress:     "n1nc5tatafv6eyq7llkr2gv50ff9e22mnf70qgjlv737ktmt4eswrqaf7pyw",
	EcashContractAddress:       "n1ahg0erc2fp6287dvud6ua9d9hab9fzfegxq5xlyqnyq24gh3y38sv2q8ap",
	GroupContractAddress:       "n18nczmqw6adwxg2wnlef3hwkz02a7fzkx95qvrmndgjq2z0yncl8q89vfdc",
	MultisigContractAddress:    "n1q3zzxn7ws6yxhlkq2x3w56emc5kpe6v3fhyaa6d5fz0cnaz3s2wqtdfjhz",
	PerformanceContractAddress: "n1gekcrm0kafgh0jrtvt6zysnlrg2qgrrkjlj7pwf5nyvpqf5qe7xsqadt9c",
}

var canary = NetworkEnvironment{
	Moniker:      EnvCanary,
	NymAPIURL:    "https://canary-api.nymtech.net",
	VpnAPIURL:    "https://canary.nymvpn.com/api",
	ChainID:      "nyx",
	Bech32Prefix: "n",
	MixDenom:     "unym",
	StakeDenom:   "unyx",
	ExplorerURL:  "https://nym.explorers.guru",
}

var qa = NetworkEnvironment{
	Moniker:      EnvQA,
	NymAPIURL:    "https://qa-nym-api.qa.nymte.ch/api",
	VpnAPIURL:    "https://nymvpn.qa.nymte.ch/api",
	ChainID:      "qa-nyx",
	Bech32Prefix: "nqa",
	MixDenom:     "uqanym",
	StakeDenom:   "uqanyx",
	ExplorerURL:  "https://qa-nym.explorers.guru",
}

var sandbox = NetworkEnvironment{
	Moniker:      EnvSandbox,
	NymAPIURL:    "https://sandbox-nym-api.nymtech.net/api",
	VpnAPIURL:    "https://nymvpn.sandbox.nymtech.net/api",
	ChainID:      "sandbox",
	Bech32Prefix: "n",
	MixDenom:     "unym",
	StakeDenom:   "unyx",
	ExplorerURL:  "https://sandbox-nym.explorers.guru",
}

// EnvironmentForName resolves a NetworkEnvironment by name, applying any
// endpoint overrides present in the process environment
// (NYM_VPND_NYM_API_URL / NYM_VPND_VPN_API_URL).
func EnvironmentForName(name string) (*NetworkEnvironment, error) {
	var env NetworkEnvironment
	switch name {
	case EnvMainnet:
		env = mainnet
	case EnvCanary:
		env = canary
	case EnvQA:
		env = qa
	case EnvSandbox:
		env = sandbox
	default:
		return nil, fmt.Errorf("invalid environment %q, must be one of: %s, %s, %s, %s", name, EnvMainnet, EnvCanary, EnvQA, EnvSandbox)
	}

	applyOverrides(&env)
	return &env, nil
}
