package gateway

import (
	"context"
	"net"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/nymtech/nym-vpnd-core/smartcontract/sdk/go/serviceability"
)

// OnChainProvider is a Provider backed by the on-chain device registry
// instead of a centralized directory API: it reads every activated Device
// account under a known program ID directly off a Solana RPC endpoint.
// It reuses smartcontract/sdk/go/serviceability's Client/GetProgramData,
// the same account-decoding path a control-plane analytics service would
// use to enumerate devices.
type OnChainProvider struct {
	client *serviceability.Client
}

// NewOnChainProvider dials rpcEndpoint and scopes reads to programID.
func NewOnChainProvider(rpcEndpoint string, programID solana.PublicKey) *OnChainProvider {
	return &OnChainProvider{client: serviceability.New(rpc.New(rpcEndpoint), programID)}
}

// ListGateways decodes every activated Device account into a Descriptor.
// AuthenticatorRecipient/IPRRecipient are left zero: the on-chain record
// carries reachability and location, not the nym-specific recipient triple,
// so Descriptors from this provider carry zero-valued recipients.
func (p *OnChainProvider) ListGateways(ctx context.Context) ([]Descriptor, error) {
	data, err := p.client.GetProgramData(ctx)
	if err != nil {
		return nil, err
	}

	locations := make(map[[32]byte]string, len(data.Locations))
	for _, loc := range data.Locations {
		locations[loc.PubKey] = loc.Country
	}

	descriptors := make([]Descriptor, 0, len(data.Devices))
	for _, d := range data.Devices {
		if d.Status != serviceability.DeviceStatusActivated {
			continue
		}
		descriptors = append(descriptors, Descriptor{
			Identity: NodeIdentity(d.PubKey),
			Host:     net.IP(d.PublicIp[:]).String(),
			Location: locations[d.LocationPubKey],
			Probe:    &ProbeOutcome{CanConnect: true},
		})
	}
	return descriptors, nil
}
