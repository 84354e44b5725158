package serviceability

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

type Client struct {
	rpc       RPCClient
	programID solana.PublicKey
}

// ProgramData is the subset of the on-chain device registry a tunnel client
// needs: the set of locations (for display) and devices of every status
// (callers filter for activated ones when selecting gateways). The program also carries link, user, contributor and
// multicast-group accounts, which a client reading gateways never touches.
type ProgramData struct {
	Locations []Location
	Devices   []Device
}

func New(rpc RPCClient, programID solana.PublicKey) *Client {
	return &Client{rpc: rpc, programID: programID}
}

func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

func (c *Client) GetProgramData(ctx context.Context) (*ProgramData, error) {
	out, err := c.rpc.GetProgramAccounts(ctx, c.programID)
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("GetProgramAccounts returned empty result for program %s", c.programID)
	}

	locations := []Location{}
	devices := []Device{}

	for _, element := range out {
		data := element.Account.Data.GetBinary()
		if len(data) == 0 {
			continue
		}
		reader := NewByteReader(data)

		switch AccountType(data[0]) {
		case LocationType:
			var location Location
			DeserializeLocation(reader, &location)
			location.PubKey = element.Pubkey
			locations = append(locations, location)
		case DeviceType:
			var device Device
			DeserializeDevice(reader, &device)
			device.PubKey = element.Pubkey
			devices = append(devices, device)
		}
	}

	return &ProgramData{
		Locations: locations,
		Devices:   devices,
	}, nil
}
