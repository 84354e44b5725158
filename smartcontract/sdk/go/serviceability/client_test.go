package serviceability

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/go-cmp/cmp"
)

var locationPayload = `
030a3b74b3535cdeb34fd5e4cd7ea1133e55abc521c8850f6d0
8166d11e482897806000000000000000000000000000000fea2
e3b2a599d54140b03f0a3a80786140000000000103000000747
96f05000000546f6b796f020000004a5065483c031c496dd52f
fd841907413a92
`

var devicePayload = `
050a3b74b3535cdeb34fd5e4cd7ea1133e55abc521c8850f6d08
166d11e482897816000000000000000000000000000000ff0000
0000000000080000000000000000000000000000000000000000
0000000000000000000000090000000000000000000000000000
0000000000000000000000b4579a7001080000007479322d647a
303101000000b4579a701d000000000000001a00000000000000
0000000000000000000000000000000000000000000000000300
0000000000000000000000000000000000000000000000070000
0064656661756c740200000000020b000000737769746368312f
312f3102002a000a0102031d7b00000002030000006c6f300101
0f000a0203041d2a0001d20400006e008000
`

type mockSolanaClient struct {
	payload     string
	pubkey      solana.PublicKey
	returnEmpty bool
}

func (m *mockSolanaClient) GetProgramAccounts(context.Context, solana.PublicKey) (rpc.GetProgramAccountsResult, error) {
	if m.returnEmpty {
		return []*rpc.KeyedAccount{}, nil
	}
	data, err := hex.DecodeString(strings.ReplaceAll(m.payload, "\n", ""))
	if err != nil {
		return nil, err
	}
	return []*rpc.KeyedAccount{
		{
			Pubkey: m.pubkey,
			Account: &rpc.Account{
				Data: rpc.DataBytesOrJSONFromBytes(data),
			},
		},
	}, nil
}

func getOwner(payload string) [32]byte {
	return getPubKeyOffset(payload, 1, 33)
}

func getPubKeyOffset(payload string, start, end int) [32]byte {
	var d [32]byte
	p, _ := hex.DecodeString(strings.ReplaceAll(payload, "\n", ""))
	copy(d[:], p[start:end])
	return d
}

func TestSDK_Serviceability_GetProgramData(t *testing.T) {
	pubkeys := [][32]uint8{
		{0xb2, 0x45, 0xf9, 0x21, 0x83, 0xe1, 0xb4, 0x09, 0xbb, 0x70, 0x06, 0x56, 0x0f, 0x85, 0x8c, 0xf3,
			0xbf, 0xa5, 0x57, 0xc7, 0x5c, 0xd9, 0x67, 0x18, 0x2a, 0x00, 0x39, 0x22, 0x00, 0xb5, 0xde, 0x78},
		{0xb3, 0x45, 0xf9, 0x21, 0x83, 0xe1, 0xb4, 0x09, 0xbb, 0x70, 0x06, 0x56, 0x0f, 0x85, 0x8c, 0xf3,
			0xbf, 0xa5, 0x57, 0xc7, 0x5c, 0xd9, 0x67, 0x18, 0x2a, 0x00, 0x39, 0x22, 0x00, 0xb5, 0xde, 0x78},
	}
	tests := []struct {
		Name        string
		Description string
		Payload     string
		Want        *ProgramData
	}{
		{
			Name:        "parse_valid_device",
			Description: "parse and populate a valid device struct",
			Payload:     strings.TrimSuffix(devicePayload, "\n"),
			Want: &ProgramData{
				Devices: []Device{
					{
						AccountType:            DeviceType,
						Index:                  Uint128{High: 22, Low: 0},
						Bump_seed:              255,
						Owner:                  getOwner(devicePayload),
						LocationPubKey:         getPubKeyOffset(devicePayload, 50, 82),
						ExchangePubKey:         getPubKeyOffset(devicePayload, 82, 114),
						DeviceType:             0,
						PublicIp:               [4]byte{0xb4, 0x57, 0x9a, 0x70},
						Status:                 1,
						Code:                   "ty2-dz01",
						DzPrefixes:             [][5]byte{{0xb4, 0x57, 0x9a, 0x70, 0x1d}},
						MetricsPublisherPubKey: getPubKeyOffset(devicePayload, 141, 173),
						ContributorPubKey:      getPubKeyOffset(devicePayload, 173, 205),
						MgmtVrf:                "default",
						Interfaces: []Interface{
							{
								Version:            0,
								Status:             InterfaceStatusPending,
								Name:               "switch1/1/1",
								InterfaceType:      InterfaceTypePhysical,
								LoopbackType:       LoopbackTypeNone,
								VlanId:             42,
								IpNet:              [5]byte{0x0a, 0x01, 0x02, 0x03, 0x1d},
								NodeSegmentIdx:     123,
								UserTunnelEndpoint: false,
							},
							{
								Version:            0,
								Status:             InterfaceStatusPending,
								Name:               "lo0",
								InterfaceType:      InterfaceTypeLoopback,
								LoopbackType:       LoopbackTypeVpnv4,
								VlanId:             15,
								IpNet:              [5]byte{0x0a, 0x02, 0x03, 0x04, 0x1d},
								NodeSegmentIdx:     42,
								UserTunnelEndpoint: true,
							},
						},
						ReferenceCount: 1234,
						UsersCount:     110,
						MaxUsers:       128,
						PubKey:         pubkeys[0],
					},
				},
				Locations: []Location{},
			},
		},
		{
			Name:        "parse_valid_location",
			Description: "parse and populate a valid location struct",
			Payload:     strings.TrimSuffix(locationPayload, "\n"),
			Want: &ProgramData{
				Locations: []Location{
					{
						AccountType: LocationType,
						Index:       Uint128{High: 6, Low: 0},
						Bump_seed:   254,
						Owner:       getOwner(locationPayload),
						Lat:         35.66875144228767,
						Lng:         139.76565267564501,
						LocId:       0,
						Status:      1,
						Code:        "tyo",
						Name:        "Tokyo",
						Country:     "JP",
						PubKey:      pubkeys[1],
					},
				},
				Devices: []Device{},
			},
		},
	}

	for idx, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			client := &Client{rpc: &mockSolanaClient{payload: test.Payload, pubkey: pubkeys[idx]}}
			got, err := client.GetProgramData(t.Context())
			if err != nil {
				t.Fatalf("error while loading data: %v", err)
			}
			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Client diff found; -want, +got: %s", diff)
			}
		})

	}
}

func TestSDK_Serviceability_GetProgramData_EmptyResult(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	client := &Client{
		rpc:       &mockSolanaClient{returnEmpty: true},
		programID: programID,
	}

	_, err := client.GetProgramData(t.Context())
	if err == nil {
		t.Fatal("expected error for empty GetProgramAccounts result, got nil")
	}

	expectedErrSubstring := "GetProgramAccounts returned empty result"
	if !strings.Contains(err.Error(), expectedErrSubstring) {
		t.Fatalf("expected error to contain %q, got: %v", expectedErrSubstring, err)
	}
}
