package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// descriptorDTO is the wire shape one directory-service gateway entry is
// decoded from, mirroring internal/account's apiclient.go JSON-decode
// style: plain strings for every base58-encoded field, parsed into their
// typed form after decode.
type descriptorDTO struct {
	Identity               string `json:"identity"`
	Host                   string `json:"host"`
	Location               string `json:"location"`
	CanConnect             bool   `json:"can_connect"`
	CanRouteIPv4           bool   `json:"can_route_ipv4"`
	CanRouteIPv6           bool   `json:"can_route_ipv6"`
	CanRouteExternalIPv4   bool   `json:"can_route_external_ipv4"`
	CanRouteExternalIPv6   bool   `json:"can_route_external_ipv6"`
	AuthenticatorRecipient string `json:"authenticator_recipient"`
	IPRRecipient           string `json:"ipr_recipient"`
	WireguardListenPort    uint16 `json:"wireguard_listen_port"`
}

func (d descriptorDTO) toDescriptor() (Descriptor, error) {
	identity, err := ParseNodeIdentity(d.Identity)
	if err != nil {
		return Descriptor{}, fmt.Errorf("gateway: identity: %w", err)
	}
	var authRecipient, iprRecipient Recipient
	if d.AuthenticatorRecipient != "" {
		authRecipient, err = ParseRecipient(d.AuthenticatorRecipient)
		if err != nil {
			return Descriptor{}, fmt.Errorf("gateway: authenticator_recipient: %w", err)
		}
	}
	if d.IPRRecipient != "" {
		iprRecipient, err = ParseRecipient(d.IPRRecipient)
		if err != nil {
			return Descriptor{}, fmt.Errorf("gateway: ipr_recipient: %w", err)
		}
	}
	return Descriptor{
		Identity: identity,
		Host:     d.Host,
		Location: d.Location,
		Probe: &ProbeOutcome{
			CanConnect:           d.CanConnect,
			CanRouteIPv4:         d.CanRouteIPv4,
			CanRouteIPv6:         d.CanRouteIPv6,
			CanRouteExternalIPv4: d.CanRouteExternalIPv4,
			CanRouteExternalIPv6: d.CanRouteExternalIPv6,
		},
		AuthenticatorRecipient: authRecipient,
		IPRRecipient:           iprRecipient,
		WireguardListenPort:    d.WireguardListenPort,
	}, nil
}

// HTTPProvider fetches the gateway list from the network's directory
// service over plain JSON HTTP, the same decode-then-parse style
// internal/account.httpAPIClient uses.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider builds an HTTPProvider against baseURL (a
// NetworkEnvironment's NymAPIURL), reusing httpClient if non-nil.
func NewHTTPProvider(baseURL string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPProvider{baseURL: baseURL, httpClient: httpClient}
}

func (p *HTTPProvider) ListGateways(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/gateways", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: directory service returned %d", resp.StatusCode)
	}

	var dtos []descriptorDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("gateway: decode directory response: %w", err)
	}

	gateways := make([]Descriptor, 0, len(dtos))
	for _, dto := range dtos {
		d, err := dto.toDescriptor()
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, d)
	}
	return gateways, nil
}
