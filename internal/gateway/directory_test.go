package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	gateways []Descriptor
	err      error
	calls    int
}

func (f *fakeProvider) ListGateways(ctx context.Context) ([]Descriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.gateways, nil
}

func TestDirectory_ResolveByLocation(t *testing.T) {
	id := NodeIdentity{1}
	p := &fakeProvider{gateways: []Descriptor{
		{Identity: id, Location: "CH", Probe: &ProbeOutcome{CanConnect: true}},
		{Identity: NodeIdentity{2}, Location: "DE", Probe: &ProbeOutcome{CanConnect: true}},
	}}
	d := NewDirectory(p, time.Minute, nil)
	defer d.Close()

	got, err := d.Resolve(context.Background(), KindEntry, ByLocationPoint("CH"), PerformanceOptions{})
	require.NoError(t, err)
	require.Equal(t, id, got.Identity)
}

func TestDirectory_ResolveNoMatch(t *testing.T) {
	p := &fakeProvider{gateways: []Descriptor{{Identity: NodeIdentity{1}, Location: "DE"}}}
	d := NewDirectory(p, time.Minute, nil)
	defer d.Close()

	_, err := d.Resolve(context.Background(), KindEntry, ByLocationPoint("CH"), PerformanceOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoGatewayAvailable))
}

func TestDirectory_CachesAcrossCalls(t *testing.T) {
	p := &fakeProvider{gateways: []Descriptor{{Identity: NodeIdentity{1}}}}
	d := NewDirectory(p, time.Minute, nil)
	defer d.Close()

	for i := 0; i < 5; i++ {
		_, err := d.Resolve(context.Background(), KindEntry, RandomPoint(), PerformanceOptions{})
		require.NoError(t, err)
	}
	require.Equal(t, 1, p.calls)
}

func TestDirectory_StaleOnError(t *testing.T) {
	p := &fakeProvider{gateways: []Descriptor{{Identity: NodeIdentity{1}}}}
	d := NewDirectory(p, time.Millisecond, nil)
	defer d.Close()

	_, err := d.Resolve(context.Background(), KindEntry, RandomPoint(), PerformanceOptions{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	p.err = errors.New("upstream down")

	got, err := d.Resolve(context.Background(), KindEntry, RandomPoint(), PerformanceOptions{})
	require.NoError(t, err)
	require.Equal(t, NodeIdentity{1}, got.Identity)
}

func TestRecipient_RoundTrip(t *testing.T) {
	r := Recipient{UserPK: [32]byte{1, 2, 3}, EncryptionPK: [32]byte{4, 5, 6}, GatewayID: [32]byte{7, 8, 9}}
	s := r.String()
	got, err := ParseRecipient(s)
	require.NoError(t, err)
	require.True(t, r.Equal(got))
}
