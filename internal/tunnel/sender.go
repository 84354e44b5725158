package tunnel

import (
	"context"
	"fmt"

	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/ipr"
	"github.com/nymtech/nym-vpnd-core/internal/mixnet"
)

// iprDataSender adapts the shared mixnet handle into an icmpbeacon.Sender,
// bundling each ICMP probe frame in an IPR Data envelope addressed to the
// exit gateway (spec §4.F).
type iprDataSender struct {
	handle *mixnet.Handle
	exit   gateway.Recipient
}

func (s *iprDataSender) SendFrame(ctx context.Context, ipFrame []byte) error {
	frame, err := ipr.EncodeDataFrame(ipFrame)
	if err != nil {
		return fmt.Errorf("tunnel: encode icmp beacon data frame: %w", err)
	}
	return s.handle.Send(ctx, mixnet.InputMessage{Recipient: s.exit, Lane: "regular", Payload: frame})
}
