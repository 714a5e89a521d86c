package engine

import (
	"context"
	"net"

	"github.com/sammck-go/logger"
)

// Dial initiates an outbound connection and wraps it as an unstarted
// Channel. ctx bounds the connection attempt only; once the Channel is
// returned its lifetime is governed by its own shutdown. A failed attempt
// (refused, timed out, unreachable, resolution failure) returns the
// underlying error and no Channel.
func Dial(ctx context.Context, lg logger.Logger, network, address string, opts Options, g *Group) (*Channel, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	ch, err := NewChannel(lg, nc, opts, g)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return ch, nil
}
