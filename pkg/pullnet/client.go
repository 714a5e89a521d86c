package pullnet

import (
	"context"

	"github.com/sammck-go/logger"

	"github.com/pullnet/pullnet/pkg/engine"
)

// Dial connects to addr and returns the connection's Exchange. See
// DialContext.
func Dial(lg logger.Logger, addr string, cfg ClientConfig) (*Exchange, error) {
	return DialContext(context.Background(), lg, addr, cfg)
}

// DialContext initiates one outbound TCP connection. On success exactly one
// Exchange is yielded and the caller owns it. On failure (refused, timed
// out, unreachable, resolution failure) a *ConnectError carrying the
// underlying cause is returned and no Exchange is ever produced; there is
// no internal retry. ctx bounds the connection attempt only.
//
// Closing the returned Exchange releases everything the connection owns:
// the engine channel, the inbound queue (releasing a suspended reader with
// end-of-stream), and, unless a shared Group was configured, the
// connection's goroutine group.
func DialContext(ctx context.Context, lg logger.Logger, addr string, cfg ClientConfig) (*Exchange, error) {
	ncfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	group := ncfg.Group
	ownsGroup := group == nil
	if ownsGroup {
		group = engine.NewGroup()
	}

	ch, err := engine.Dial(ctx, lg, "tcp", addr, ncfg.engineOptions(), group)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Cause: err}
	}

	pump := newConnPump(lg, ch, ncfg.InboundQueueLimit)
	pump.group = group
	pump.ownsGroup = ownsGroup
	ch.Start(pump.handleEvent)
	return &Exchange{p: pump}, nil
}
