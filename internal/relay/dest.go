package relay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// destSession registers one destination connection and watches it for
// peer-initiated closure. CTMP destinations are receive-only, so the
// watcher peeks under a read deadline: peer-close is distinguished from
// peer-sent data without consuming anything into the relay path.
type destSession struct {
	conn     net.Conn
	registry *Registry
	poll     time.Duration
	log      zerolog.Logger
}

func (d *destSession) run(ctx context.Context) {
	d.registry.Add(d.conn)
	defer func() {
		d.registry.Remove(d.conn)
		_ = d.conn.Close()
	}()

	r := bufio.NewReader(d.conn)
	for ctx.Err() == nil {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.poll))
		_, err := r.Peek(1)
		switch {
		case err == nil:
			// Peer pushed bytes; the protocol never forwards them, so
			// they only count as liveness. Wait out one poll interval
			// before looking again.
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.poll):
			}
		case errors.Is(err, os.ErrDeadlineExceeded):
			// Idle poll tick.
		case errors.Is(err, io.EOF):
			d.log.Debug().Msg("destination closed by peer")
			return
		default:
			d.log.Debug().Err(err).Msg("destination watch ended")
			return
		}
	}
}
