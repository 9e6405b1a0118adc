package relay

import (
	"bufio"
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"

	"github.com/danmuck/ctmprelay/internal/observability"
	"github.com/danmuck/ctmprelay/internal/protocol/frame"
)

// sourceSession decodes frames from one source connection and hands each
// frame's raw bytes to the registry for broadcast. The first invalid
// input ends the session; no resynchronization is attempted.
type sourceSession struct {
	conn     net.Conn
	registry *Registry
	log      zerolog.Logger
}

func (s *sourceSession) run(ctx context.Context) {
	defer s.conn.Close()
	r := bufio.NewReader(s.conn)
	for ctx.Err() == nil {
		fr, err := frame.ReadFrame(r)
		if err != nil {
			s.logDecodeFailure(err)
			return
		}
		delivered := s.registry.Broadcast(fr.Raw)
		observability.RecordFrameRelayed(len(fr.Raw), delivered)
		s.log.Debug().
			Int("wire_bytes", len(fr.Raw)).
			Int("fanout", delivered).
			Bool("sensitive", fr.Header.Sensitive()).
			Msg("frame relayed")
	}
}

func (s *sourceSession) logDecodeFailure(err error) {
	switch {
	case errors.Is(err, frame.ErrChecksumMismatch):
		observability.RecordFrameDropped("checksum_mismatch")
		s.log.Warn().Msg("dropping untrusted packet: checksum mismatch")
	case errors.Is(err, frame.ErrTruncated):
		observability.RecordFrameDropped("truncated")
		s.log.Debug().Msg("source disconnected or closed mid-frame")
	case errors.Is(err, frame.ErrBadMagic):
		observability.RecordFrameDropped("bad_magic")
		s.log.Warn().Err(err).Msg("dropping malformed frame")
	case errors.Is(err, frame.ErrBadReserved):
		observability.RecordFrameDropped("bad_reserved")
		s.log.Warn().Err(err).Msg("dropping malformed frame")
	case errors.Is(err, frame.ErrOversized):
		observability.RecordFrameDropped("oversized")
		s.log.Warn().Err(err).Msg("dropping malformed frame")
	default:
		observability.RecordFrameDropped("read_error")
		s.log.Warn().Err(err).Msg("source read failed")
	}
}
