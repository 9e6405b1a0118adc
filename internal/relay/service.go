package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/danmuck/ctmprelay/internal/observability"
)

// SourcePolicy selects how concurrent source connections are treated.
type SourcePolicy string

const (
	// PolicyConcurrent admits any number of sources; their broadcasts
	// serialize through the registry mutex.
	PolicyConcurrent SourcePolicy = "concurrent"
	// PolicyExclusive admits one source at a time; a new source arriving
	// while the slot is held is rejected and closed.
	PolicyExclusive SourcePolicy = "exclusive"
)

var (
	ErrInvalidSourcePolicy = errors.New("relay: invalid source policy")
	ErrInvalidPollInterval = errors.New("relay: poll interval must be positive")
)

// Config is the relay endpoint configuration. Defaults reproduce the
// fixed constants of the wire contract: source ingest on 33333,
// destination fan-out on 44444, 100ms destination poll.
type Config struct {
	SourceListenAddr    string
	DestListenAddr      string
	MetricsListenAddr   string
	PollInterval        time.Duration
	SourcePolicy        SourcePolicy
	MaxConnsPerIPPerSec uint64
}

func DefaultConfig() Config {
	return Config{
		SourceListenAddr:    ":33333",
		DestListenAddr:      ":44444",
		MetricsListenAddr:   "",
		PollInterval:        100 * time.Millisecond,
		SourcePolicy:        PolicyConcurrent,
		MaxConnsPerIPPerSec: 64,
	}
}

// Service owns both listeners, the destination registry, and every
// per-connection session goroutine.
type Service struct {
	cfg Config
	log zerolog.Logger

	registry *Registry
	limiter  limiter.Store

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	sourceSlot atomic.Bool
}

// NewService constructs a relay service with default configuration.
func NewService() *Service {
	return NewServiceWithConfig(DefaultConfig())
}

// NewServiceWithConfig constructs a relay service with explicit
// configuration.
func NewServiceWithConfig(cfg Config) *Service {
	def := DefaultConfig()
	if cfg.SourceListenAddr == "" {
		cfg.SourceListenAddr = def.SourceListenAddr
	}
	if cfg.DestListenAddr == "" {
		cfg.DestListenAddr = def.DestListenAddr
	}
	if cfg.SourcePolicy == "" {
		cfg.SourcePolicy = def.SourcePolicy
	}
	if cfg.MaxConnsPerIPPerSec == 0 {
		cfg.MaxConnsPerIPPerSec = def.MaxConnsPerIPPerSec
	}
	return &Service{
		cfg:      cfg,
		log:      log.With().Str("component", "relay").Logger(),
		registry: NewRegistry(),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Registry exposes the destination registry owner.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Run blocks until signal-driven shutdown. Listener setup failure is the
// only fatal class and surfaces here.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx)
}

func (s *Service) serve(ctx context.Context) error {
	srcLn, err := net.Listen("tcp", s.cfg.SourceListenAddr)
	if err != nil {
		return fmt.Errorf("relay: listen source endpoint: %w", err)
	}
	dstLn, err := net.Listen("tcp", s.cfg.DestListenAddr)
	if err != nil {
		_ = srcLn.Close()
		return fmt.Errorf("relay: listen destination endpoint: %w", err)
	}
	return s.ServeListeners(ctx, srcLn, dstLn)
}

// ServeListeners runs both accept loops on existing listeners until ctx
// cancellation. Exported so tests can bind ephemeral ports.
func (s *Service) ServeListeners(ctx context.Context, srcLn, dstLn net.Listener) error {
	if err := s.bootstrap(); err != nil {
		_ = srcLn.Close()
		_ = dstLn.Close()
		return err
	}
	s.log.Info().
		Str("source_addr", srcLn.Addr().String()).
		Str("dest_addr", dstLn.Addr().String()).
		Str("source_policy", string(s.cfg.SourcePolicy)).
		Msg("relay listening")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopOnce sync.Once
	stop := func() {
		_ = srcLn.Close()
		_ = dstLn.Close()
		s.closeAllConns()
	}
	go func() {
		<-ctx.Done()
		stopOnce.Do(stop)
	}()
	defer func() {
		_ = s.limiter.Close(context.Background())
	}()

	if s.cfg.MetricsListenAddr != "" {
		go s.serveMetrics(ctx)
	}

	errc := make(chan error, 2)
	go func() { errc <- s.acceptLoop(ctx, srcLn, "source", s.handleSourceConn) }()
	go func() { errc <- s.acceptLoop(ctx, dstLn, "dest", s.handleDestConn) }()

	errA := <-errc
	stopOnce.Do(stop)
	errB := <-errc
	if errA != nil {
		return errA
	}
	return errB
}

// bootstrap validates configuration and builds the per-IP accept limiter.
func (s *Service) bootstrap() error {
	if s.cfg.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	switch s.cfg.SourcePolicy {
	case PolicyConcurrent, PolicyExclusive:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourcePolicy, s.cfg.SourcePolicy)
	}
	if s.limiter == nil {
		store, err := memorystore.New(&memorystore.Config{
			Tokens:   s.cfg.MaxConnsPerIPPerSec,
			Interval: time.Second,
		})
		if err != nil {
			return fmt.Errorf("relay: init accept limiter: %w", err)
		}
		s.limiter = store
	}
	return nil
}

func (s *Service) acceptLoop(ctx context.Context, ln net.Listener, endpoint string, handle func(context.Context, net.Conn)) error {
	b := &backoff.Backoff{Min: 50 * time.Millisecond, Max: time.Second}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			d := b.Duration()
			s.log.Warn().Err(err).Str("endpoint", endpoint).Dur("retry_in", d).Msg("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d):
			}
			continue
		}
		b.Reset()
		if !s.allowConn(ctx, endpoint, conn) {
			_ = conn.Close()
			continue
		}
		s.trackConn(conn)
		go func() {
			defer s.untrackConn(conn)
			handle(ctx, conn)
		}()
	}
}

// allowConn applies per-IP accept limiting before a session is spawned.
func (s *Service) allowConn(ctx context.Context, endpoint string, conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	_, _, _, ok, err := s.limiter.Take(ctx, endpoint+"/"+host)
	if err != nil || !ok {
		observability.RecordConnThrottled(endpoint)
		s.log.Warn().Str("endpoint", endpoint).Str("remote", host).Msg("connection throttled")
		return false
	}
	return true
}

func (s *Service) handleSourceConn(ctx context.Context, conn net.Conn) {
	logger := s.log.With().Str("session", "source").Str("remote", conn.RemoteAddr().String()).Logger()
	if s.cfg.SourcePolicy == PolicyExclusive {
		if !s.sourceSlot.CompareAndSwap(false, true) {
			observability.RecordSourceRejected()
			logger.Warn().Msg("source slot held, rejecting connection")
			_ = conn.Close()
			return
		}
		defer s.sourceSlot.Store(false)
	}
	logger.Info().Msg("source connected")
	sess := &sourceSession{conn: conn, registry: s.registry, log: logger}
	sess.run(ctx)
	logger.Info().Msg("source disconnected")
}

func (s *Service) handleDestConn(ctx context.Context, conn net.Conn) {
	logger := s.log.With().Str("session", "dest").Str("remote", conn.RemoteAddr().String()).Logger()
	logger.Info().Msg("destination connected")
	sess := &destSession{conn: conn, registry: s.registry, poll: s.cfg.PollInterval, log: logger}
	sess.run(ctx)
	logger.Info().Msg("destination disconnected")
}

func (s *Service) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Addr: s.cfg.MetricsListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn().Err(err).Msg("metrics endpoint failed")
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
