package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/proxybridge/contracts"
	"github.com/glimte/proxybridge/internal/reliability"
	"github.com/glimte/proxybridge/messaging"
)

// Bridge correlates HTTP requests with replies published by a peer
type Bridge struct {
	addr           string
	channels       contracts.ChannelPair
	in             messaging.Subscriber
	out            messaging.Publisher
	logger         *slog.Logger
	whitelist      []*regexp.Regexp
	bindPolicy     reliability.RetryPolicy
	replyTimeout   time.Duration
	publishTimeout time.Duration
	listen         func(network, address string) (net.Listener, error)

	nextID  atomic.Uint64
	pending *pendingTable

	mu       sync.Mutex
	started  bool
	stopped  bool
	server   *http.Server
	listener net.Listener
	done     chan struct{}
	errCh    chan error
}

// New creates a bridge for a session. in receives peer replies, out carries
// envelopes to the peer; they should be separate connections.
func New(sessionID, addr string, in messaging.Subscriber, out messaging.Publisher, opts ...BridgeOption) (*Bridge, error) {
	if in == nil {
		return nil, fmt.Errorf("inbound subscriber cannot be nil")
	}
	if out == nil {
		return nil, fmt.Errorf("outbound publisher cannot be nil")
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BindRetryPolicy == nil {
		config.BindRetryPolicy = DefaultBindRetryPolicy()
	}

	channels, err := contracts.NewChannelPairWithPrefixes(config.InboundPrefix, config.OutboundPrefix, sessionID)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		addr:           addr,
		channels:       channels,
		in:             in,
		out:            out,
		logger:         config.Logger,
		whitelist:      config.OctetStreamWhitelist,
		bindPolicy:     config.BindRetryPolicy,
		replyTimeout:   config.ReplyTimeout,
		publishTimeout: config.PublishTimeout,
		listen:         net.Listen,
		pending:        newPendingTable(),
		done:           make(chan struct{}),
		errCh:          make(chan error, 1),
	}, nil
}

// Start binds the listener, subscribes to the inbound channel and starts serving.
// It blocks while the bind is retried and returns a *BindError if binding fails.
// A subscription failure is logged and does not fail Start.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	b.started = true
	b.mu.Unlock()

	bindCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.done:
			cancel()
		case <-bindCtx.Done():
		}
	}()

	ln, err := b.bind(bindCtx)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           b,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          slog.NewLogLogger(b.logger.Handler(), slog.LevelWarn),
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		ln.Close()
		return ErrStopped
	}
	b.server = server
	b.listener = ln
	b.mu.Unlock()

	// Subscribe before accepting so no reply can outrun its subscription.
	if err := b.in.Subscribe(ctx, b.channels.Inbound, messaging.MessageHandlerFunc(b.handleReply)); err != nil {
		b.logger.Error("failed to subscribe to inbound channel",
			"channel", b.channels.Inbound,
			"error", err,
		)
	}

	go b.serve(server, ln)

	b.logger.Info("proxy bridge started",
		"addr", ln.Addr().String(),
		"inbound", b.channels.Inbound,
		"outbound", b.channels.Outbound,
	)
	return nil
}

func (b *Bridge) serve(server *http.Server, ln net.Listener) {
	err := server.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}

	b.logger.Error("proxy bridge listener failed", "error", err)
	select {
	case b.errCh <- err:
	default:
	}
}

// Stop closes the listener and both transport connections. Requests still
// waiting for a reply are abandoned without a response. Stop is idempotent.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	server := b.server
	b.mu.Unlock()

	var errs []error
	if server != nil {
		if err := server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close listener: %w", err))
		}
	}
	close(b.done)

	if err := b.in.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close inbound transport: %w", err))
	}
	if err := b.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close outbound transport: %w", err))
	}

	b.logger.Info("proxy bridge stopped", "abandoned", b.pending.len())
	return errors.Join(errs...)
}

// Channels returns the channel pair used by the bridge
func (b *Bridge) Channels() contracts.ChannelPair {
	return b.channels
}

// Addr returns the bound listener address, or nil before Start
func (b *Bridge) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// PendingCount returns the number of requests waiting for a reply
func (b *Bridge) PendingCount() int {
	return b.pending.len()
}

// Err delivers a fatal listener error raised after Start returned
func (b *Bridge) Err() <-chan error {
	return b.errCh
}
