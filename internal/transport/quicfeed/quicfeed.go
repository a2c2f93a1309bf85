// Package quicfeed streams simulation frames to machine consumers over
// QUIC. Each consumer gets one unidirectional stream carrying
// newline-delimited JSON frames; consumers that cannot keep up lose
// frames instead of stalling the feed.
package quicfeed

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/flocksim/flocksim/internal/core/events/bus"
	"github.com/flocksim/flocksim/internal/core/observability/log"
	"github.com/flocksim/flocksim/internal/core/sim"
)

// Config holds feed listener configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// ConsumerBuffer is the per-consumer frame queue length.
	ConsumerBuffer int `yaml:"consumer_buffer"`

	MaxIdleTimeout time.Duration `yaml:"-"`
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:8443",
		ConsumerBuffer: 16,
		MaxIdleTimeout: 30 * time.Second,
	}
}

// consumer is one connected feed client.
type consumer struct {
	conn   *quic.Conn
	stream *quic.SendStream
	send   chan []byte
	once   sync.Once
}

func (c *consumer) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *consumer) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.CloseWithError(0, "feed closed")
	})
}

// writePump drains queued frames onto the stream until it closes.
func (c *consumer) writePump() {
	for b := range c.send {
		if _, err := c.stream.Write(append(b, '\n')); err != nil {
			return
		}
	}
}

// Feed is the QUIC frame feed listener.
type Feed struct {
	cfg    Config
	engine *sim.Engine
	events bus.EventBus
	logger log.Log

	mu        sync.RWMutex
	listener  *quic.Listener
	consumers map[*consumer]struct{}
	frameSub  bus.Subscription
}

// New wires a feed to an engine and its event bus.
func New(cfg Config, engine *sim.Engine, events bus.EventBus, logger log.Log) *Feed {
	if logger == nil {
		logger = log.Provide()
	}
	if cfg.ConsumerBuffer < 1 {
		cfg.ConsumerBuffer = DefaultConfig().ConsumerBuffer
	}
	return &Feed{
		cfg:       cfg,
		engine:    engine,
		events:    events,
		logger:    logger.With(log.String("component", "quicfeed")),
		consumers: make(map[*consumer]struct{}),
	}
}

// Addr reports the bound listener address, or nil before Run starts.
func (f *Feed) Addr() net.Addr {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Run listens until ctx is cancelled, then closes every consumer.
func (f *Feed) Run(ctx context.Context) error {
	tlsConf, err := GenerateTLSConfig()
	if err != nil {
		return err
	}

	listener, err := quic.ListenAddr(f.cfg.ListenAddr, tlsConf, &quic.Config{
		MaxIdleTimeout: f.cfg.MaxIdleTimeout,
	})
	if err != nil {
		return err
	}

	sub, err := f.events.Subscribe(sim.EventFrame, f.onFrame)
	if err != nil {
		_ = listener.Close()
		return err
	}

	f.mu.Lock()
	f.listener = listener
	f.frameSub = sub
	f.mu.Unlock()

	f.logger.Info("frame feed listening", log.String("addr", listener.Addr().String()))
	go f.acceptLoop(ctx)

	<-ctx.Done()

	_ = f.events.Unsubscribe(sub)
	err = listener.Close()

	f.mu.Lock()
	for c := range f.consumers {
		c.close()
		delete(f.consumers, c)
	}
	f.mu.Unlock()
	return err
}

func (f *Feed) acceptLoop(ctx context.Context) {
	for {
		conn, err := f.listener.Accept(ctx)
		if err != nil {
			return
		}
		go f.serve(ctx, conn)
	}
}

func (f *Feed) serve(ctx context.Context, conn *quic.Conn) {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		f.logger.Warn("opening feed stream failed", log.Error(err))
		_ = conn.CloseWithError(1, "stream setup failed")
		return
	}

	c := &consumer{
		conn:   conn,
		stream: stream,
		send:   make(chan []byte, f.cfg.ConsumerBuffer),
	}
	f.mu.Lock()
	f.consumers[c] = struct{}{}
	total := len(f.consumers)
	f.mu.Unlock()

	f.logger.Info("feed consumer connected",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int("consumers", total))

	// Send the current frame immediately so the consumer sees the stream
	// without waiting for the next world change.
	if b, err := f.engine.Frame().Encode(); err == nil {
		c.enqueue(b)
	}

	c.writePump()

	f.mu.Lock()
	delete(f.consumers, c)
	f.mu.Unlock()
	c.close()
	f.logger.Info("feed consumer disconnected",
		log.String("remote_addr", conn.RemoteAddr().String()))
}

// onFrame fans a published frame out to every consumer.
func (f *Feed) onFrame(ev bus.Event) error {
	frame, ok := ev.Data().(*sim.Frame)
	if !ok {
		return nil
	}
	b, err := frame.Encode()
	if err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	dropped := 0
	for c := range f.consumers {
		if !c.enqueue(b) {
			dropped++
		}
	}
	if dropped > 0 {
		f.logger.Debug("slow feed consumers dropped a frame", log.Int("dropped", dropped))
	}
	return nil
}
