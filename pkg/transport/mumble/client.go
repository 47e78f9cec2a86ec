// Package mumble provides a [transport.Transport] implementation backed by a
// Mumble server via layeh.com/gumble. Audio travels as 48 kHz mono int16 PCM
// in both directions; the Opus codec is registered by the gumble opus
// subpackage import.
//
// Outbound frames are re-chunked to Mumble's 10 ms wire cadence; inbound
// per-sender packet streams are merged into the single Frames sequence
// (a radio has exactly one audio sink, so concurrent speakers interleave).
package mumble

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"layeh.com/gumble/gumble"
	"layeh.com/gumble/gumbleutil"
	_ "layeh.com/gumble/opus" // registers the Opus audio codec

	"github.com/shackpi/remotetrx/pkg/audio"
	"github.com/shackpi/remotetrx/pkg/transport"
)

const (
	inboundBuffer  = 16
	outboundDepth  = 8
	dialTimeout    = 10 * time.Second
	wireIntervalMS = int(gumble.AudioDefaultInterval / time.Millisecond)
)

// wireFrameSize is the sample count of one outgoing Mumble audio buffer.
var wireFrameSize = gumble.AudioSampleRate * wireIntervalMS / 1000

// Compile-time interface assertion.
var _ transport.Transport = (*Client)(nil)

// Config holds the connection parameters for a Mumble transport.
type Config struct {
	// Address is the server host name or IP.
	Address string

	// Port is the server port (Mumble default 64738).
	Port int

	// Username and Password authenticate the bridge's user.
	Username string
	Password string

	// Channel is the name of the channel to join after connecting. Empty
	// means stay in the root channel.
	Channel string

	// FrameSize is the bridge-side frame size in samples; inbound audio is
	// re-chunked to this size.
	FrameSize int

	// InsecureSkipVerify disables TLS certificate verification. Common for
	// self-hosted servers with self-signed certificates.
	InsecureSkipVerify bool
}

// Client implements [transport.Transport] against a Mumble server.
//
// Client is safe for concurrent use.
type Client struct {
	cfg Config

	frames chan audio.Frame
	sendQ  *audio.FrameQueue
	seq    atomic.Uint64

	mu        sync.Mutex
	client    *gumble.Client
	done      chan struct{} // per-connection; closed on disconnect
	connected bool
	closed    bool

	closeOnce sync.Once
}

// closedChan is returned by Done while no connection exists.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New creates an unconnected Mumble transport.
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 64738
	}
	return &Client{
		cfg:    cfg,
		frames: make(chan audio.Frame, inboundBuffer),
		sendQ:  audio.NewFrameQueue(outboundDepth),
		done:   closedChan,
	}
}

// Connect dials the server, joins the configured channel, and starts the
// outbound sender.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mumble: transport closed")
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("mumble: already connected")
	}
	c.mu.Unlock()

	gcfg := gumble.NewConfig()
	gcfg.Username = c.cfg.Username
	gcfg.Password = c.cfg.Password
	gcfg.AttachAudio(c)
	gcfg.Attach(gumbleutil.Listener{
		Disconnect: func(e *gumble.DisconnectEvent) {
			c.markDisconnected()
		},
	})

	addr := net.JoinHostPort(c.cfg.Address, fmt.Sprintf("%d", c.cfg.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	client, err := gumble.DialWithDialer(dialer, addr, gcfg, &tls.Config{
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
	})
	if err != nil {
		return fmt.Errorf("mumble: dial %s: %w", addr, err)
	}

	if c.cfg.Channel != "" {
		if ch := client.Channels.Find(c.cfg.Channel); ch != nil {
			client.Self.Move(ch)
			slog.Info("mumble: joined channel", "channel", c.cfg.Channel)
		} else {
			slog.Warn("mumble: channel not found, staying in root", "channel", c.cfg.Channel)
		}
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.client = client
	c.done = done
	c.connected = true
	c.mu.Unlock()

	go c.sendLoop(client, done)

	slog.Info("mumble: connected", "address", addr, "username", c.cfg.Username)
	return nil
}

// Send queues one outbound frame; non-blocking, drop-oldest on overflow.
func (c *Client) Send(f audio.Frame) error {
	if !c.Connected() {
		return transport.ErrNotConnected
	}
	c.sendQ.Push(f)
	return nil
}

// Frames returns the inbound frame sequence.
func (c *Client) Frames() <-chan audio.Frame {
	return c.frames
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done returns the current connection's disconnect signal.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Close disconnects and permanently shuts the transport down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		client := c.client
		c.client = nil
		c.mu.Unlock()

		c.markDisconnected()
		c.sendQ.Close()
		if client != nil {
			err = client.Disconnect()
		}
	})
	return err
}

// markDisconnected flips the connection state and closes the per-connection
// done channel. Idempotent per connection.
func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	close(c.done)
	slog.Warn("mumble: disconnected")
}

// sendLoop drains the outbound queue, re-chunks to the wire cadence, and
// feeds gumble's outgoing audio stream. It exits when the connection drops.
func (c *Client) sendLoop(client *gumble.Client, done chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	out := client.AudioOutgoing()
	defer close(out)

	chunker := audio.NewChunker(wireFrameSize)
	for {
		f, err := c.sendQ.Pop(ctx)
		if err != nil {
			return
		}
		for _, pcm := range chunker.Write(f.PCM) {
			select {
			case out <- gumble.AudioBuffer(pcm):
			case <-done:
				return
			}
		}
	}
}

// OnAudioStream implements [gumble.AudioListener]. Each speaking user opens a
// packet stream; packets are re-chunked to the bridge frame size and merged
// into the shared inbound sequence, dropping rather than blocking when the
// bridge lags.
func (c *Client) OnAudioStream(e *gumble.AudioStreamEvent) {
	go func() {
		chunker := audio.NewChunker(c.cfg.FrameSize)
		for packet := range e.C {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			for _, pcm := range chunker.Write(packet.AudioBuffer) {
				f := audio.Frame{PCM: pcm, Dir: audio.DirectionTX, Seq: c.seq.Add(1)}
				select {
				case c.frames <- f:
				default:
					// Bridge is behind; fresh audio beats stale audio.
				}
			}
		}
	}()
}
