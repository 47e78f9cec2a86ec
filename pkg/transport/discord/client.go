// Package discord provides a [transport.Transport] implementation backed by a
// Discord voice channel via bwmarrin/discordgo, with Opus encode/decode via
// layeh.com/gopus.
//
// Discord's wire format is 48 kHz stereo Opus in 960-sample frames; the
// adapter converts to and from the bridge's mono PCM at the edge. All
// participants speaking on the channel are decoded and merged into the single
// inbound Frames sequence — a radio has exactly one audio sink.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/shackpi/remotetrx/pkg/audio"
	"github.com/shackpi/remotetrx/pkg/transport"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
	opusFrameSize  = 960 // samples per channel per 20 ms frame
	opusMaxBytes   = 3840

	inboundBuffer = 16
	outboundDepth = 8
)

// Compile-time interface assertion.
var _ transport.Transport = (*Client)(nil)

// Config holds the connection parameters for a Discord voice transport.
type Config struct {
	// Token is the bot token (without the "Bot " prefix).
	Token string

	// GuildID and ChannelID identify the voice channel to join.
	GuildID   string
	ChannelID string

	// FrameSize is the bridge-side frame size in samples; inbound audio is
	// re-chunked to this size.
	FrameSize int
}

// Client implements [transport.Transport] against a Discord voice channel.
//
// Client is safe for concurrent use.
type Client struct {
	cfg Config

	frames chan audio.Frame
	sendQ  *audio.FrameQueue
	seq    atomic.Uint64

	mu        sync.Mutex
	session   *discordgo.Session
	vc        *discordgo.VoiceConnection
	done      chan struct{}
	connected bool
	closed    bool

	closeOnce sync.Once
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New creates an unconnected Discord transport.
func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		frames: make(chan audio.Frame, inboundBuffer),
		sendQ:  audio.NewFrameQueue(outboundDepth),
		done:   closedChan,
	}
}

// Connect opens the bot session, joins the voice channel, and starts the
// receive and send loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("discord: transport closed")
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("discord: already connected")
	}
	session := c.session
	c.mu.Unlock()

	if session == nil {
		var err error
		session, err = discordgo.New("Bot " + c.cfg.Token)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		session.Identify.Intents = discordgo.IntentGuildVoiceStates
		if err := session.Open(); err != nil {
			return fmt.Errorf("discord: open gateway: %w", err)
		}
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
	}

	// mute=false (we send audio), deaf=false (we receive audio).
	vc, err := session.ChannelVoiceJoin(c.cfg.GuildID, c.cfg.ChannelID, false, false)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %q: %w", c.cfg.ChannelID, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.vc = vc
	c.done = done
	c.connected = true
	c.mu.Unlock()

	go c.recvLoop(vc, done)
	go c.sendLoop(vc, done)

	slog.Info("discord: connected", "guild", c.cfg.GuildID, "channel", c.cfg.ChannelID)
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

// Connected reports whether a live voice connection exists.
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

// Close leaves the voice channel, closes the gateway session, and permanently
// shuts the transport down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		vc := c.vc
		session := c.session
		c.vc = nil
		c.session = nil
		c.mu.Unlock()

		c.markDisconnected()
		c.sendQ.Close()
		if vc != nil {
			err = vc.Disconnect()
		}
		if session != nil {
			if cErr := session.Close(); err == nil {
				err = cErr
			}
		}
	})
	return err
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	close(c.done)
	slog.Warn("discord: voice connection lost")
}

// recvLoop reads Opus packets, decodes them per SSRC, downmixes to mono, and
// merges everything into the inbound frame sequence.
func (c *Client) recvLoop(vc *discordgo.VoiceConnection, done chan struct{}) {
	// Each SSRC keeps its own decoder state across frames.
	decoders := make(map[uint32]*gopus.Decoder)
	chunker := audio.NewChunker(c.cfg.FrameSize)

	for {
		select {
		case <-done:
			return
		case pkt, ok := <-vc.OpusRecv:
			if !ok {
				c.markDisconnected()
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = gopus.NewDecoder(opusSampleRate, opusChannels)
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			stereo, err := dec.Decode(pkt.Opus, opusFrameSize, false)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			for _, pcm := range chunker.Write(audio.StereoToMono(stereo)) {
				f := audio.Frame{PCM: pcm, Dir: audio.DirectionTX, Seq: c.seq.Add(1)}
				select {
				case c.frames <- f:
				default:
					// Bridge is behind; fresh audio beats stale audio.
				}
			}
		}
	}
}

// sendLoop drains the outbound queue, upmixes to stereo, encodes complete
// Opus frames, and ships them to Discord.
func (c *Client) sendLoop(vc *discordgo.VoiceConnection, done chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		slog.Error("discord: create opus encoder", "error", err)
		return
	}

	speakingSet := false
	defer func() {
		if speakingSet {
			c.setSpeaking(vc, false)
		}
	}()

	chunker := audio.NewChunker(opusFrameSize)
	for {
		f, err := c.sendQ.Pop(ctx)
		if err != nil {
			return
		}

		if !speakingSet {
			c.setSpeaking(vc, true)
			speakingSet = true
		}

		for _, mono := range chunker.Write(f.PCM) {
			opus, eErr := enc.Encode(audio.MonoToStereo(mono), opusFrameSize, opusMaxBytes)
			if eErr != nil {
				slog.Warn("discord: opus encode error", "error", eErr)
				continue
			}
			select {
			case vc.OpusSend <- opus:
			case <-done:
				return
			}
		}
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Client) setSpeaking(vc *discordgo.VoiceConnection, b bool) {
	if err := vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
