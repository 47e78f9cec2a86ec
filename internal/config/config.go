// Package config provides the configuration schema and loader for the
// remotetrx bridge. Configuration is read at startup; a [Watcher] can reload
// the file at runtime, but only the log level takes effect without a restart.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the bridge.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding slog level.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TransportKind selects the voice-chat transport implementation.
type TransportKind string

const (
	// TransportMumble connects to a Mumble server.
	TransportMumble TransportKind = "mumble"

	// TransportDiscord joins a Discord voice channel.
	TransportDiscord TransportKind = "discord"
)

// IsValid reports whether k is a recognised transport kind.
func (k TransportKind) IsValid() bool {
	return k == TransportMumble || k == TransportDiscord
}

// Duration is a time.Duration that unmarshals from YAML either as a Go
// duration string ("750ms") or as a float number of seconds (0.75), the
// latter matching older deployments.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. The numeric tags must be
// checked first: yaml.v3 decodes any scalar into a string, so a bare 0.75
// would otherwise be handed to time.ParseDuration and rejected.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" || value.Tag == "!!float" {
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration value on line %d: %w", value.Line, err)
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value on line %d: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for remotetrx.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Audio     AudioConfig     `yaml:"audio"`
	PTT       PTTConfig       `yaml:"ptt"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ServerConfig holds the HTTP control/status surface settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the control server listens on. The
	// server carries no authentication; expose it via an SSH tunnel or
	// reverse proxy, never directly.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TransportConfig selects and parameterises the voice-chat transport.
type TransportConfig struct {
	// Kind selects the implementation: "mumble" or "discord".
	Kind TransportKind `yaml:"kind"`

	// Address and Port locate the Mumble server. Ignored for discord.
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// Username and Password authenticate the bridge's Mumble user.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Channel is the Mumble channel to join after connecting.
	Channel string `yaml:"channel"`

	// InsecureSkipVerify disables TLS certificate verification (mumble).
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Token, GuildID and ChannelID identify the Discord bot and voice
	// channel. Ignored for mumble.
	Token     string `yaml:"token"`
	GuildID   string `yaml:"guild_id"`
	ChannelID string `yaml:"channel_id"`
}

// AudioConfig describes the radio-facing sound device.
type AudioConfig struct {
	// InputDevice and OutputDevice are matched as case-insensitive
	// substrings against the backend's device names (e.g. "USB Audio CODEC").
	// Empty selects the system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`

	// SampleRate in Hz. Both pipelines run mono int16 at this rate.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per frame, fixing the relay cadence
	// (frame interval = frame_size / sample_rate).
	FrameSize int `yaml:"frame_size"`
}

// PTTConfig describes the transmit-key hardware.
type PTTConfig struct {
	// Device is the hidraw node of the CM108 dongle.
	Device string `yaml:"device"`

	// Pin is the GPIO pin (1–8) wired to the key line.
	Pin int `yaml:"pin"`

	// TailHang is how long the transmitter stays keyed after an unkey
	// request.
	TailHang Duration `yaml:"tail_hang"`
}

// BridgeConfig tunes the relay pipelines.
type BridgeConfig struct {
	// QueueDepth bounds each pipeline queue, in frames. Small values keep
	// latency bounded; overflow drops the oldest frame.
	QueueDepth int `yaml:"queue_depth"`

	// RemoteActivityTX, when true, keys the transmitter automatically while
	// remote audio is arriving on the transport, unkeying after a short
	// inactivity window.
	RemoteActivityTX bool `yaml:"remote_activity_tx"`
}

// ReconnectConfig tunes the default transport reconnection policy.
type ReconnectConfig struct {
	// MaxRetries is the number of reconnection attempts per disconnect
	// before the bridge settles into degraded RX-only operation.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt up to MaxBackoff.
	InitialBackoff Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the per-attempt delay.
	MaxBackoff Duration `yaml:"max_backoff"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":5000"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Transport.Port == 0 {
		c.Transport.Port = 64738
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 48000
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 1024
	}
	if c.PTT.Device == "" {
		c.PTT.Device = "/dev/hidraw0"
	}
	if c.PTT.Pin == 0 {
		c.PTT.Pin = 3
	}
	if c.PTT.TailHang == 0 {
		c.PTT.TailHang = Duration(750 * time.Millisecond)
	}
	if c.Bridge.QueueDepth == 0 {
		c.Bridge.QueueDepth = 4
	}
	if c.Reconnect.MaxRetries == 0 {
		c.Reconnect.MaxRetries = 10
	}
	if c.Reconnect.InitialBackoff == 0 {
		c.Reconnect.InitialBackoff = Duration(time.Second)
	}
	if c.Reconnect.MaxBackoff == 0 {
		c.Reconnect.MaxBackoff = Duration(30 * time.Second)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	switch {
	case cfg.Transport.Kind == "":
		errs = append(errs, fmt.Errorf("transport.kind is required; valid values: mumble, discord"))
	case !cfg.Transport.Kind.IsValid():
		errs = append(errs, fmt.Errorf("transport.kind %q is invalid; valid values: mumble, discord", cfg.Transport.Kind))
	case cfg.Transport.Kind == TransportMumble:
		if cfg.Transport.Address == "" {
			errs = append(errs, fmt.Errorf("transport.address is required for mumble"))
		}
		if cfg.Transport.Username == "" {
			errs = append(errs, fmt.Errorf("transport.username is required for mumble"))
		}
		if cfg.Transport.Port < 1 || cfg.Transport.Port > 65535 {
			errs = append(errs, fmt.Errorf("transport.port %d is out of range [1, 65535]", cfg.Transport.Port))
		}
	case cfg.Transport.Kind == TransportDiscord:
		if cfg.Transport.Token == "" {
			errs = append(errs, fmt.Errorf("transport.token is required for discord"))
		}
		if cfg.Transport.GuildID == "" || cfg.Transport.ChannelID == "" {
			errs = append(errs, fmt.Errorf("transport.guild_id and transport.channel_id are required for discord"))
		}
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 || cfg.Audio.FrameSize > 16384 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d is out of range [1, 16384]", cfg.Audio.FrameSize))
	}

	if cfg.PTT.Pin < 1 || cfg.PTT.Pin > 8 {
		errs = append(errs, fmt.Errorf("ptt.pin %d is out of range [1, 8]", cfg.PTT.Pin))
	}
	if cfg.PTT.TailHang < 0 {
		errs = append(errs, fmt.Errorf("ptt.tail_hang must not be negative"))
	}

	if cfg.Bridge.QueueDepth < 1 || cfg.Bridge.QueueDepth > 64 {
		errs = append(errs, fmt.Errorf("bridge.queue_depth %d is out of range [1, 64]", cfg.Bridge.QueueDepth))
	}

	if cfg.Reconnect.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries must not be negative"))
	}
	if cfg.Reconnect.InitialBackoff <= 0 || cfg.Reconnect.MaxBackoff <= 0 {
		errs = append(errs, fmt.Errorf("reconnect backoffs must be positive"))
	}
	if cfg.Reconnect.MaxBackoff < cfg.Reconnect.InitialBackoff {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff must not be smaller than reconnect.initial_backoff"))
	}

	return joinErrs(errs)
}
