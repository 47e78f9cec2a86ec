package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shackpi/remotetrx/internal/config"
)

const minimalMumble = `
transport:
  kind: mumble
  address: mumble.example.org
  username: remotetrx
`

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(minimalMumble))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":5000" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":5000")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Transport.Port != 64738 {
		t.Errorf("transport.port: got %d, want 64738", cfg.Transport.Port)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("audio.sample_rate: got %d, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSize != 1024 {
		t.Errorf("audio.frame_size: got %d, want 1024", cfg.Audio.FrameSize)
	}
	if cfg.PTT.Device != "/dev/hidraw0" {
		t.Errorf("ptt.device: got %q, want %q", cfg.PTT.Device, "/dev/hidraw0")
	}
	if cfg.PTT.Pin != 3 {
		t.Errorf("ptt.pin: got %d, want 3", cfg.PTT.Pin)
	}
	if cfg.PTT.TailHang.Std() != 750*time.Millisecond {
		t.Errorf("ptt.tail_hang: got %v, want 750ms", cfg.PTT.TailHang.Std())
	}
	if cfg.Bridge.QueueDepth != 4 {
		t.Errorf("bridge.queue_depth: got %d, want 4", cfg.Bridge.QueueDepth)
	}
	if cfg.Reconnect.MaxRetries != 10 {
		t.Errorf("reconnect.max_retries: got %d, want 10", cfg.Reconnect.MaxRetries)
	}
}

func TestDuration_UnmarshalsStringAndSeconds(t *testing.T) {
	t.Parallel()

	yaml := minimalMumble + `
ptt:
  tail_hang: 0.75
reconnect:
  initial_backoff: 2s
  max_backoff: 30
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.PTT.TailHang.Std(); got != 750*time.Millisecond {
		t.Errorf("tail_hang: got %v, want 750ms", got)
	}
	if got := cfg.Reconnect.InitialBackoff.Std(); got != 2*time.Second {
		t.Errorf("initial_backoff: got %v, want 2s", got)
	}
	if got := cfg.Reconnect.MaxBackoff.Std(); got != 30*time.Second {
		t.Errorf("max_backoff: got %v, want 30s", got)
	}
}

func TestValidate_MumbleRequiresAddressAndUsername(t *testing.T) {
	t.Parallel()

	yaml := `
transport:
  kind: mumble
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for mumble transport without address, got nil")
	}
	if !strings.Contains(err.Error(), "transport.address") {
		t.Errorf("error should mention transport.address, got: %v", err)
	}
	if !strings.Contains(err.Error(), "transport.username") {
		t.Errorf("error should mention transport.username, got: %v", err)
	}
}

func TestValidate_DiscordRequiresTokenAndChannel(t *testing.T) {
	t.Parallel()

	yaml := `
transport:
  kind: discord
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for discord transport without token, got nil")
	}
	if !strings.Contains(err.Error(), "transport.token") {
		t.Errorf("error should mention transport.token, got: %v", err)
	}
	if !strings.Contains(err.Error(), "channel_id") {
		t.Errorf("error should mention channel_id, got: %v", err)
	}
}

func TestValidate_TransportKindRequired(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("audio:\n  sample_rate: 48000\n"))
	if err == nil {
		t.Fatal("expected error for missing transport.kind, got nil")
	}
	if !strings.Contains(err.Error(), "transport.kind") {
		t.Errorf("error should mention transport.kind, got: %v", err)
	}
}

func TestValidate_PinRange(t *testing.T) {
	t.Parallel()

	yaml := minimalMumble + `
ptt:
  pin: 9
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for ptt.pin 9, got nil")
	}
	if !strings.Contains(err.Error(), "ptt.pin") {
		t.Errorf("error should mention ptt.pin, got: %v", err)
	}
}

func TestValidate_BackoffOrdering(t *testing.T) {
	t.Parallel()

	yaml := minimalMumble + `
reconnect:
  initial_backoff: 10s
  max_backoff: 1s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for max_backoff < initial_backoff, got nil")
	}
	if !strings.Contains(err.Error(), "max_backoff") {
		t.Errorf("error should mention max_backoff, got: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yaml := minimalMumble + `
audio:
  sample_rte: 44100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
transport:
  kind: teleporter
ptt:
  pin: 0.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	// Decode fails on the non-integer pin before validation runs; drop it to
	// see both validation failures reported together.
	yaml = `
server:
  log_level: loud
transport:
  kind: teleporter
`
	_, err = config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "server.log_level") {
		t.Errorf("error should mention server.log_level, got: %v", err)
	}
	if !strings.Contains(err.Error(), "transport.kind") {
		t.Errorf("error should mention transport.kind, got: %v", err)
	}
}
