package config

import (
	"strings"
	"testing"
)

func TestValidateInvalidDimensionsReset(t *testing.T) {
	cfg := Default()
	cfg.Width = 0
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected an error for zero width")
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Fatalf("expected dimensions reset to defaults, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestValidateBitrateClamping(t *testing.T) {
	cfg := Default()
	cfg.Bitrate = 1
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a warning for too-low bitrate")
	}
	if cfg.Bitrate != 100_000 {
		t.Fatalf("Bitrate = %d, want 100000 (clamped)", cfg.Bitrate)
	}

	cfg2 := Default()
	cfg2.Bitrate = 1_000_000_000
	cfg2.Validate()
	if cfg2.Bitrate != 50_000_000 {
		t.Fatalf("Bitrate = %d, want 50000000 (clamped)", cfg2.Bitrate)
	}
}

func TestValidateUnknownEncoderAPI(t *testing.T) {
	cfg := Default()
	cfg.EncoderAPI = "quantum_codec"
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "encoder_api") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected encoder_api validation error")
	}
}

func TestValidateSignalServerHostPort(t *testing.T) {
	cfg := Default()
	cfg.SignalServer = "not-a-host-port"
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "signal_server") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected signal_server validation error")
	}
}

func TestValidateDataChannelWaterMarkOrdering(t *testing.T) {
	cfg := Default()
	cfg.DataChannelHighWaterMark = 10
	cfg.DataChannelLowWaterMark = 20
	cfg.Validate()
	if cfg.DataChannelHighWaterMark <= cfg.DataChannelLowWaterMark {
		t.Fatalf("expected water marks reset to a valid ordering, got high=%d low=%d",
			cfg.DataChannelHighWaterMark, cfg.DataChannelLowWaterMark)
	}
}

func TestValidateGoodConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors for default config, got %v", errs)
	}
}
