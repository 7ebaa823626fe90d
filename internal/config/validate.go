package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

var validEncoderAPIs = map[string]bool{
	"media_foundation": true,
	"openh264":         true,
	"x264":             true,
}

var validDecoderAPIs = map[string]bool{
	"media_foundation": true,
	"openh264":         true,
}

var validWebrtcAPIs = map[string]bool{
	"webrtc_rs":    true,
	"data_channel": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values that would cause panics or division-by-zero downstream
// are clamped to safe defaults. Other validation errors are logged as warnings
// but do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("width/height must be positive, got %dx%d", c.Width, c.Height))
		c.Width, c.Height = 1920, 1080
	}

	if c.Bitrate < 100_000 {
		errs = append(errs, fmt.Errorf("bitrate %d is below minimum 100000, clamping", c.Bitrate))
		c.Bitrate = 100_000
	} else if c.Bitrate > 50_000_000 {
		errs = append(errs, fmt.Errorf("bitrate %d exceeds maximum 50000000, clamping", c.Bitrate))
		c.Bitrate = 50_000_000
	}

	if c.Framerate <= 0 {
		errs = append(errs, fmt.Errorf("framerate %d is below minimum 1, clamping", c.Framerate))
		c.Framerate = 1
	} else if c.Framerate > 120 {
		errs = append(errs, fmt.Errorf("framerate %d exceeds maximum 120, clamping", c.Framerate))
		c.Framerate = 120
	}

	if c.EncoderAPI != "" && !validEncoderAPIs[strings.ToLower(c.EncoderAPI)] {
		errs = append(errs, fmt.Errorf("encoder_api %q is not valid", c.EncoderAPI))
	}
	if c.DecoderAPI != "" && !validDecoderAPIs[strings.ToLower(c.DecoderAPI)] {
		errs = append(errs, fmt.Errorf("decoder_api %q is not valid", c.DecoderAPI))
	}
	if c.WebrtcAPI != "" && !validWebrtcAPIs[strings.ToLower(c.WebrtcAPI)] {
		errs = append(errs, fmt.Errorf("webrtc_api %q is not valid", c.WebrtcAPI))
	}

	if c.SignalServer != "" {
		if _, _, err := net.SplitHostPort(c.SignalServer); err != nil {
			errs = append(errs, fmt.Errorf("signal_server %q is not host:port: %w", c.SignalServer, err))
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.VideoChunkSize < 64 {
		errs = append(errs, fmt.Errorf("video_chunk_size %d is below minimum 64, clamping", c.VideoChunkSize))
		c.VideoChunkSize = 64
	} else if c.VideoChunkSize > 1<<20 {
		errs = append(errs, fmt.Errorf("video_chunk_size %d exceeds maximum 1048576, clamping", c.VideoChunkSize))
		c.VideoChunkSize = 1 << 20
	}

	if c.VideoChunkDeadlineMs <= 0 {
		errs = append(errs, fmt.Errorf("video_chunk_deadline_ms %d must be positive, clamping", c.VideoChunkDeadlineMs))
		c.VideoChunkDeadlineMs = 100
	}

	if c.AssemblerBudgetMs <= 0 {
		errs = append(errs, fmt.Errorf("assembler_budget_ms %d must be positive, clamping", c.AssemblerBudgetMs))
		c.AssemblerBudgetMs = 250
	}

	if c.DataChannelLowWaterMark <= 0 || c.DataChannelHighWaterMark <= c.DataChannelLowWaterMark {
		errs = append(errs, fmt.Errorf("data_channel_low_water_mark must be positive and below high_water_mark, resetting to defaults"))
		c.DataChannelLowWaterMark = 512 << 10
		c.DataChannelHighWaterMark = 1 << 20
	}

	if c.TexturePoolSize <= 0 {
		errs = append(errs, fmt.Errorf("texture_pool_size %d must be positive, clamping", c.TexturePoolSize))
		c.TexturePoolSize = 10
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
