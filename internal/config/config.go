package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the settings a deskstream peer or signaling server reads at
// startup. Every field has a mapstructure tag so viper can populate it from
// a YAML file, environment variables (DESKSTREAM_ prefixed), or flags bound
// by the CLI layer.
type Config struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`

	Bitrate   int `mapstructure:"bitrate"`
	Framerate int `mapstructure:"framerate"`

	// MediaFilename selects the file-backed capture source. Empty means
	// capture the desktop instead.
	MediaFilename string `mapstructure:"media_filename"`

	EncoderAPI string `mapstructure:"encoder_api"` // "media_foundation" | "openh264" | "x264"
	DecoderAPI string `mapstructure:"decoder_api"` // "media_foundation" | "openh264"
	WebrtcAPI  string `mapstructure:"webrtc_api"`  // "webrtc_rs" | "data_channel"

	SignalServer string `mapstructure:"signal_server"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	VideoChunkSize        int `mapstructure:"video_chunk_size"`
	VideoChunkDeadlineMs  int `mapstructure:"video_chunk_deadline_ms"`
	AssemblerBudgetMs     int `mapstructure:"assembler_budget_ms"`
	DataChannelHighWaterMark int `mapstructure:"data_channel_high_water_mark"`
	DataChannelLowWaterMark  int `mapstructure:"data_channel_low_water_mark"`
	TexturePoolSize          int `mapstructure:"texture_pool_size"`
}

func Default() *Config {
	return &Config{
		Width:     1920,
		Height:    1080,
		Bitrate:   4_000_000,
		Framerate: 30,

		EncoderAPI: "openh264",
		DecoderAPI: "openh264",
		WebrtcAPI:  "data_channel",

		SignalServer: "127.0.0.1:8080",

		LogLevel:  "info",
		LogFormat: "text",

		VideoChunkSize:           16_000,
		VideoChunkDeadlineMs:     100,
		AssemblerBudgetMs:        250,
		DataChannelHighWaterMark: 1 << 20,
		DataChannelLowWaterMark:  512 << 10,
		TexturePoolSize:          10,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deskstream")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DESKSTREAM")
	for _, key := range []string{
		"width", "height", "bitrate", "framerate", "media_filename",
		"encoder_api", "decoder_api", "webrtc_api", "signal_server",
		"log_level", "log_format", "video_chunk_size", "video_chunk_deadline_ms",
		"assembler_budget_ms", "data_channel_high_water_mark",
		"data_channel_low_water_mark", "texture_pool_size",
	} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.Validate()

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("width", cfg.Width)
	viper.Set("height", cfg.Height)
	viper.Set("bitrate", cfg.Bitrate)
	viper.Set("framerate", cfg.Framerate)
	viper.Set("media_filename", cfg.MediaFilename)
	viper.Set("encoder_api", cfg.EncoderAPI)
	viper.Set("decoder_api", cfg.DecoderAPI)
	viper.Set("webrtc_api", cfg.WebrtcAPI)
	viper.Set("signal_server", cfg.SignalServer)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("video_chunk_size", cfg.VideoChunkSize)
	viper.Set("video_chunk_deadline_ms", cfg.VideoChunkDeadlineMs)
	viper.Set("assembler_budget_ms", cfg.AssemblerBudgetMs)
	viper.Set("data_channel_high_water_mark", cfg.DataChannelHighWaterMark)
	viper.Set("data_channel_low_water_mark", cfg.DataChannelLowWaterMark)
	viper.Set("texture_pool_size", cfg.TexturePoolSize)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "deskstream.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "deskstream")
	case "darwin":
		return "/Library/Application Support/deskstream"
	default:
		return "/etc/deskstream"
	}
}
