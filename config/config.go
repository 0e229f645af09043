package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

// Config describes the devices and the run loop of one simulation.
type Config struct {
	RAMSize    int    `json:"ram_size"`    // bytes
	SwapSizes  []int  `json:"swap_sizes"`  // bytes, one entry per swap device
	SwapRandom bool   `json:"swap_random"` // swap devices are sequential unless set
	CPUs       int    `json:"cpus"`
	TimeSlice  int    `json:"time_slice"` // instructions per turn
	LogLevel   string `json:"log_level"`
	Step       bool   `json:"step"`
}

func Default() Config {
	return Config{
		RAMSize:   1 << 20,
		SwapSizes: []int{1 << 20, 1 << 20, 1 << 20, 1 << 20},
		CPUs:      1,
		TimeSlice: 2,
		LogLevel:  "info",
	}
}

// Load reads a JSON file over the defaults, so a file only needs the keys
// it changes.
func Load(path string) (Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "opening config")
	}
	defer file.Close()

	if err := Decode(file, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decoding %s", path)
	}
	return cfg, nil
}

func Decode(r io.Reader, cfg *Config) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// NewLogger builds the text logger used by every component.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level

	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
