// Package config collects the run options from defaults, an optional YAML
// file (with .env expansion) and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultOutput is the file written by a bare --todisk.
const DefaultOutput = "output.avi"

// FixedSlideOnly as SlideSlot shows only the fixed slide.
const FixedSlideOnly = -2

// ErrNoDescriptors is returned when no source descriptor was given.
var ErrNoDescriptors = errors.New("no source descriptors given")

// Config holds every option of a run
type Config struct {
	Sources []string `yaml:"sources"` // slot:path[:offset|C|c]

	Output     string `yaml:"output"` // "" = interactive viewer
	SlideDir   string `yaml:"slides"`
	SlideSlot  int    `yaml:"slideidx"` // -1 none, -2 fixed slide only
	FixedSlide string `yaml:"fixedslide"`

	PerspectiveSlot int    `yaml:"transidx"` // -1 none
	TransformPath   string `yaml:"transform"`
	StartSlot       int    `yaml:"startidx"` // -1 none

	Framerate     int    `yaml:"fps"`
	Title         string `yaml:"title"`
	HeartRatePath string `yaml:"hr"`
	Timezone      string `yaml:"timezone"` // IANA name for the clock overlay, "" = local

	Logo     string `yaml:"logo"`
	LogoMask string `yaml:"logo_mask"`

	Encoder EncoderConfig `yaml:"encoder"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`

	MetricsAddr string `yaml:"metrics"` // standalone /metrics in file mode, "" = off
	LogLevel    string `yaml:"log_level"`
	LogColor    bool   `yaml:"log_color"`

	slideSlotSet bool
}

// EncoderConfig configures the output encoder
type EncoderConfig struct {
	Codec   string `yaml:"codec"`
	Quality int    `yaml:"quality"`
	Preset  string `yaml:"preset"`
}

// ViewerConfig configures the interactive viewer
type ViewerConfig struct {
	Addr        string `yaml:"addr"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// FFmpegConfig overrides the binary lookup
type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		SlideDir:        ".",
		SlideSlot:       0,
		PerspectiveSlot: -1,
		TransformPath:   "transform.yml",
		StartSlot:       -1,
		Framerate:       25,
		Logo:            "logo.png",
		Encoder: EncoderConfig{
			Codec: "mpeg4",
		},
		Viewer: ViewerConfig{
			Addr:        ":8090",
			JPEGQuality: 80,
			SnapshotDir: ".",
		},
		LogLevel: "info",
		LogColor: true,
	}
}

// LoadFile merges a YAML file into c. Variables from a .env file next to
// the config (if any) and from the environment are expanded first.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var probe struct {
		SlideSlot *int `yaml:"slideidx"`
	}
	if err := yaml.Unmarshal(data, &probe); err == nil && probe.SlideSlot != nil {
		c.slideSlotSet = true
	}
	return nil
}

// outputFlag is --todisk: a bare flag selects DefaultOutput, a value names
// the file.
type outputFlag struct {
	target *string
}

func (f outputFlag) String() string {
	if f.target == nil {
		return ""
	}
	return *f.target
}

func (f outputFlag) Set(s string) error {
	switch s {
	case "true":
		*f.target = DefaultOutput
	case "false":
		*f.target = ""
	default:
		*f.target = s
	}
	return nil
}

func (f outputFlag) IsBoolFlag() bool { return true }

// Parse builds a Config from args (without the program name). Flags and
// descriptors may be interleaved. A -config file is applied before the
// remaining flags so flags win over the file.
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := Default()
	if path := findConfigPath(args); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("combine", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.Usage = func() { Usage(fs) }

	var configPath string
	fs.StringVar(&configPath, "config", "", "YAML config file")
	fs.Var(outputFlag{&cfg.Output}, "todisk", "write to a file instead of the viewer (default "+DefaultOutput+")")
	fs.StringVar(&cfg.SlideDir, "slides", cfg.SlideDir, "slide image directory")
	fs.IntVar(&cfg.SlideSlot, "slideidx", cfg.SlideSlot, "slot whose matches file drives the slides, -1 for none")
	fs.StringVar(&cfg.FixedSlide, "fixedslide", cfg.FixedSlide, "slide shown when no match applies")
	fs.IntVar(&cfg.PerspectiveSlot, "transidx", cfg.PerspectiveSlot, "slot to perspective-correct, -1 for none")
	fs.StringVar(&cfg.TransformPath, "transform", cfg.TransformPath, "perspective matrix file")
	fs.IntVar(&cfg.StartSlot, "startidx", cfg.StartSlot, "slot that defines the recording start, -1 for none")
	fs.IntVar(&cfg.Framerate, "fps", cfg.Framerate, "output frame rate")
	fs.StringVar(&cfg.Title, "title", cfg.Title, "title shown on the opening screen")
	fs.StringVar(&cfg.HeartRatePath, "hr", cfg.HeartRatePath, "heart-rate CSV file")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "time zone of the clock overlay")
	fs.StringVar(&cfg.Logo, "logo", cfg.Logo, "branding image")
	fs.StringVar(&cfg.LogoMask, "logo-mask", cfg.LogoMask, "branding mask image")
	fs.StringVar(&cfg.Encoder.Codec, "codec", cfg.Encoder.Codec, "output video codec")
	fs.IntVar(&cfg.Encoder.Quality, "quality", cfg.Encoder.Quality, "encoder quality (-q:v), 0 for default")
	fs.StringVar(&cfg.Viewer.Addr, "http", cfg.Viewer.Addr, "viewer address")
	fs.StringVar(&cfg.Viewer.SnapshotDir, "snapshots", cfg.Viewer.SnapshotDir, "snapshot directory")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "metrics address in file mode")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error, silent)")
	fs.BoolVar(&cfg.LogColor, "log-color", cfg.LogColor, "colored log output")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		cfg.Sources = append(cfg.Sources, rest[0])
		rest = rest[1:]
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "slideidx" {
			cfg.slideSlotSet = true
		}
	})
	if cfg.FixedSlide != "" && !cfg.slideSlotSet {
		cfg.SlideSlot = FixedSlideOnly
	}

	if len(cfg.Sources) == 0 {
		return nil, ErrNoDescriptors
	}
	if cfg.Framerate <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", cfg.Framerate)
	}
	return cfg, nil
}

// findConfigPath returns the value of -config/--config if present.
func findConfigPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Usage prints the command synopsis and the flag defaults.
func Usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "usage: combine [options] slot:video[:offset|C] [slot:video[:offset|C] ...]\n\n")
	fmt.Fprintf(w, "  offset   seconds added to the resolved start time\n")
	fmt.Fprintf(w, "  C        continues the previous video of the same slot\n\n")
	fs.PrintDefaults()
}

// Interactive reports whether canvases go to the viewer.
func (c *Config) Interactive() bool {
	return c.Output == ""
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Warnings lists option combinations worth telling the user about.
func (c *Config) Warnings() []string {
	var w []string
	if filepath.IsAbs(c.SlideDir) {
		w = append(w, "Slide path is absolute, relative path preferred")
	}
	return w
}
