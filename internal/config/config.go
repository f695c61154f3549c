package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Broker driver names.
const (
	BrokerDriverNATS   = "nats"
	BrokerDriverMemory = "memory"
)

// Broker contains message transport configuration.
type Broker struct {
	// Driver selects the transport: "nats" for JetStream, "memory" for a
	// single-process in-memory queue (tests, standalone mode).
	Driver     string `toml:"driver"`
	URL        string `toml:"url"`
	StreamName string `toml:"stream_name"`
}

// ObjectStore contains byte storage configuration.
type ObjectStore struct {
	Dir string `toml:"dir"`
}

// Pipeline contains limits applied when clients request processing.
type Pipeline struct {
	MaxActions int `toml:"max_actions"`
}

// Workers contains worker runtime configuration.
type Workers struct {
	// Families lists the queue families this process consumes
	// (image, video, security, ai). Empty means all of them.
	Families []string `toml:"families"`
	// JobTimeout bounds a single processor invocation, in seconds.
	JobTimeout int `toml:"job_timeout"`
	// MaxAttempts is the delivery ceiling for transient failures.
	MaxAttempts int `toml:"max_attempts"`
	// RetryBaseDelay seeds the exponential requeue backoff, in seconds.
	RetryBaseDelay int `toml:"retry_base_delay"`
	// ConsumeWait bounds a single blocking dequeue, in seconds.
	ConsumeWait int `toml:"consume_wait"`
}

// Workflow contains reconciler and heartbeat timing.
type Workflow struct {
	ReconcileInterval int `toml:"reconcile_interval"`
	QueuedGracePeriod int `toml:"queued_grace_period"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Image contains defaults for the image processor family.
type Image struct {
	ThumbWidth      int    `toml:"thumb_width"`
	ThumbHeight     int    `toml:"thumb_height"`
	ConvertFormat   string `toml:"convert_format"`
	ConvertQuality  int    `toml:"convert_quality"`
	CompressQuality int    `toml:"compress_quality"`
}

// Video contains defaults for the video processor family.
type Video struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	PreviewSeconds int    `toml:"preview_seconds"`
	ConvertFormat  string `toml:"convert_format"`
}

// Security contains defaults for the security processor family.
type Security struct {
	// EncryptionKey is a hex-encoded 32-byte AES key. Required when
	// encrypt/decrypt actions are enabled.
	EncryptionKey string `toml:"encryption_key"`
	// ScanSignatures are additional byte patterns treated as malware.
	ScanSignatures []string `toml:"scan_signatures"`
}

// AI contains configuration for the tagging processor.
type AI struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxTags        int    `toml:"max_tags"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for FileForge.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Broker: message transport (NATS JetStream or in-memory)
//   - ObjectStore: content-addressed byte storage location
//   - Pipeline: per-request action limits
//   - Workers: worker runtime families, timeouts, retry policy
//   - Workflow: reconciler cadence and heartbeat policy
//   - Image/Video/Security/AI: processor family defaults
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Broker      Broker      `toml:"broker"`
	ObjectStore ObjectStore `toml:"object_store"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Workers     Workers     `toml:"workers"`
	Workflow    Workflow    `toml:"workflow"`
	Image       Image       `toml:"image"`
	Video       Video       `toml:"video"`
	Security    Security    `toml:"security"`
	AI          AI          `toml:"ai"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fileforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fileforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.ObjectStore.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WorkerFamilies returns the configured queue families, defaulting to all.
func (c *Config) WorkerFamilies() []string {
	if len(c.Workers.Families) == 0 {
		return []string{"image", "video", "security", "ai"}
	}
	cp := make([]string, len(c.Workers.Families))
	copy(cp, c.Workers.Families)
	return cp
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
