package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBroker()
	c.normalizeWorkers()
	c.normalizeSecurity()
	c.normalizeAI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.ObjectStore.Dir) == "" {
		c.ObjectStore.Dir = defaultObjectStoreDir
	}
	if c.ObjectStore.Dir, err = expandPath(c.ObjectStore.Dir); err != nil {
		return fmt.Errorf("object_store.dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("FILEFORGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeBroker() {
	c.Broker.Driver = strings.ToLower(strings.TrimSpace(c.Broker.Driver))
	if c.Broker.Driver == "" {
		c.Broker.Driver = defaultBrokerDriver
	}
	c.Broker.URL = strings.TrimSpace(c.Broker.URL)
	if c.Broker.URL == "" {
		if value, ok := os.LookupEnv("NATS_URL"); ok {
			c.Broker.URL = strings.TrimSpace(value)
		}
	}
	if c.Broker.URL == "" {
		c.Broker.URL = defaultBrokerURL
	}
	c.Broker.StreamName = strings.TrimSpace(c.Broker.StreamName)
	if c.Broker.StreamName == "" {
		c.Broker.StreamName = defaultStreamName
	}
}

func (c *Config) normalizeWorkers() {
	normalized := make([]string, 0, len(c.Workers.Families))
	for _, family := range c.Workers.Families {
		family = strings.ToLower(strings.TrimSpace(family))
		if family != "" {
			normalized = append(normalized, family)
		}
	}
	c.Workers.Families = normalized
	if c.Workers.JobTimeout <= 0 {
		c.Workers.JobTimeout = defaultJobTimeout
	}
	if c.Workers.MaxAttempts <= 0 {
		c.Workers.MaxAttempts = defaultMaxAttempts
	}
	if c.Workers.RetryBaseDelay <= 0 {
		c.Workers.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.Workers.ConsumeWait <= 0 {
		c.Workers.ConsumeWait = defaultConsumeWait
	}
}

func (c *Config) normalizeSecurity() {
	if c.Security.EncryptionKey == "" {
		if value, ok := os.LookupEnv("FILEFORGE_ENCRYPTION_KEY"); ok {
			c.Security.EncryptionKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeAI() {
	if c.AI.APIKey == "" {
		if value, ok := os.LookupEnv("FILEFORGE_AI_API_KEY"); ok {
			c.AI.APIKey = strings.TrimSpace(value)
		}
	}
	c.AI.BaseURL = strings.TrimSpace(c.AI.BaseURL)
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = defaultAIBaseURL
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = defaultAITimeoutSeconds
	}
	if c.AI.MaxTags <= 0 {
		c.AI.MaxTags = defaultAIMaxTags
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
