package config

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var knownFamilies = map[string]struct{}{
	"image":    {},
	"video":    {},
	"security": {},
	"ai":       {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBroker() error {
	switch c.Broker.Driver {
	case BrokerDriverNATS, BrokerDriverMemory:
		return nil
	default:
		return fmt.Errorf("broker.driver must be \"nats\" or \"memory\" (got %q)", c.Broker.Driver)
	}
}

func (c *Config) validateWorkers() error {
	for _, family := range c.Workers.Families {
		if _, ok := knownFamilies[family]; !ok {
			return fmt.Errorf("workers.families contains unknown family %q", family)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ReconcileInterval <= 0 {
		return errors.New("workflow.reconcile_interval must be positive")
	}
	if c.Workflow.QueuedGracePeriod <= 0 {
		return errors.New("workflow.queued_grace_period must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxActions <= 0 {
		return errors.New("pipeline.max_actions must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.EncryptionKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("security.encryption_key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("security.encryption_key must decode to 32 bytes (got %d)", len(key))
	}
	return nil
}

func (c *Config) validateImage() error {
	if c.Image.ThumbWidth <= 0 || c.Image.ThumbHeight <= 0 {
		return errors.New("image.thumb_width and image.thumb_height must be positive")
	}
	if c.Image.ConvertQuality < 1 || c.Image.ConvertQuality > 100 {
		return errors.New("image.convert_quality must be between 1 and 100")
	}
	if c.Image.CompressQuality < 1 || c.Image.CompressQuality > 100 {
		return errors.New("image.compress_quality must be between 1 and 100")
	}
	return nil
}
