package main

import (
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"fileforge/internal/config"
)

type commandContext struct {
	configFlag *string
	addrFlag   *string
	tokenFlag  *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, addrFlag, tokenFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		addrFlag:   addrFlag,
		tokenFlag:  tokenFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// apiAddr resolves the daemon address: the --addr flag wins, then the
// configured api_bind.
func (c *commandContext) apiAddr() (string, error) {
	if c.addrFlag != nil && strings.TrimSpace(*c.addrFlag) != "" {
		return strings.TrimSpace(*c.addrFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "", errors.New("api_bind is not configured; set [paths] api_bind or pass --addr")
	}
	return bind, nil
}

func (c *commandContext) apiToken() string {
	if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
		return strings.TrimSpace(*c.tokenFlag)
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return strings.TrimSpace(cfg.Paths.APIToken)
	}
	return ""
}

func (c *commandContext) client() (*apiClient, error) {
	addr, err := c.apiAddr()
	if err != nil {
		return nil, err
	}
	return newAPIClient(addr, c.apiToken()), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
