package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/poster-worker/internal/config"
	"github.com/adverant/nexus/poster-worker/internal/logging"
)

type commandContext struct {
	envFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(envFlag *string) *commandContext {
	return &commandContext{envFlag: envFlag}
}

// ensureConfig loads the env file, if present, then the configuration.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ".env"
		if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
			path = strings.TrimSpace(*c.envFlag)
		}
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.configErr = fmt.Errorf("load %s: %w", path, err)
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the worker logger at the configured level.
func (c *commandContext) logger(w io.Writer) *logging.Logger {
	level := logging.LevelInfo
	if c.config != nil {
		level = logging.ParseLevel(c.config.LogLevel)
	}
	return logging.NewLoggerWithWriter("poster-worker", w, level)
}
