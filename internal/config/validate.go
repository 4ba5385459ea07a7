package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the application configuration is usable.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return errors.New("catalog.path must be set")
	}
	if strings.TrimSpace(c.Catalog.Schema) == "" {
		return errors.New("catalog.schema must be set")
	}
	return nil
}
