package app

import (
	"strings"

	"github.com/covecrm/covecrm/internal/database"
)

// DatabaseOpenConfig converts the application database section into the
// database package representation.
func (c DatabaseConfig) DatabaseOpenConfig() database.Config {
	return database.Config{
		Driver:          strings.TrimSpace(c.Driver),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		Host:            strings.TrimSpace(c.Host),
		Port:            c.Port,
		User:            strings.TrimSpace(c.Username),
		Password:        c.Password,
		Name:            strings.TrimSpace(c.Name),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}
