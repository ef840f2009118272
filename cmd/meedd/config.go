package main

import (
	"errors"
	"time"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

var errUnknownBackend = errors.New("meedd: unknown backend")

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	Owner     string   `env:"MEED_OWNER,required"`
	Consumers []string `env:"MEED_CONSUMERS" envSeparator:","`

	CatalogFile            string `env:"MEED_CATALOG_FILE"`
	TopUpNeedsSubscription bool   `env:"MEED_TOPUP_NEEDS_SUBSCRIPTION" envDefault:"true"`

	Store  string `env:"MEED_STORE" envDefault:"memory"`  // memory | postgres
	Locker string `env:"MEED_LOCKER" envDefault:"memory"` // memory | redis

	ExpirySchedule string        `env:"MEED_EXPIRY_SCHEDULE" envDefault:"@every 1m"`
	ReadyTimeout   time.Duration `env:"MEED_READY_TIMEOUT" envDefault:"2s"`
	AuditBuffer    int           `env:"MEED_AUDIT_BUFFER" envDefault:"1000"`
}

func (c appConfig) owner() (ledger.Address, error) {
	return ledger.ParseAddress(c.Owner)
}

func (c appConfig) consumers() ([]ledger.Address, error) {
	out := make([]ledger.Address, 0, len(c.Consumers))
	for _, raw := range c.Consumers {
		addr, err := ledger.ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func (c appConfig) catalog() (*catalog.Plans, *catalog.TopUps, error) {
	if c.CatalogFile == "" {
		return catalog.DefaultPlans(), catalog.DefaultTopUps(), nil
	}
	return catalog.LoadFile(c.CatalogFile)
}
