package db

import (
	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
	"github.com/leichangqing/intelligence-intent-sub003/store/db/postgres"
	"github.com/leichangqing/intelligence-intent-sub003/store/db/sqlite"
)

// NewDBDriver creates a store driver based on the profile's driver setting.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
}
