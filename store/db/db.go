package db

import (
	"github.com/pkg/errors"

	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/store"
	"github.com/sestako/eunio-app-sub009/store/db/postgres"
	"github.com/sestako/eunio-app-sub009/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// SQLite is the on-device store for the mobile shell; PostgreSQL backs the
// self-hosted sync server deployment.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
