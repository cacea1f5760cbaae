package pg

import (
	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// NewPGStores opens Postgres, applies pending migrations and returns the stores.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, "up"); err != nil {
		db.Close()
		return nil, err
	}
	return store.NewStores(
		NewPGDeviceStore(db),
		NewPGGroupStore(db),
		NewPGEventLog(db),
		db,
	), nil
}
