package cmd

import (
	"fmt"
	"os"

	"github.com/nextlevelbuilder/upsrelay/internal/config"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/internal/store/pg"
	"github.com/nextlevelbuilder/upsrelay/internal/store/sqlite"
)

// mustLoadConfig loads the config or exits with a helpful error.
func mustLoadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config %s: %s\n", cfgPath, err)
		fmt.Fprintln(os.Stderr, "Run `upsrelay onboard` to create one.")
		os.Exit(1)
	}
	return cfg
}

func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		PostgresDSN: cfg.Database.PostgresDSN,
		Mode:        cfg.Database.Mode,
		SQLitePath:  config.ExpandHome(cfg.Database.SQLitePath),
	}
}

// openStores opens Postgres in managed mode and SQLite otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	sc := storeConfig(cfg)
	if sc.IsManaged() {
		return pg.NewPGStores(sc)
	}
	return sqlite.NewSQLiteStores(sc)
}

// mustOpenStores is openStores for one-shot CLI commands.
func mustOpenStores(cfg *config.Config) *store.Stores {
	stores, err := openStores(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %s\n", err)
		os.Exit(1)
	}
	return stores
}
