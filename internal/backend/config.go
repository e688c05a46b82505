package backend

import (
	"time"

	"orcamento/internal/config"
	"orcamento/internal/storage"
)

// StorageOptions maps application configuration onto the store's options.
func StorageOptions(cfg *config.Config) storage.Options {
	driver := storage.DriverSQLite
	if cfg.DatabaseDriver == config.DriverPostgres {
		driver = storage.DriverPostgres
	}
	return storage.Options{
		Driver:          driver,
		SQLitePath:      cfg.SQLiteDBPath,
		DatabaseURL:     cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnectAttempts: cfg.DBConnectAttempts,
		RetryDelay:      2 * time.Second,
	}
}
