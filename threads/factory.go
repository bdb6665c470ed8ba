package threads

import (
	"fmt"

	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/internal/database"
	"go.uber.org/zap"
)

// Driver names accepted by NewStore.
const (
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// NewStore creates a Store based on the configuration.
// For SQL drivers the database driver follows threads.driver.
func NewStore(cfg config.ThreadsConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverFile, "":
		return NewFileStore(cfg.Dir, logger)
	case DriverRedis:
		return NewRedisStoreFromConfig(cfg.Redis, logger)
	case DriverSQLite, DriverPostgres, DriverMySQL:
		dbCfg := cfg.Database
		dbCfg.Driver = cfg.Driver
		pool, err := database.Open(dbCfg, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLStore(pool, logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported thread store driver: %s", cfg.Driver)
	}
}
