package checkpoint

import (
	"fmt"

	"go.uber.org/zap"
)

// NewStore builds a Store from configuration.
func NewStore(config StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "checkpoint"))

	switch config.Type {
	case StoreTypeMemory:
		logger.Info("using in-memory checkpoint store")
		return NewMemoryStore(), nil
	case StoreTypeFile:
		logger.Info("using file checkpoint store", zap.String("base_dir", config.BaseDir))
		return NewFileStore(config)
	case StoreTypeSQLite:
		logger.Info("using sqlite checkpoint store", zap.String("path", config.Path))
		return NewSQLiteStore(config)
	case StoreTypeRedis:
		logger.Info("using redis checkpoint store", zap.String("addr", config.RedisAddr))
		return NewRedisStore(config)
	case StoreTypeMongo:
		logger.Info("using mongo checkpoint store", zap.String("database", config.MongoDatabase))
		return NewMongoStore(config)
	default:
		return nil, fmt.Errorf("unknown checkpoint store type: %q", config.Type)
	}
}
