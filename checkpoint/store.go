package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Common store errors. Callers match with errors.Is.
var (
	// ErrNotFound: no checkpoint stored under the session id.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrStoreClosed: the store was closed.
	ErrStoreClosed = errors.New("checkpoint store is closed")
	// ErrInvalidInput: nil checkpoint or empty session id.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLeaseHeld: another holder owns the session lease.
	ErrLeaseHeld = errors.New("session lease already held")
)

// Checkpoint is one durable session snapshot. State is the full record;
// Stage is the next stage to execute ("" before the first stage, the
// terminal sentinel once the run finished). Seq increases by one per save.
type Checkpoint struct {
	SessionID string         `json:"session_id"`
	Seq       uint64         `json:"seq"`
	Stage     string         `json:"stage"`
	State     map[string]any `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the persistence contract. Save overwrites the session's
// previous snapshot; Load returns ErrNotFound for unknown sessions.
// Acquire takes the session lease or fails with ErrLeaseHeld; Release
// gives it back. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
	Acquire(ctx context.Context, sessionID string) error
	Release(ctx context.Context, sessionID string) error
	Close() error
}

// StoreType selects a backend in StoreConfig.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeMongo  StoreType = "mongo"
)

// StoreConfig configures a backend. Unused fields are ignored by the
// other backends.
type StoreConfig struct {
	Type StoreType `yaml:"type"`

	// File backend.
	BaseDir string `yaml:"base_dir"`

	// SQLite backend.
	Path string `yaml:"path"`

	// Redis backend.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
	LeaseTTL      time.Duration `yaml:"lease_ttl"`

	// Mongo backend.
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// DefaultStoreConfig returns a file-backed configuration suitable for a
// single-node deployment.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:      StoreTypeFile,
		BaseDir:   ".stagecraft",
		Path:      ".stagecraft/checkpoints.db",
		RedisAddr: "localhost:6379",
		KeyPrefix: "stagecraft",
		LeaseTTL:  30 * time.Minute,
	}
}

func validateCheckpoint(cp *Checkpoint) error {
	if cp == nil || cp.SessionID == "" {
		return ErrInvalidInput
	}
	return nil
}
