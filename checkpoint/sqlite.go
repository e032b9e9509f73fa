package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SQLiteStore keeps checkpoints in a local sqlite database, one row per
// session, using a pure-Go driver. This is the durable single-file option
// for interactive sessions that span process restarts.
type SQLiteStore struct {
	db *gorm.DB
}

type checkpointRow struct {
	SessionID string    `gorm:"column:session_id;primaryKey"`
	Seq       uint64    `gorm:"column:seq"`
	Stage     string    `gorm:"column:stage"`
	State     []byte    `gorm:"column:state"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (checkpointRow) TableName() string { return "checkpoints" }

type leaseRow struct {
	SessionID  string    `gorm:"column:session_id;primaryKey"`
	AcquiredAt time.Time `gorm:"column:acquired_at"`
}

func (leaseRow) TableName() string { return "leases" }

// NewSQLiteStore opens (creating if needed) the database at config.Path.
func NewSQLiteStore(config StoreConfig) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(config.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&checkpointRow{}, &leaseRow{}); err != nil {
		return nil, err
	}
	// Leases do not survive a crash of the owning process.
	if err := db.Where("1 = 1").Delete(&leaseRow{}).Error; err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	state, err := json.Marshal(cp.State)
	if err != nil {
		return err
	}
	row := checkpointRow{
		SessionID: cp.SessionID,
		Seq:       cp.Seq,
		Stage:     cp.Stage,
		State:     state,
		UpdatedAt: cp.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	var row checkpointRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		SessionID: row.SessionID,
		Seq:       row.Seq,
		Stage:     row.Stage,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.State, &cp.State); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Delete(&checkpointRow{}, "session_id = ?", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&checkpointRow{}).
		Order("session_id").Pluck("session_id", &ids).Error
	return ids, err
}

func (s *SQLiteStore) Acquire(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&leaseRow{SessionID: sessionID, AcquiredAt: time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseHeld
	}
	return nil
}

func (s *SQLiteStore) Release(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Delete(&leaseRow{}, "session_id = ?", sessionID).Error
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLiteStore)(nil)
