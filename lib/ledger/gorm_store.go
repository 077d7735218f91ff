package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// caseRow is the persisted shape of a moderation case
type caseRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	CaseID        int64  `gorm:"column:case_id;uniqueIndex:idx_cases_community_case,where:case_id > 0"`
	CommunityID   string `gorm:"column:community_id;size:64;uniqueIndex:idx_cases_community_case,where:case_id > 0;index:idx_cases_subject"`
	SubjectUserID string `gorm:"column:subject_user_id;size:64;index:idx_cases_subject"`
	ActorID       string `gorm:"column:actor_id;size:64"`
	ActionType    string `gorm:"column:action_type;size:16;index"`
	Reason        string `gorm:"column:reason"`
	Evidence      string `gorm:"column:evidence"` // JSON array
	DurationMs    int64  `gorm:"column:duration_ms"`
	ExpiresAt     *time.Time
	Metadata      string `gorm:"column:metadata"` // JSON object
	CreatedAt     time.Time
}

// TableName keeps the table name stable
func (caseRow) TableName() string { return "moderation_cases" }

// counterRow is the per-community case counter
type counterRow struct {
	CommunityID string `gorm:"column:community_id;primaryKey;size:64"`
	LastCaseID  int64  `gorm:"column:last_case_id"`
}

// TableName keeps the table name stable
func (counterRow) TableName() string { return "community_case_counters" }

// GormStore implements Store on a GORM sqlite database
type GormStore struct {
	db *gorm.DB
}

// InitStore opens the ledger database at the given directory and runs the
// schema migration
func InitStore(basePath string) (*GormStore, error) {
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	// WAL for concurrent readers, immediate transactions so the counter
	// upsert serializes at begin time rather than deadlocking at commit
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=30000&_txlock=immediate&_synchronous=normal",
		filepath.Join(basePath, "ledger.db"))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		PrepareStmt:          true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}

	store := &GormStore{db: db}
	if err := store.Initialize(); err != nil {
		return nil, err
	}

	logging.Infof("Ledger store opened at %s", basePath)
	return store, nil
}

// NewGormStore wraps an existing gorm database; used by tests
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Initialize sets up the database tables and indexes
func (s *GormStore) Initialize() error {
	if err := s.db.AutoMigrate(&caseRow{}, &counterRow{}); err != nil {
		return fmt.Errorf("%w: failed to migrate ledger tables: %v", types.ErrPersistence, err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AllocateCaseID atomically increments and returns the community's counter.
// The read-increment-write happens as one conditional upsert inside a
// single transaction, so two near-simultaneous calls can never observe a
// torn read.
func (s *GormStore) AllocateCaseID(communityID string) (int64, error) {
	if communityID == "" {
		return 0, fmt.Errorf("%w: community id is required", types.ErrValidation)
	}

	var next int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO community_case_counters (community_id, last_case_id) VALUES (?, 1)
			 ON CONFLICT(community_id) DO UPDATE SET last_case_id = last_case_id + 1`,
			communityID).Error; err != nil {
			return err
		}
		return tx.Raw(
			`SELECT last_case_id FROM community_case_counters WHERE community_id = ?`,
			communityID).Scan(&next).Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to allocate case id: %v", types.ErrPersistence, err)
	}

	return next, nil
}

// RecordCase persists a new case, allocating a case number first when
// requested
func (s *GormStore) RecordCase(payload *CasePayload, assignCaseID bool) (*types.ModerationCase, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	var caseID int64
	if assignCaseID {
		id, err := s.AllocateCaseID(payload.CommunityID)
		if err != nil {
			return nil, err
		}
		caseID = id
	}

	row, err := toRow(payload, caseID)
	if err != nil {
		return nil, err
	}

	// If this write fails after allocation, the id stays consumed; the
	// sequence skips rather than reuses
	if err := s.db.Create(row).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to record case: %v", types.ErrPersistence, err)
	}

	return fromRow(row)
}

// QueryCases returns a subject's cases newest first
func (s *GormStore) QueryCases(communityID, subjectUserID string, filter *types.CaseFilter) ([]*types.ModerationCase, error) {
	query := s.db.
		Where("community_id = ? AND subject_user_id = ?", communityID, subjectUserID).
		Order("created_at DESC, id DESC")

	if filter != nil {
		if filter.Type != "" {
			query = query.Where("action_type = ?", string(filter.Type))
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var rows []caseRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to query cases: %v", types.ErrPersistence, err)
	}

	cases := make([]*types.ModerationCase, 0, len(rows))
	for i := range rows {
		c, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}

	return cases, nil
}

// AggregateStats computes the total, per-type counts, and most recent case
// inside one transaction so the breakdown always sums to the total
func (s *GormStore) AggregateStats(communityID, subjectUserID string) (*types.CaseStats, error) {
	stats := &types.CaseStats{
		CountsByType: make(map[types.ActionType]int64),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		base := tx.Model(&caseRow{}).
			Where("community_id = ? AND subject_user_id = ?", communityID, subjectUserID)

		if err := base.Session(&gorm.Session{}).Count(&stats.TotalCases).Error; err != nil {
			return err
		}

		var grouped []struct {
			ActionType string
			Count      int64
		}
		if err := base.Session(&gorm.Session{}).
			Select("action_type, COUNT(*) AS count").
			Group("action_type").
			Scan(&grouped).Error; err != nil {
			return err
		}
		for _, g := range grouped {
			stats.CountsByType[types.ActionType(g.ActionType)] = g.Count
		}

		var newest caseRow
		err := tx.Where("community_id = ? AND subject_user_id = ?", communityID, subjectUserID).
			Order("created_at DESC, id DESC").
			First(&newest).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		mostRecent, convErr := fromRow(&newest)
		if convErr != nil {
			return convErr
		}
		stats.MostRecent = mostRecent
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to aggregate stats: %v", types.ErrPersistence, err)
	}

	return stats, nil
}

// toRow converts a payload into its persisted shape
func toRow(payload *CasePayload, caseID int64) (*caseRow, error) {
	row := &caseRow{
		CaseID:        caseID,
		CommunityID:   payload.CommunityID,
		SubjectUserID: payload.SubjectUserID,
		ActorID:       payload.ActorID,
		ActionType:    string(payload.ActionType),
		Reason:        payload.Reason,
		DurationMs:    payload.Duration.Milliseconds(),
		ExpiresAt:     payload.ExpiresAt,
		CreatedAt:     time.Now(),
	}

	if len(payload.Evidence) > 0 {
		encoded, err := json.MarshalToString(payload.Evidence)
		if err != nil {
			return nil, fmt.Errorf("failed to encode evidence: %w", err)
		}
		row.Evidence = encoded
	}

	if len(payload.Metadata) > 0 {
		encoded, err := json.MarshalToString(payload.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		row.Metadata = encoded
	}

	return row, nil
}

// fromRow converts a persisted row back into the public case shape
func fromRow(row *caseRow) (*types.ModerationCase, error) {
	c := &types.ModerationCase{
		CaseID:        row.CaseID,
		CommunityID:   row.CommunityID,
		SubjectUserID: row.SubjectUserID,
		ActorID:       row.ActorID,
		ActionType:    types.ActionType(row.ActionType),
		Reason:        row.Reason,
		Duration:      time.Duration(row.DurationMs) * time.Millisecond,
		ExpiresAt:     row.ExpiresAt,
		CreatedAt:     row.CreatedAt,
	}

	if row.Evidence != "" {
		if err := json.UnmarshalFromString(row.Evidence, &c.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
	}

	if row.Metadata != "" {
		if err := json.UnmarshalFromString(row.Metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return c, nil
}
