// Package archive keeps a history of every record seen on the polled
// streams. The pipeline never reads it back; it exists for inspection.
package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"voxm2m/pkg/framing"
	"voxm2m/pkg/m2m"
)

// Record is one archived content instance, keyed by source and resource id.
type Record struct {
	Source       string `gorm:"primaryKey;size:64"`
	ID           string `gorm:"primaryKey;size:128"`
	ResourceName string `gorm:"size:128"`
	ParentID     string `gorm:"size:128"`
	Content      string `gorm:"type:text"`
	Kind         string `gorm:"size:16;index"`
	Session      string `gorm:"size:64;index"`
	M2MCreated   string `gorm:"column:m2m_created;size:32"`
	M2MModified  string `gorm:"column:m2m_modified;size:32"`
	StateTag     string `gorm:"size:16"`
	ContentSize  string `gorm:"size:16"`
	FirstSeen    time.Time
	LastSeen     time.Time
}

type Archive struct {
	db *gorm.DB
}

// Open opens (or creates) a SQLite archive at path.
func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Archive, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{db: db}, nil
}

// Save upserts recs under source. Re-polled records only refresh their
// mutable fields and LastSeen.
func (a *Archive) Save(ctx context.Context, source string, recs []m2m.Record) error {
	if len(recs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]Record, 0, len(recs))
	for _, r := range recs {
		row := Record{
			Source:       source,
			ID:           r.ID,
			ResourceName: r.ResourceName,
			ParentID:     r.ParentID,
			Content:      r.Content,
			Kind:         "data",
			M2MCreated:   r.CreatedAt,
			M2MModified:  r.ModifiedAt,
			StateTag:     r.StateTag,
			ContentSize:  r.ContentSize,
			FirstSeen:    now,
			LastSeen:     now,
		}
		if msg, err := framing.Parse(r.Content); err == nil {
			row.Kind = msg.Kind.String()
			row.Session = msg.Session
		}
		rows = append(rows, row)
	}

	result := a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "kind", "session", "m2m_modified", "state_tag", "content_size", "last_seen"}),
	}).CreateInBatches(rows, 100)
	if result.Error != nil {
		return fmt.Errorf("archive: save %d records for %q: %w", len(rows), source, result.Error)
	}
	return nil
}

// Recent returns up to limit records of source, most recently seen first.
func (a *Archive) Recent(ctx context.Context, source string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Record
	err := a.db.WithContext(ctx).
		Where("source = ?", source).
		Order("last_seen DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("archive: recent %q: %w", source, err)
	}
	return out, nil
}

// Session returns the archived control records of one session.
func (a *Archive) Session(ctx context.Context, source, session string) ([]Record, error) {
	var out []Record
	err := a.db.WithContext(ctx).
		Where("source = ? AND session = ?", source, session).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("archive: session %q/%q: %w", source, session, err)
	}
	return out, nil
}

func (a *Archive) Count(ctx context.Context, source string) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&Record{}).Where("source = ?", source).Count(&n).Error
	return n, err
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
