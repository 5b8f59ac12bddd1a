package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type roomRow struct {
	Name      string `gorm:"primaryKey;size:20"`
	Version   uint64 `gorm:"not null"`
	State     []byte `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (roomRow) TableName() string { return "rooms" }

type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&roomRow{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Save(ctx context.Context, rec Record) error {
	row := roomRow{Name: rec.Room, Version: rec.Version, State: rec.State, UpdatedAt: rec.UpdatedAt}
	if err := p.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save room %s: %w", rec.Room, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, room string) (Record, error) {
	var row roomRow
	err := p.db.WithContext(ctx).First(&row, "name = ?", room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load room %s: %w", room, err)
	}
	return Record{Room: row.Name, Version: row.Version, State: row.State, UpdatedAt: row.UpdatedAt}, nil
}

func (p *Postgres) Delete(ctx context.Context, room string) error {
	if err := p.db.WithContext(ctx).Delete(&roomRow{}, "name = ?", room).Error; err != nil {
		return fmt.Errorf("delete room %s: %w", room, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := p.db.WithContext(ctx).Model(&roomRow{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return names, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
