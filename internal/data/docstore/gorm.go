package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/learnmate-backend/internal/platform/dbctx"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Document is the row layout shared by every collection.
type Document struct {
	Collection string         `gorm:"primaryKey;size:128" json:"collection"`
	ID         string         `gorm:"primaryKey;size:256" json:"id"`
	Data       datatypes.JSON `gorm:"not null" json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

type gormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}
}

// OpenPostgres connects with dsn and migrates the documents table.
func OpenPostgres(baseLog *logger.Logger, dsn string) (Store, *gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	s, err := NewGorm(baseLog, db)
	return s, db, err
}

// OpenSQLite opens a sqlite file (":memory:" for tests).
func OpenSQLite(baseLog *logger.Logger, path string) (Store, *gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	s, err := NewGorm(baseLog, db)
	return s, db, err
}

func NewGorm(baseLog *logger.Logger, db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &gormStore{db: db, log: logger.OrNop(baseLog).With("repo", "DocumentRepo")}, nil
}

func (s *gormStore) Collection(name string) Collection {
	return &gormCollection{store: s, name: name}
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormCollection struct {
	store *gormStore
	name  string
}

func (c *gormCollection) tx(dbc dbctx.Context) *gorm.DB {
	t := c.store.db
	if dbc.Tx != nil {
		t = dbc.Tx
	}
	return t.WithContext(dbc.Ctx)
}

func (c *gormCollection) Get(ctx context.Context, id string) (map[string]any, error) {
	var row Document
	err := c.tx(dbctx.Context{Ctx: ctx}).
		Where("collection = ? AND id = ?", c.name, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	return decodeRow(row)
}

func decodeRow(row Document) (map[string]any, error) {
	out := map[string]any{}
	if len(row.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(row.Data, &out); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", row.Collection, row.ID, err)
	}
	return out, nil
}

func (c *gormCollection) upsert(dbc dbctx.Context, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.name, id, err)
	}
	row := Document{Collection: c.name, ID: id, Data: datatypes.JSON(raw)}
	return c.tx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

func (c *gormCollection) Set(ctx context.Context, id string, data map[string]any) error {
	if err := c.upsert(dbctx.Context{Ctx: ctx}, id, data); err != nil {
		return fmt.Errorf("set %s/%s: %w", c.name, id, err)
	}
	return nil
}

func (c *gormCollection) delete(dbc dbctx.Context, id string) error {
	return c.tx(dbc).Where("collection = ? AND id = ?", c.name, id).Delete(&Document{}).Error
}

func (c *gormCollection) Delete(ctx context.Context, id string) error {
	if err := c.delete(dbctx.Context{Ctx: ctx}, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Query pushes string equality down as a JSON predicate and evaluates every
// operator in Go on the candidates.
func (c *gormCollection) Query(ctx context.Context, field, op string, value any) ([]Doc, error) {
	if err := checkOp(op); err != nil {
		return nil, err
	}
	q := c.tx(dbctx.Context{Ctx: ctx}).Where("collection = ?", c.name)
	if sv, ok := value.(string); ok && op == "==" {
		q = q.Where(datatypes.JSONQuery("data").Equals(sv, strings.Split(field, ".")...))
	}
	var rows []Document
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	out := make([]Doc, 0, len(rows))
	for _, r := range rows {
		data, err := decodeRow(r)
		if err != nil {
			c.store.log.Warn("Skipping undecodable document", "collection", c.name, "id", r.ID, "error", err)
			continue
		}
		if Match(data, field, op, value) {
			out = append(out, Doc{ID: r.ID, Data: data})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *gormCollection) Batch(ctx context.Context, writes []Write) error {
	return c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, w := range writes {
			var err error
			if w.Data == nil {
				err = c.delete(dbc, w.ID)
			} else {
				err = c.upsert(dbc, w.ID, w.Data)
			}
			if err != nil {
				return fmt.Errorf("batch %s/%s: %w", c.name, w.ID, err)
			}
		}
		return nil
	})
}
