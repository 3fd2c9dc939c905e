package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

const uniqueViolation = "23505"

// Room is the rooms table row. The whole session state, events included,
// lives in the state document.
type Room struct {
	ID        string                           `gorm:"primaryKey;size:32"`
	BlueName  string                           `gorm:"not null"`
	RedName   string                           `gorm:"not null"`
	Status    string                           `gorm:"not null;default:active;index"`
	State     datatypes.JSONType[engine.State] `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the rooms table.
func OpenPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&Room{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	log.Named("store").Info("rooms table ready", zap.Any("config", DescribeDSN(dsn)))
	return &Postgres{db: db}, nil
}

func (p *Postgres) RoomExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Errorf("room exists %s: %w", id, err)
	}
	return n > 0, nil
}

func (p *Postgres) InsertRoom(ctx context.Context, id, blueName, redName string, initial engine.State) error {
	row := Room{
		ID:       id,
		BlueName: blueName,
		RedName:  redName,
		Status:   statusOf(initial),
		State:    datatypes.NewJSONType(initial),
	}
	err := p.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return ErrRoomExists
	}
	if err != nil {
		return fmt.Errorf("insert room %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) UpdateState(ctx context.Context, id string, state engine.State) error {
	res := p.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).Updates(map[string]any{
		"state":  datatypes.NewJSONType(state),
		"status": statusOf(state),
	})
	if res.Error != nil {
		return fmt.Errorf("update room %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (p *Postgres) LoadState(ctx context.Context, id string) (engine.State, error) {
	var row Room
	err := p.db.WithContext(ctx).Select("id", "state").First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, ErrRoomNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load room %s: %w", id, err)
	}
	return row.State.Data(), nil
}

func (p *Postgres) FetchEvents(ctx context.Context, id string) ([]engine.Event, error) {
	s, err := p.LoadState(ctx, id)
	if err != nil {
		return nil, err
	}
	events := s.Events
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// DescribeDSN summarizes dsn for diagnostics without leaking credentials.
func DescribeDSN(dsn string) map[string]string {
	if dsn == "" {
		return map[string]string{"mode": "memory"}
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return map[string]string{"mode": "dsn"}
	}
	summary := map[string]string{
		"mode":     "url",
		"host":     u.Hostname(),
		"port":     u.Port(),
		"database": trimSlash(u.Path),
		"sslmode":  u.Query().Get("sslmode"),
	}
	if u.User != nil {
		name := u.User.Username()
		if len(name) > 3 {
			name = name[:3]
		}
		summary["user"] = name + "***"
	}
	return summary
}

func trimSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
