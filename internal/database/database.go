package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/directory-assistant-go/internal/config"
)

// Migrator 는 연결 직후 자기 테이블을 준비하는 저장소다.
type Migrator func(db *gorm.DB) error

// Conn 은 첫 사용 시점에 postgres 연결을 여는 공유 gorm 핸들이다.
// usage, settings, directory 저장소가 함께 쓴다.
type Conn struct {
	cfg        config.DatabaseConfig
	logger     *slog.Logger
	migrations []Migrator

	mu    sync.Mutex
	db    *gorm.DB
	sqlDB *sql.DB
}

// New 는 지연 연결 핸들을 생성한다.
func New(cfg config.DatabaseConfig, logger *slog.Logger, migrations ...Migrator) *Conn {
	return &Conn{cfg: cfg, logger: logger, migrations: migrations}
}

// NewFromGorm 은 이미 열린 gorm 핸들을 감싼다. 테스트에서 sqlite 를 주입할 때 쓴다.
func NewFromGorm(db *gorm.DB, migrations ...Migrator) (*Conn, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	for _, migrate := range migrations {
		if err := migrate(db); err != nil {
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get db handle: %w", err)
	}
	return &Conn{db: db, sqlDB: sqlDB}, nil
}

// DB 는 연결을 반환하며, 아직 열리지 않았으면 연다.
func (c *Conn) DB(ctx context.Context) (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.WithContext(ctx), nil
	}

	hostUsed := c.cfg.Host
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	db, err := gorm.Open(postgres.Open(c.cfg.DSN()), gormCfg)
	if err != nil && shouldFallbackToLocalhost(err, c.cfg.Host) {
		fallback := c.cfg
		fallback.Host = "127.0.0.1"
		db, err = gorm.Open(postgres.Open(fallback.DSN()), gormCfg)
		if err == nil {
			hostUsed = fallback.Host
			c.log().Warn("db_host_fallback", "configured_host", c.cfg.Host, "effective_host", hostUsed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	for _, migrate := range c.migrations {
		if err := migrate(db); err != nil {
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(c.cfg.MinPool)
	sqlDB.SetMaxOpenConns(c.cfg.MaxPool)
	if c.cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	if c.cfg.ConnMaxIdleTimeMinutes > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(c.cfg.ConnMaxIdleTimeMinutes) * time.Minute)
	}

	c.log().Info("db_connected", "host", hostUsed, "name", c.cfg.Name)

	c.db = db
	c.sqlDB = sqlDB
	return db.WithContext(ctx), nil
}

// Ping 은 readiness 검사에 쓰인다.
func (c *Conn) Ping(ctx context.Context) error {
	if _, err := c.DB(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	sqlDB := c.sqlDB
	c.mu.Unlock()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// Close 는 DB 연결을 닫는다.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sqlDB == nil {
		return
	}
	_ = c.sqlDB.Close()
	c.sqlDB = nil
	c.db = nil
}

func (c *Conn) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// shouldFallbackToLocalhost 는 compose 서비스명 "postgres" 가 해석되지 않을 때 로컬로 재시도할지 판단한다.
func shouldFallbackToLocalhost(err error, host string) bool {
	if err == nil || !strings.EqualFold(host, "postgres") {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return strings.EqualFold(dnsErr.Name, host)
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "no such host") && strings.Contains(lower, strings.ToLower(host))
}
