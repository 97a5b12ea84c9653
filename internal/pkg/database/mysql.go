// internal/pkg/database/mysql.go
package database

import (
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MySQLConfig 描述连接池与锁等待参数
type MySQLConfig struct {
	DSN                    string        `yaml:"dsn"`
	MaxOpenConns           int           `yaml:"maxOpenConns"`
	MaxIdleConns           int           `yaml:"maxIdleConns"`
	ConnMaxLifetime        time.Duration `yaml:"connMaxLifetime"`
	LockWaitTimeoutSeconds int           `yaml:"lockWaitTimeoutSeconds"`
	AutoMigrate            bool          `yaml:"autoMigrate"`
}

// NewMySQL 打开 GORM 连接。innodb_lock_wait_timeout 作为会话变量下发，
// 行锁等待超过该值时事务以 1205 失败，并被归类为 Conflict。
func NewMySQL(cfg MySQLConfig) (*gorm.DB, error) {
	dsnCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql dsn")
	}
	dsnCfg.ParseTime = true
	if dsnCfg.Params == nil {
		dsnCfg.Params = map[string]string{}
	}
	if cfg.LockWaitTimeoutSeconds > 0 {
		dsnCfg.Params["innodb_lock_wait_timeout"] = strconv.Itoa(cfg.LockWaitTimeoutSeconds)
	}

	db, err := gorm.Open(gormmysql.Open(dsnCfg.FormatDSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping mysql")
	}
	return db, nil
}
