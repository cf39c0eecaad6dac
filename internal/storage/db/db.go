// Package db opens the gorm connection for the sqlite or mysql backend.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type Options struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string
	// DSN is the sqlite file path or the mysql DSN.
	DSN    string
	Prefix string
	// Logger receives gorm's traces; nil discards them.
	Logger glog.Interface
}

// New opens the database.
func New(opts Options) (*gorm.DB, error) {
	dialector, err := openDialector(opts)
	if err != nil {
		return nil, err
	}

	l := opts.Logger
	if l == nil {
		l = glog.Discard
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: l,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   opts.Prefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driverName(opts.Driver) == "sqlite" {
		// sqlite allows a single writer; one connection avoids SQLITE_BUSY
		// when several sources refresh at once.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	return db, nil
}

// Migrate creates or updates the tables of models.
func Migrate(db *gorm.DB, models ...any) error {
	return db.AutoMigrate(models...)
}

func openDialector(opts Options) (gorm.Dialector, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	switch driverName(opts.Driver) {
	case "sqlite":
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", opts.Driver)
	}
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return strings.ToLower(d)
}
