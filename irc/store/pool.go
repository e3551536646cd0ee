package store

import (
	"fmt"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// pool shares one *gorm.DB per driver and DSN across every Open call.
type pool struct {
	mu      sync.RWMutex
	openMu  sync.Mutex
	entries map[string]*gorm.DB
}

var defaultPool = &pool{entries: make(map[string]*gorm.DB)}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

func poolKey(driver, dsn string) string {
	return driver + "\x00" + dsn
}

func (p *pool) get(key string) *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[key]
}

// open returns the cached connection for driver and dsn, creating it once.
func (p *pool) open(driver, dsn string) (*gorm.DB, error) {
	key := poolKey(driver, dsn)
	if db := p.get(key); db != nil {
		return db, nil
	}

	p.openMu.Lock()
	defer p.openMu.Unlock()

	// another caller may have won the race
	if db := p.get(key); db != nil {
		return db, nil
	}

	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	p.mu.Lock()
	p.entries[key] = db
	p.mu.Unlock()
	return db, nil
}

// close drops and closes the connection for driver and dsn.
func (p *pool) close(driver, dsn string) error {
	key := poolKey(driver, dsn)

	p.mu.Lock()
	db := p.entries[key]
	delete(p.entries, key)
	p.mu.Unlock()

	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

