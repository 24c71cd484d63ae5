// Package catalog stores curated public method names per class in SQLite.
// A Catalog serves as the bridge's name registry.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/objcbridge/bridge"
	"github.com/chazu/objcbridge/snapshot"
)

// ErrClassNotFound indicates the class has no catalog entry.
var ErrClassNotFound = errors.New("class not found in catalog")

var log = commonlog.GetLogger("objcbridge.catalog")

var _ bridge.NameRegistry = (*Catalog)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		name       TEXT PRIMARY KEY,
		superclass TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS attributes (
		class TEXT NOT NULL,
		name  TEXT NOT NULL,
		meta  INTEGER NOT NULL,
		PRIMARY KEY (class, name, meta)
	)`,
}

// Catalog is a SQLite-backed name registry.
type Catalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens or creates the catalog database at dbPath.
func Open(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &Catalog{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database path.
func (c *Catalog) Path() string { return c.dbPath }

// AddClass records a class and its superclass name.
func (c *Catalog) AddClass(name, superclass string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO classes (name, superclass) VALUES (?, ?)",
		name, superclass,
	)
	if err != nil {
		return fmt.Errorf("saving class %s: %w", name, err)
	}
	return nil
}

// AddMethods records public selectors of a class. meta selects class
// methods instead of instance methods. The class must already exist.
func (c *Catalog) AddMethods(class string, meta bool, selectors ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireClass(tx, class); err != nil {
		return err
	}
	if err := insertMethods(tx, class, meta, selectors); err != nil {
		return err
	}
	return tx.Commit()
}

func requireClass(tx *sql.Tx, class string) error {
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM classes WHERE name = ?", class).Scan(&n); err != nil {
		return fmt.Errorf("querying class: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", class, ErrClassNotFound)
	}
	return nil
}

func insertMethods(tx *sql.Tx, class string, meta bool, selectors []string) error {
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO attributes (class, name, meta) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	flag := 0
	if meta {
		flag = 1
	}
	for _, sel := range selectors {
		if _, err := stmt.Exec(class, sel, flag); err != nil {
			return fmt.Errorf("saving %s %s: %w", class, sel, err)
		}
	}
	return nil
}

// PublicMethods returns the recorded class and instance selectors of a
// class, each sorted. ok is false when the class is not in the catalog.
// Query errors are logged and reported as unknown.
func (c *Catalog) PublicMethods(className string) (classMethods, instanceMethods []string, ok bool) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM classes WHERE name = ?", className).Scan(&n); err != nil {
		log.Errorf("querying class %s: %s", className, err)
		return nil, nil, false
	}
	if n == 0 {
		return nil, nil, false
	}

	rows, err := c.db.Query("SELECT name, meta FROM attributes WHERE class = ? ORDER BY name", className)
	if err != nil {
		log.Errorf("querying methods of %s: %s", className, err)
		return nil, nil, false
	}
	defer rows.Close()

	classMethods, instanceMethods = []string{}, []string{}
	for rows.Next() {
		var name string
		var meta int
		if err := rows.Scan(&name, &meta); err != nil {
			log.Errorf("scanning methods of %s: %s", className, err)
			return nil, nil, false
		}
		if meta != 0 {
			classMethods = append(classMethods, name)
		} else {
			instanceMethods = append(instanceMethods, name)
		}
	}
	if err := rows.Err(); err != nil {
		log.Errorf("reading methods of %s: %s", className, err)
		return nil, nil, false
	}
	return classMethods, instanceMethods, true
}

// Superclass returns the recorded superclass name; "" for a root class.
func (c *Catalog) Superclass(name string) (string, error) {
	var sup string
	err := c.db.QueryRow("SELECT superclass FROM classes WHERE name = ?", name).Scan(&sup)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", name, ErrClassNotFound)
		}
		return "", fmt.Errorf("querying class: %w", err)
	}
	return sup, nil
}

// Classes returns all class names, sorted.
func (c *Catalog) Classes() ([]string, error) {
	rows, err := c.db.Query("SELECT name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning class: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes a class and its methods.
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM attributes WHERE class = ?", name); err != nil {
		return fmt.Errorf("deleting methods of %s: %w", name, err)
	}
	if _, err := tx.Exec("DELETE FROM classes WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting class %s: %w", name, err)
	}
	return tx.Commit()
}

// ImportSnapshot records every class of s with its public selectors.
// Existing method lists of those classes are replaced.
func (c *Catalog) ImportSnapshot(s *snapshot.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range s.Classes {
		cls := &s.Classes[i]
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO classes (name, superclass) VALUES (?, ?)",
			cls.Name, cls.Superclass,
		); err != nil {
			return fmt.Errorf("saving class %s: %w", cls.Name, err)
		}
		if _, err := tx.Exec("DELETE FROM attributes WHERE class = ?", cls.Name); err != nil {
			return fmt.Errorf("clearing methods of %s: %w", cls.Name, err)
		}
		if err := insertMethods(tx, cls.Name, false, cls.PublicSelectors(false)); err != nil {
			return err
		}
		if err := insertMethods(tx, cls.Name, true, cls.PublicSelectors(true)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	log.Infof("imported %d classes into %s", len(s.Classes), c.dbPath)
	return nil
}
