package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at path in WAL mode and runs migrations.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	// One writer, several readers under WAL.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Schema is the full set of tables, in dependency order.
var Schema = []struct {
	Name string
	DDL  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		role TEXT DEFAULT 'user' CHECK(role IN ('admin','user')),
		active INTEGER DEFAULT 1,
		failed_login_attempts INTEGER DEFAULT 0,
		locked_until TEXT,
		last_login TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`},
	{"sessions", `CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		crm_token TEXT DEFAULT '',
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		expires_at TEXT NOT NULL,
		last_activity TEXT DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},
	{"csrf_tokens", `CREATE TABLE IF NOT EXISTS csrf_tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		expires_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},
	{"audit_log", `CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT NOT NULL,
		summary TEXT,
		ip_address TEXT DEFAULT '',
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`},
	{"worklist_rows", `CREATE TABLE IF NOT EXISTS worklist_rows (
		user_id INTEGER NOT NULL,
		position INTEGER NOT NULL CHECK(position >= 0),
		entry_date TEXT DEFAULT '',
		notice INTEGER NOT NULL,
		item TEXT NOT NULL,
		description TEXT DEFAULT '',
		qty_received TEXT NOT NULL DEFAULT '0',
		supplier TEXT DEFAULT '',
		purchase_order INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','inspected','postponed')),
		PRIMARY KEY (user_id, position),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},
	{"inspection_routines", `CREATE TABLE IF NOT EXISTS inspection_routines (
		id TEXT PRIMARY KEY,
		inspector_id INTEGER NOT NULL,
		inspected_at TEXT NOT NULL,
		rows_json TEXT NOT NULL,
		FOREIGN KEY (inspector_id) REFERENCES users(id)
	)`},
	{"user_prefs", `CREATE TABLE IF NOT EXISTS user_prefs (
		user_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (user_id, key),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},
	{"suppliers", `CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		legal_name TEXT NOT NULL,
		cnpj TEXT UNIQUE NOT NULL,
		logix_name TEXT NOT NULL
	)`},
	{"nonconformance_reports", `CREATE TABLE IF NOT EXISTS nonconformance_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		oc INTEGER UNIQUE NOT NULL,
		notice INTEGER NOT NULL,
		inc_date TEXT NOT NULL,
		representative TEXT NOT NULL,
		supplier TEXT NOT NULL,
		item TEXT NOT NULL,
		qty_received INTEGER NOT NULL DEFAULT 0,
		qty_defective INTEGER NOT NULL DEFAULT 0,
		defect_description TEXT DEFAULT '',
		urgency TEXT NOT NULL DEFAULT 'moderate' CHECK(urgency IN ('low','moderate','critical')),
		recommended_action TEXT DEFAULT '',
		photos_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'in_progress' CHECK(status IN ('in_progress','completed','cancelled')),
		created_by TEXT DEFAULT '',
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`},
	{"layout_settings", `CREATE TABLE IF NOT EXISTS layout_settings (
		element TEXT PRIMARY KEY,
		foreground TEXT NOT NULL,
		background TEXT NOT NULL,
		font_family TEXT NOT NULL,
		font_size INTEGER NOT NULL
	)`},
}

// Migrate creates any missing tables.
func Migrate(db *sql.DB) error {
	for _, tbl := range Schema {
		if _, err := db.Exec(tbl.DDL); err != nil {
			return fmt.Errorf("create %s table: %w", tbl.Name, err)
		}
	}
	return nil
}

// SeedAdmin creates admin/changeme when the users table is empty.
func SeedAdmin(db *sql.DB) error {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		"admin", string(hash), "Administrator", "admin"); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("Seeded default admin user (admin/changeme); change the password")
	return nil
}
