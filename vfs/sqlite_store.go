package vfs

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/lifosh/lifosh/vfs/internal/schema"
)

// SqlitePersister snapshots an FS's inode tree to a sqlite database file,
// mirroring the "open sqlite, enable WAL, run embedded
// schema" constructor sequence in boxer.go's NewBoxer.
type SqlitePersister struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenSqlitePersister opens (creating if necessary) a snapshot database
// under appRoot, applying embedded migrations.
func OpenSqlitePersister(appRoot string) (*SqlitePersister, error) {
	if err := os.MkdirAll(appRoot, 0o750); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(appRoot, "lifo-vfs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vfs snapshot database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	srcDriver, err := iofs.New(schema.FS, ".")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load embedded vfs schema: %w", err)
	}
	dbDriver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "sqlite", dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		return nil, fmt.Errorf("failed to migrate vfs schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SqlitePersister{db: db, enc: enc, dec: dec}, nil
}

// Close releases the underlying database handle.
func (p *SqlitePersister) Close() error {
	p.enc.Close()
	p.dec.Close()
	return p.db.Close()
}

// SaveSnapshot walks fs and persists every inode as a row, compressing file
// content with zstd before it hits disk.
func (p *SqlitePersister) SaveSnapshot(fs *FS) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM inodes"); err != nil {
		return err
	}

	var walk func(path string, n *inode) error
	walk = func(path string, n *inode) error {
		var content []byte
		if n.typ == TypeFile {
			content = p.enc.EncodeAll(n.content, nil)
		}
		_, err := tx.Exec(
			`INSERT INTO inodes(path, type, mode, content, mtime, ctime) VALUES (?, ?, ?, ?, ?, ?)`,
			path, int(n.typ), n.mode, content, n.mtime.UnixNano(), n.ctime.UnixNano(),
		)
		if err != nil {
			return err
		}
		for _, name := range n.order {
			child := n.children[name]
			childPath := path
			if childPath == "/" {
				childPath = "/" + name
			} else {
				childPath = path + "/" + name
			}
			if err := walk(childPath, child); err != nil {
				return err
			}
		}
		return nil
	}

	fs.mu.RLock()
	err = walk("/", fs.root)
	fs.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("SqlitePersister.SaveSnapshot", "status", "ok")
	return nil
}

// LoadSnapshot replaces fs's tree with the persisted one, if any rows exist.
func (p *SqlitePersister) LoadSnapshot(fs *FS) error {
	rows, err := p.db.Query(`SELECT path, type, mode, content, mtime, ctime FROM inodes ORDER BY length(path)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	replaced := false

	for rows.Next() {
		var path string
		var typ int
		var mode uint32
		var content []byte
		var mtimeNano, ctimeNano int64
		if err := rows.Scan(&path, &typ, &mode, &content, &mtimeNano, &ctimeNano); err != nil {
			return err
		}
		if !replaced {
			fs.root = newDirInode("/", 0o755)
			replaced = true
		}
		if path == "/" {
			continue
		}
		dir, base := splitParent(path)
		parent := fs.lookup(dir)
		if parent == nil {
			continue
		}
		var n *inode
		if NodeType(typ) == TypeDirectory {
			n = newDirInode(base, mode)
		} else {
			raw, derr := p.dec.DecodeAll(content, nil)
			if derr != nil {
				return fmt.Errorf("decompress %s: %w", path, derr)
			}
			n = newFileInode(base, raw, mode)
		}
		parent.addChild(n)
	}
	return rows.Err()
}
