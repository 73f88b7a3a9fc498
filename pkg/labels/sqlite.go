package labels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/menta2k/boxlabel/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
    dataset_id  TEXT    NOT NULL,
    image_path  TEXT    NOT NULL,
    width       INTEGER NOT NULL DEFAULT 0,
    height      INTEGER NOT NULL DEFAULT 0,
    updated_at  TEXT    NOT NULL,
    PRIMARY KEY (dataset_id, image_path)
);

CREATE TABLE IF NOT EXISTS boxes (
    dataset_id  TEXT    NOT NULL,
    image_path  TEXT    NOT NULL,
    position    INTEGER NOT NULL,
    class_id    INTEGER NOT NULL,
    x_center    REAL    NOT NULL,
    y_center    REAL    NOT NULL,
    width       REAL    NOT NULL,
    height      REAL    NOT NULL,
    PRIMARY KEY (dataset_id, image_path, position),
    FOREIGN KEY (dataset_id, image_path) REFERENCES images (dataset_id, image_path) ON DELETE CASCADE
);
`

// OpenSQLite opens (creating if needed) the database at dbPath
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000&_pragma=foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteStore keeps images and their boxes in two tables; box order is the
// insertion order of the editor.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore applies the schema and returns a store over db
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// RegisterImage records an image and its pixel size without touching its boxes
func (s *SQLiteStore) RegisterImage(ctx context.Context, datasetID, imagePath string, width, height int) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO images (dataset_id, image_path, width, height, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (dataset_id, image_path) DO UPDATE SET width = excluded.width, height = excluded.height
    `, datasetID, imagePath, width, height, now())
	if err != nil {
		return fmt.Errorf("register image: %w", err)
	}
	return nil
}

// GetLabels returns the image's boxes in their stored order
func (s *SQLiteStore) GetLabels(ctx context.Context, datasetID, imagePath string) (*types.LabelSet, error) {
	set := &types.LabelSet{Boxes: []types.Box{}}

	row := s.db.QueryRowContext(ctx, `
        SELECT width, height FROM images WHERE dataset_id = ? AND image_path = ?
    `, datasetID, imagePath)
	if err := row.Scan(&set.ImageWidth, &set.ImageHeight); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", datasetID, imagePath, ErrNotFound)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT class_id, x_center, y_center, width, height
        FROM boxes
        WHERE dataset_id = ? AND image_path = ?
        ORDER BY position
    `, datasetID, imagePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var b types.Box
		if err := rows.Scan(&b.ClassID, &b.XCenter, &b.YCenter, &b.Width, &b.Height); err != nil {
			return nil, err
		}
		set.Boxes = append(set.Boxes, b)
	}
	return set, rows.Err()
}

// SaveLabels replaces the image's boxes in one transaction, registering the
// image if it is new
func (s *SQLiteStore) SaveLabels(ctx context.Context, datasetID, imagePath string, boxes []types.Box) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO images (dataset_id, image_path, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT (dataset_id, image_path) DO UPDATE SET updated_at = excluded.updated_at
    `, datasetID, imagePath, now()); err != nil {
		return fmt.Errorf("upsert image: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
        DELETE FROM boxes WHERE dataset_id = ? AND image_path = ?
    `, datasetID, imagePath); err != nil {
		return fmt.Errorf("clear boxes: %w", err)
	}

	for i, b := range boxes {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO boxes (dataset_id, image_path, position, class_id, x_center, y_center, width, height)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        `, datasetID, imagePath, i, b.ClassID, b.XCenter, b.YCenter, b.Width, b.Height); err != nil {
			return fmt.Errorf("insert box %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListImages returns the dataset's registered image paths, sorted
func (s *SQLiteStore) ListImages(ctx context.Context, datasetID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT image_path FROM images WHERE dataset_id = ? ORDER BY image_path
    `, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
