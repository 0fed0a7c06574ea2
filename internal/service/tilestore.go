package service

import (
	"database/sql"
	"fmt"
)

// TileStore keeps raw tile buffers in DuckDB so the decode API can be
// exercised without an upstream tile server. Buffers are stored as-is;
// decoding happens in the decoder workers.
type TileStore struct {
	db *sql.DB
}

// NewTileStore prepares the tiles table.
func NewTileStore(db *sql.DB) (*TileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("tilestore: no database")
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS tiles (
		z INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (z, x, y)
	)`)
	if err != nil {
		return nil, fmt.Errorf("tilestore: creating tiles table: %w", err)
	}
	return &TileStore{db: db}, nil
}

// Get returns the raw buffer for a tile, or sql.ErrNoRows.
func (s *TileStore) Get(z, x, y int) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM tiles WHERE z = ? AND x = ? AND y = ?", z, x, y,
	).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores or replaces a tile buffer.
func (s *TileStore) Put(z, x, y int, data []byte) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO tiles (z, x, y, data) VALUES (?, ?, ?, ?)",
		z, x, y, data,
	)
	if err != nil {
		return fmt.Errorf("tilestore: storing %d/%d/%d: %w", z, x, y, err)
	}
	DefaultBus.Publish(Event{Resource: ResourceTiles, Action: ActionUpdated,
		ID: fmt.Sprintf("%d/%d/%d", z, x, y)})
	return nil
}

// List enumerates stored tiles.
func (s *TileStore) List() ([]StoredTile, error) {
	rows, err := s.db.Query("SELECT z, x, y, length(data) FROM tiles ORDER BY z, x, y")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiles []StoredTile
	for rows.Next() {
		var t StoredTile
		if err := rows.Scan(&t.Z, &t.X, &t.Y, &t.Size); err != nil {
			continue
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}
