// Package store implements C6 (the columnar store) and C7 (the
// schema-drift guard), backed by DuckDB via database/sql (spec.md §4.6,
// §4.7). Grounded on internal/infrastructure/db/connection.go's Manager
// shape, generalized from Postgres/sqlx to a single-file embedded store.
package store

import (
	"encoding/json"
	"fmt"
	"os"
)

// Column describes one canonical column of the daily_availability table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// SchemaDescriptor is the canonical, persisted column list C7 compares
// the live database against (spec.md §4.7, §6).
type SchemaDescriptor struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// CanonicalSchema is the 17-column daily_availability schema from spec.md §3.
func CanonicalSchema() SchemaDescriptor {
	return SchemaDescriptor{
		Table: "daily_availability",
		Columns: []Column{
			{Name: "date", Type: "DATE", Nullable: false},
			{Name: "symbol", Type: "VARCHAR", Nullable: false},
			{Name: "available", Type: "BOOLEAN", Nullable: false},
			{Name: "file_size_bytes", Type: "UBIGINT", Nullable: true},
			{Name: "last_modified", Type: "VARCHAR", Nullable: true},
			{Name: "url", Type: "VARCHAR", Nullable: false},
			{Name: "status_code", Type: "INTEGER", Nullable: false},
			{Name: "probe_timestamp", Type: "TIMESTAMP", Nullable: false},
			{Name: "quote_volume_usdt", Type: "DOUBLE", Nullable: true},
			{Name: "trade_count", Type: "BIGINT", Nullable: true},
			{Name: "volume_base", Type: "DOUBLE", Nullable: true},
			{Name: "taker_buy_volume_base", Type: "DOUBLE", Nullable: true},
			{Name: "taker_buy_quote_volume_usdt", Type: "DOUBLE", Nullable: true},
			{Name: "open_price", Type: "DOUBLE", Nullable: true},
			{Name: "high_price", Type: "DOUBLE", Nullable: true},
			{Name: "low_price", Type: "DOUBLE", Nullable: true},
			{Name: "close_price", Type: "DOUBLE", Nullable: true},
		},
	}
}

// LoadSchemaDescriptor reads a descriptor from disk, writing the canonical
// one if absent so a fresh checkout has something for C7 to compare against.
func LoadSchemaDescriptor(path string) (SchemaDescriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			d := CanonicalSchema()
			if werr := WriteSchemaDescriptor(path, d); werr != nil {
				return d, werr
			}
			return d, nil
		}
		return SchemaDescriptor{}, fmt.Errorf("reading schema descriptor: %w", err)
	}
	var d SchemaDescriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return SchemaDescriptor{}, fmt.Errorf("parsing schema descriptor: %w", err)
	}
	return d, nil
}

// WriteSchemaDescriptor persists a descriptor as indented JSON.
func WriteSchemaDescriptor(path string, d SchemaDescriptor) error {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema descriptor: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("writing schema descriptor: %w", err)
	}
	return nil
}
