package store

import (
	"context"
	"fmt"
	"strings"
)

// DriftKind categorizes one disagreement between the live table and the
// canonical descriptor.
type DriftKind string

const (
	DriftMissingColumn    DriftKind = "missing_column"
	DriftUnexpectedColumn DriftKind = "unexpected_column"
	DriftTypeMismatch     DriftKind = "type_mismatch"
	DriftNullabilityMismatch DriftKind = "nullability_mismatch"
)

// Drift is one disagreement between the canonical SchemaDescriptor and
// what information_schema.columns reports for the live table.
type Drift struct {
	Kind     DriftKind
	Column   string
	Expected string
	Actual   string
}

func (d Drift) String() string {
	switch d.Kind {
	case DriftMissingColumn:
		return fmt.Sprintf("column %q is missing from the live table", d.Column)
	case DriftUnexpectedColumn:
		return fmt.Sprintf("column %q is present in the live table but not in the canonical schema", d.Column)
	case DriftTypeMismatch:
		return fmt.Sprintf("column %q has type %s, expected %s", d.Column, d.Actual, d.Expected)
	case DriftNullabilityMismatch:
		return fmt.Sprintf("column %q nullability is %s, expected %s", d.Column, d.Actual, d.Expected)
	default:
		return fmt.Sprintf("column %q: unknown drift", d.Column)
	}
}

// DriftError reports every disagreement found in one guard pass. The
// pipeline driver treats a non-empty DriftError as a hard stop before
// FAIL (spec.md §4.7, §7): it never attempts to reconcile automatically.
type DriftError struct {
	Table  string
	Drifts []Drift
}

func (e *DriftError) Error() string {
	lines := make([]string, len(e.Drifts))
	for i, d := range e.Drifts {
		lines[i] = d.String()
	}
	return fmt.Sprintf("schema drift detected on %s: %s", e.Table, strings.Join(lines, "; "))
}

type liveColumn struct {
	name     string
	dataType string
	nullable bool
}

// CheckSchema compares the live daily_availability table, as reported by
// information_schema.columns, against the canonical descriptor. It never
// mutates the schema; it only detects and reports (C7).
func (s *Store) CheckSchema(ctx context.Context, want SchemaDescriptor) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = ?`,
		want.Table,
	)
	if err != nil {
		return fmt.Errorf("querying information_schema.columns: %w", err)
	}
	defer rows.Close()

	live := make(map[string]liveColumn)
	for rows.Next() {
		var name, dataType, isNullable string
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return fmt.Errorf("scanning information_schema.columns: %w", err)
		}
		live[name] = liveColumn{
			name:     name,
			dataType: strings.ToUpper(dataType),
			nullable: strings.EqualFold(isNullable, "YES"),
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading information_schema.columns: %w", err)
	}

	var drifts []Drift
	wantByName := make(map[string]Column, len(want.Columns))
	for _, c := range want.Columns {
		wantByName[c.Name] = c
		lc, ok := live[c.Name]
		if !ok {
			drifts = append(drifts, Drift{Kind: DriftMissingColumn, Column: c.Name, Expected: c.Type})
			continue
		}
		if !strings.EqualFold(lc.dataType, c.Type) {
			drifts = append(drifts, Drift{Kind: DriftTypeMismatch, Column: c.Name, Expected: c.Type, Actual: lc.dataType})
		}
		if lc.nullable != c.Nullable {
			drifts = append(drifts, Drift{
				Kind:     DriftNullabilityMismatch,
				Column:   c.Name,
				Expected: nullableLabel(c.Nullable),
				Actual:   nullableLabel(lc.nullable),
			})
		}
	}
	for name := range live {
		if _, ok := wantByName[name]; !ok {
			drifts = append(drifts, Drift{Kind: DriftUnexpectedColumn, Column: name})
		}
	}

	if len(drifts) > 0 {
		return &DriftError{Table: want.Table, Drifts: drifts}
	}
	return nil
}

func nullableLabel(nullable bool) string {
	if nullable {
		return "nullable"
	}
	return "not null"
}
