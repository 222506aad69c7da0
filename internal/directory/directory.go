// Package directory holds the read-only persona dataset: every table and its
// ordered participants.
package directory

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"roundtable/internal/models"
)

//go:embed tables.yaml
var builtinTables []byte

var ErrTableNotFound = errors.New("table not found")

// Directory is safe for concurrent readers; nothing mutates it after Load.
type Directory struct {
	tables []models.Table
	byID   map[string]int
}

// Default returns the embedded dataset.
func Default() (*Directory, error) {
	return Load(builtinTables)
}

// MustDefault panics when the embedded dataset is broken.
func MustDefault() *Directory {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}

// Load decodes a YAML list of tables.
func Load(data []byte) (*Directory, error) {
	var tables []models.Table
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, errors.Wrap(err, "decode tables")
	}
	return New(tables)
}

// New validates tables and indexes them by lower-cased id.
func New(tables []models.Table) (*Directory, error) {
	d := &Directory{
		tables: make([]models.Table, 0, len(tables)),
		byID:   make(map[string]int, len(tables)),
	}
	for _, t := range tables {
		id := strings.ToLower(strings.TrimSpace(t.ID))
		if id == "" {
			return nil, errors.Errorf("table %q has no id", t.Title)
		}
		if _, dup := d.byID[id]; dup {
			return nil, errors.Errorf("duplicate table id %q", t.ID)
		}
		seen := make(map[string]struct{}, len(t.Participants))
		for _, p := range t.Participants {
			if _, dup := seen[p.Handle]; dup {
				return nil, errors.Errorf("table %s: duplicate handle %q", t.ID, p.Handle)
			}
			seen[p.Handle] = struct{}{}
		}
		d.byID[id] = len(d.tables)
		d.tables = append(d.tables, t)
	}
	sort.SliceStable(d.tables, func(i, j int) bool { return d.tables[i].Number < d.tables[j].Number })
	for i, t := range d.tables {
		d.byID[strings.ToLower(strings.TrimSpace(t.ID))] = i
	}
	return d, nil
}

// Tables lists every table ordered by number.
func (d *Directory) Tables() []models.Table {
	out := make([]models.Table, len(d.tables))
	copy(out, d.tables)
	return out
}

// Resolve finds a table by id (case-insensitive) or, failing that, by number.
func (d *Directory) Resolve(slug string) (models.Table, error) {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	if normalized == "" {
		return models.Table{}, ErrTableNotFound
	}
	if idx, ok := d.byID[normalized]; ok {
		return d.tables[idx], nil
	}
	if n, err := strconv.Atoi(normalized); err == nil {
		for _, t := range d.tables {
			if t.Number == n {
				return t, nil
			}
		}
	}
	return models.Table{}, errors.Wrapf(ErrTableNotFound, "%s", slug)
}

// FormatNumber renders a table number zero-padded to two digits.
func FormatNumber(n int) string {
	if n < 0 {
		return "—"
	}
	return fmt.Sprintf("%02d", n)
}

// SeatLabel renders "1 seat" / "N seats".
func SeatLabel(t models.Table) string {
	seats := t.SeatCount()
	if seats == 1 {
		return "1 seat"
	}
	return fmt.Sprintf("%d seats", seats)
}
