// Package migrations embeds the schema for each storage backend.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// FS holds sqlite/*.sql and postgres/*.sql, applied in file name order.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version string
	SQL     string
}

// For returns the migrations for dialect ("sqlite" or "postgres") in
// version order.
func For(dialect string) ([]Migration, error) {
	entries, err := fs.ReadDir(FS, dialect)
	if err != nil {
		return nil, fmt.Errorf("reading %s migrations: %w", dialect, err)
	}
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(FS, path.Join(dialect, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
