// Package migrations applies the embedded schema for Postgres and ClickHouse.
// Every migration is idempotent and safe to run on each start.
package migrations

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// files returns the non-empty .sql files under dir in lexical order.
func files(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
