package database

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Migration is one embedded SQL change to the confession schema.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
	// Tables created by Up, in script order.
	Tables []string
}

// Label is the file stem, e.g. 000001_confessions.
func (m Migration) Label() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var createTableRe = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([a-z_][a-z0-9_]*)"?`)

// Migrations returns the embedded migrations ordered by version.
var Migrations = sync.OnceValues(func() ([]Migration, error) {
	return parseMigrations(migrationFS)
})

func parseMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, path := range names {
		stem := strings.TrimSuffix(strings.TrimPrefix(path, "migrations/"), ".up.sql")
		num, name, ok := strings.Cut(stem, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil || version <= 0 || name == "" {
			return nil, fmt.Errorf("migration %q: want <version>_<name>.up.sql", path)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, stem)
		}
		seen[version] = stem

		up, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		down, err := fs.ReadFile(fsys, "migrations/"+stem+".down.sql")
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", stem, err)
		}

		m := Migration{Version: version, Name: name, Up: string(up), Down: string(down)}
		for _, match := range createTableRe.FindAllStringSubmatch(m.Up, -1) {
			m.Tables = append(m.Tables, strings.ToLower(match[1]))
		}
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

func migrationByVersion(all []Migration, version int) (Migration, bool) {
	i := slices.IndexFunc(all, func(m Migration) bool { return m.Version == version })
	if i < 0 {
		return Migration{}, false
	}
	return all[i], true
}
