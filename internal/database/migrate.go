package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

// Migration is one versioned pair of SQL scripts.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// Scripts live under migrations/<dialect>/NNNNNN_name.{up,down}.sql.
//
//go:embed migrations
var migrationFS embed.FS

var migrations = map[string][]Migration{}

func init() {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		if err := RegisterMigrations(migrationFS, dialect); err != nil {
			panic(err)
		}
	}
}

// RegisterMigrations loads the scripts of one dialect from fsys, replacing
// any registered before.
func RegisterMigrations(fsys fs.FS, dialect string) error {
	ups, err := fs.Glob(fsys, path.Join("migrations", dialect, "*.up.sql"))
	if err != nil {
		return err
	}

	loaded := make([]Migration, 0, len(ups))
	for _, up := range ups {
		m, err := loadMigration(fsys, up)
		if err != nil {
			return fmt.Errorf("%s migrations: %w", dialect, err)
		}
		loaded = append(loaded, m)
	}
	slices.SortFunc(loaded, func(a, b Migration) int { return a.Version - b.Version })

	for i := 1; i < len(loaded); i++ {
		if loaded[i].Version == loaded[i-1].Version {
			return fmt.Errorf("%s migrations: version %d used twice", dialect, loaded[i].Version)
		}
	}
	migrations[dialect] = loaded
	return nil
}

func loadMigration(fsys fs.FS, upPath string) (Migration, error) {
	base := strings.TrimSuffix(path.Base(upPath), ".up.sql")
	num, name, ok := strings.Cut(base, "_")
	version, err := strconv.Atoi(num)
	if !ok || err != nil || version <= 0 || name == "" {
		return Migration{}, fmt.Errorf("bad migration file name %q", path.Base(upPath))
	}

	up, err := fs.ReadFile(fsys, upPath)
	if err != nil {
		return Migration{}, err
	}
	down, err := fs.ReadFile(fsys, path.Join(path.Dir(upPath), base+".down.sql"))
	if err != nil {
		return Migration{}, fmt.Errorf("%s has no down script: %w", base, err)
	}
	return Migration{Version: version, Name: name, UpScript: string(up), DownScript: string(down)}, nil
}

// GetMigrations returns the registered migrations of a dialect in version order.
func GetMigrations(dialect string) []Migration {
	return migrations[dialect]
}

func GetMigrationByVersion(dialect string, version int) *Migration {
	i := slices.IndexFunc(migrations[dialect], func(m Migration) bool { return m.Version == version })
	if i < 0 {
		return nil
	}
	m := migrations[dialect][i]
	return &m
}
