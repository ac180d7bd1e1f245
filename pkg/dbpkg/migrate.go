package dbpkg

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrMigrationDirty is returned when a previous migration stopped halfway and
// the schema needs manual repair.
var ErrMigrationDirty = errors.New("migration left the database dirty")

// Migrate applies every pending migration from sourceURL, e.g.
// "file://configs/db/migration", to the database at databaseURL.
// An up-to-date schema is not an error.
func Migrate(sourceURL, databaseURL string) (err error) {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("migrate.New(%q): %w", sourceURL, err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("%w: version %d", ErrMigrationDirty, dirtyErr.Version)
		}

		return fmt.Errorf("m.Up(): %w", err)
	}

	return nil
}
