package database

import (
	"context"

	"github.com/pkg/errors"
)

// Migration moves the data of a namespace from the schema version before
// Version to Version.
type Migration struct {
	Version     uint64
	Description string
	Apply       func(handle *Handle) error
}

// ApplyMigrations brings namespace up to the latest schema version in
// migrations, which must be sorted by strictly increasing Version. Each
// pending migration runs in its own write transaction together with the
// schema version bump, so an interrupted run resumes where it stopped. It
// returns the schema version the namespace ends up at.
func ApplyMigrations(ctx context.Context, db *Database, namespace string, migrations []Migration) (uint64, error) {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			return 0, errors.Errorf("migrations of namespace %s are not sorted: "+
				"version %d follows version %d", namespace, migrations[i].Version, migrations[i-1].Version)
		}
	}

	var currentVersion uint64
	err := db.View(func(tx *ReadTx) error {
		handle, err := tx.Handle(namespace)
		if err != nil {
			return err
		}
		currentVersion, err = handle.SchemaVersion()
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}
		log.Infof("Migrating namespace %s to schema version %d: %s",
			namespace, migration.Version, migration.Description)
		err := db.Update(ctx, func(tx *WriteTx) error {
			handle, err := tx.Handle(namespace)
			if err != nil {
				return err
			}
			err = migration.Apply(handle)
			if err != nil {
				return err
			}
			return handle.SetSchemaVersion(migration.Version)
		})
		if err != nil {
			return currentVersion, errors.Wrapf(err, "migration of namespace %s to "+
				"schema version %d failed", namespace, migration.Version)
		}
		currentVersion = migration.Version
	}
	return currentVersion, nil
}
