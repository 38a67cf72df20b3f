// Package database opens the SQLite file that holds the structure
// snapshot and the group status history, and applies the embedded schema
// migrations to it.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Applied versions are tracked in
// schema_migrations. The database file is restricted to mode 0600.
package database
