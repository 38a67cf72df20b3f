// Package snapshot persists dSS state in SQLite.
//
// SQLiteStore implements dss.Store on a single-row structure_snapshots
// table, so a restart can skip the structure build. HistoryRepository keeps
// an append-only log of group status changes in group_status_log.
//
// Both expect a database migrated with the migrations package:
//
//	db, _ := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	_ = db.Migrate(ctx, migrations.FS)
//	store := snapshot.NewSQLiteStore(db.DB)
//	apt, err := dss.Open(ctx, client, dss.WithStore(store))
package snapshot
