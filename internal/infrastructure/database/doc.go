// Package database provides the SQLite handle behind the bridge's device and
// entity registries.
//
// Open enables foreign keys, optionally WAL mode, and restricts the file to
// owner read/write. Schema changes are forward-only numbered SQL files passed
// to Migrate as an fs.FS, normally the embedded migrations package.
//
// Usage:
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
package database
