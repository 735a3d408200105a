// Package registry persists the devices and entities the bridge exposes.
//
// It plays the part a home-automation host's device and entity registries
// would: every Refoss device gets one Device row keyed by its config entry
// and MAC, and every entity created for it gets a stable entity id of the
// form "<domain>.<slug>" that survives restarts.
//
// # Architecture
//
// Registry wraps a Repository (SQLite in production) with an in-memory
// cache. The cache is loaded with RefreshCache on startup and kept in sync
// by the write methods, so lookups on the hot path never touch the
// database.
//
// # Usage
//
//	repo := registry.NewSQLiteRepository(db.DB)
//	reg := registry.NewRegistry(repo)
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	ent, err := reg.RegisterEntity(ctx, registry.Entity{
//	    UniqueID: "c4:e7:ae:00:00:01-switch:0-power",
//	    Domain:   "sensor",
//	    Platform: refoss.Domain,
//	    DeviceID: dev.ID,
//	    Name:     "Kitchen plug power",
//	})
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package registry
