// Package database provides configured SQLite connections for Gray Store.
//
// This package manages:
//   - Handle: one mattn/go-sqlite3 connection exposed to dbconfig configs
//   - DB: a database/sql pool whose connector applies a dbconfig.Chain to
//     every connection before use
//   - Registry: the databases open in the process, looked up by path
//
// Commit Reporting:
//
// A commit hook on each connection flags the commit. Once the committing
// statement returns, every committed hook registered by the chain is called
// with the number of frames in the -wal file. Checkpoint runs
// "PRAGMA wal_checkpoint(TRUNCATE)", so the count drops to zero afterwards.
//
// Reconfiguration:
//
// DB.Reconfigure swaps the chain and bumps a generation counter. Pooled
// connections configured with an older generation are reconfigured in
// ResetSession before they are handed out again.
//
// Usage:
//
//	reg := database.NewRegistry()
//	db, err := reg.Open(ctx, database.Config{Path: "data/app.db", BusyTimeout: 5},
//	    dbconfig.Default(traces, scheduler))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.CloseAll()
package database
