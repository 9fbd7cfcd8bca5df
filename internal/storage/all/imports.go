// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories and DDL bootstrappers with the
// storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "sqlite"   (docfill/internal/storage/sqlite)
//   - "mysql"    (docfill/internal/storage/mysql)
//   - "postgres" (docfill/internal/storage/postgres)
//   - "mssql"    (docfill/internal/storage/mssql)
//
// Typical usage (in cmd/docfill or a similar wiring layer):
//
//	import _ "docfill/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: job.Storage.Kind, DSN: job.Storage.DB.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
package all

import (
	_ "docfill/internal/storage/mssql"
	_ "docfill/internal/storage/mysql"
	_ "docfill/internal/storage/postgres"
	_ "docfill/internal/storage/sqlite"
)
