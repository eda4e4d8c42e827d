// Package hello holds the assets compiled into the hello binary: the
// migration ledger for every supported database engine and the static files
// collected for the reverse proxy.
package hello

import "embed"

// Migrations contains the goose migrations, one directory per engine
// (migrations/postgres, migrations/sqlite).
//
//go:embed migrations
var Migrations embed.FS

// Static contains the files copied into STATIC_ROOT by collectstatic and
// served by the development server.
//
//go:embed static
var Static embed.FS
