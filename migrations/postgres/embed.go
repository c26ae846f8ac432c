// Package migrations embeds SQL migration files.
package migrations

import "embed"

// GlobalFS contains the migrations of the global (customers) database.
//
//go:embed global/*.sql
var GlobalFS embed.FS

// GlobalDir is the directory within GlobalFS where migrations live.
const GlobalDir = "global"
