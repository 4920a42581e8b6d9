// Package assets embeds files shipped inside the binary.
package assets

import "embed"

// Migrations holds the session_state schema migrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS
