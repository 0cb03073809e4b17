package migrations

import "embed"

// FS embeds the goose migration set applied by registry/postgres.New.
//
//go:embed *.sql
var FS embed.FS
