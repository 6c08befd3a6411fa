// Package migrations содержит SQL схему payment-service, встроенную в бинарник.
package migrations

import "embed"

// FS — файлы миграций в формате golang-migrate ({version}_{name}.{up|down}.sql).
//
//go:embed *.sql
var FS embed.FS
