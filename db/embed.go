// Package db provides the embedded schema migrations and the demo catalog.
package db

import "embed"

// Migrations holds the golang-migrate migration files.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Catalog is the demo users, products, coupons and cart entries loaded by
// seed-db and by the memory storage mode.
//
//go:embed seed/catalog.json
var Catalog []byte
