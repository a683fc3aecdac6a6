// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables. Every
// statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the demo catalog loaded by the seed command.
//
//go:embed seed/catalog.json
var Catalog []byte
