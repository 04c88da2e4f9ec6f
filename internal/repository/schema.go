package repository

import _ "embed"

// Schema is the DDL for the Postgres store
//
//go:embed schema.sql
var Schema string
