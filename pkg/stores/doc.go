// Package stores provides the persistence layer of the deployer.
//
// FileRepository keeps one JSON document per environment under
// <data_dir>/<name>/environment.json and replaces it atomically: the new
// content is written to a temp file in the same directory, synced, renamed
// over the old file, and the directory is synced. A crash at any point leaves
// either the old or the new document.
//
// AuditStore is an append-mostly SQLite log of every command, step and
// action attempt, used for post-mortem inspection. Schema changes are applied
// with golang-migrate from embedded migrations.
package stores
