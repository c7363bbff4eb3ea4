// Package archive catalogues cascade state snapshots and forecast runs in
// a sqlite database.
//
// Snapshots carry the full state file, gzip compressed, so any of them can
// hot-start an engine. The schema is managed by embedded golang-migrate
// migrations and is brought up to date by Open.
package archive
