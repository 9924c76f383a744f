package model

import "time"

// RelationalRow is the committed form of a record in the relational store.
// Rows are append-only: the core never updates or deletes them.  The primary
// key is assigned by the database on insert.
type RelationalRow struct {
	Timestamp   time.Time
	RandomValue int
	HashValue   string
}
