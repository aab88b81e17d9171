// Package sqlitestore persists indexes as SQLite databases.
//
// Every index becomes one file holding the table
//
//	entries(path TEXT, offset INTEGER, length INTEGER, i_<attr> TEXT, ...)
//
// with one i_ column per schema attribute, a meta table with the resource
// and the schema, and the index version in PRAGMA user_version. Lookups on
// an opened database push equality and membership filters into SQL.
package sqlitestore
