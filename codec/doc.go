// Package codec converts between the comma-separated on-disk format and
// core records.
//
// The first row of a file is the header; its first name labels the
// timestamp column. Every following row carries the timestamp first and one
// field per remaining header. Fields are trimmed of surrounding whitespace
// and may be quoted with '"'. Rows whose field count differs from the header
// count, or whose timestamp is not a number, are skipped and reported
// through Stats; they never abort a load.
package codec
