// Package latest maintains the most recent processed metrics per source.
//
// Entries live under pg/latest/{sourceId} as JSON. Upsert keeps whichever
// sample carries the newer timestamp, so redelivered or reordered entries
// can never roll a source's state backwards.
package latest
