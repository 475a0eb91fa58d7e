//go:build !(sqlite_vec && cgo)

package store

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go driver. No vec0 module is registered, so
// similarity search runs as an in-process cosine scan over JSON embeddings.
const driverName = "sqlite"
