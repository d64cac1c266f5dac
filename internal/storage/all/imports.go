// Package all registers every storage backend via blank imports. Binaries
// that should support all formats import this package for side effects.
package all

import (
	_ "declpipe/internal/storage/csvfile"
	_ "declpipe/internal/storage/postgres"
	_ "declpipe/internal/storage/sqlite"
)
