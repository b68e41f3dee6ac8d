//go:build cgo

package discovery

// Importing mattn/go-sqlite3 under the cgo build tag registers the
// cgo-backed "sqlite3" driver alongside modernc.org/sqlite's pure-Go
// "sqlite" driver. OpenIndex always uses "sqlite"; this import exists so
// deployments that build with cgo available can link the faster driver
// without this package choosing between them at compile time.
import (
	_ "github.com/mattn/go-sqlite3"
)
