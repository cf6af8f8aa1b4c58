// Package all links every storage backend into the binary.
//
//	import _ "dataload/internal/storage/all"
package all

import (
	_ "dataload/internal/storage/mssql"
	_ "dataload/internal/storage/mysql"
	_ "dataload/internal/storage/postgres"
	_ "dataload/internal/storage/sqlite"
)
