// Command lists manages lists and their items in a local SQLite database.
package main

import (
	"os"

	"github.com/mesh-intelligence/lists/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
