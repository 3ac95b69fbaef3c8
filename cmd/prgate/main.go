package main

import (
	"os"

	"github.com/dshills/prgate/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
