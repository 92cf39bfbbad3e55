package main

import (
	"os"

	"github.com/rustyeddy/meanrev/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
