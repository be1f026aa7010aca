package main

import (
	"os"

	"echogate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
