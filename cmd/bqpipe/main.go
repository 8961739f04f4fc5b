package main

import (
	"os"

	"github.com/joacominatel/bqpipe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
