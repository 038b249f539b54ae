// Command kinstore inspects and maintains kinstore family tree databases.
package main

import (
	"os"

	"github.com/roach88/kinstore/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
