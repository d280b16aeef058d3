// Command isms runs the Simonini-isms web application and its import tools.
package main

import (
	"context"
	"os"

	"github.com/ruff-uno/simonini-isms/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
