// Command fortuned serves and operates the fortune message engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tbourn/go-fortune-backend/internal/cli"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
