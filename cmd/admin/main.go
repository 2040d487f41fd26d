// Command admin inspects and maintains the user store selected by the same
// configuration the server uses.
//
//	admin [-b file|postgres|redis] [-f users.json] [-d dsn] [-r addr] list
//	admin stats
//	admin get user_3
//	admin delete user_3 [-y]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/zhangleigang/knowledge-api/internal/admin"
	"github.com/zhangleigang/knowledge-api/internal/flagx"
	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/config"
	"github.com/zhangleigang/knowledge-api/internal/server/repositories/repomanager"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	logger, flush, err := logging.New(os.Stderr, cfg.LogBackend, cfg.LogFormat, "warn")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer flush()

	rm, err := repomanager.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user store: %v\n", err)
		return 3
	}
	defer rm.Close()

	args := flagx.Positional(os.Args[1:], config.OwnedFlags())

	err = admin.NewApp(rm.Users(), os.Stdin, os.Stdout).Run(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return admin.ExitCode(err)
}
