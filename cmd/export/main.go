// Command export publishes the glosses of every book that is completely
// glossed in a language and changed since the last run to the language's
// document in the content store. It is intended to be invoked by an external
// scheduler; each invocation performs a single run.
//
// Exit codes: 0 = success, 1 = the run aborted or a language failed.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heartmarshall/gloss-export/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx)
	stop()

	if err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
