// Command ledger-audit reports accounts whose cached balance is negative or
// disagrees with the sum of their ledger entries. It exits 1 on findings.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/config"
	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       "warn",
		Environment: cfg.Env,
		Service:     "ledger-audit",
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	imbalances, err := ledger.NewRepository(db).ListImbalances(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to audit ledger")
	}

	if report(os.Stdout, imbalances) > 0 {
		database.ClosePostgres(db)
		os.Exit(1)
	}
}

// report prints the findings and returns how many there were.
func report(w io.Writer, imbalances []ledger.Imbalance) int {
	if len(imbalances) == 0 {
		fmt.Fprintln(w, "ledger balanced: every account matches its entries")
		return 0
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER_ID\tBALANCE\tLEDGER_SUM\tDRIFT\tPROBLEM")
	for _, im := range imbalances {
		problem := "drift"
		if im.Balance < 0 {
			problem = "negative"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", im.UserID, im.Balance, im.LedgerSum, im.Balance-im.LedgerSum, problem)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d account(s) out of balance\n", len(imbalances))
	return len(imbalances)
}
