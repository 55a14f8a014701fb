package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/proktora/proktora-backend/internal/config"
	"github.com/proktora/proktora-backend/internal/database"
	"github.com/proktora/proktora-backend/internal/logger"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
)

// Operational tool: project an external credit event (purchase settled,
// bonus approved, support refund) into the ledger. The payment gateway
// itself never touches this database.
func main() {
	userID := flag.Int("user", 0, "user ID to credit")
	amount := flag.Int("amount", 1, "number of units to grant")
	paid := flag.Bool("paid", false, "grant to paid_balance instead of free_units")
	reason := flag.String("reason", string(model.CreditReasonAdminAdjust),
		"history reason: SIGNUP_BONUS, REFERRAL_BONUS, PURCHASE, REFUND, ADMIN_ADJUSTMENT")
	flag.Parse()

	if *userID <= 0 || *amount <= 0 {
		fmt.Println("Usage: grant-credits -user <id> -amount <n> [-paid] [-reason PURCHASE]")
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	creditRepo := repository.NewCreditRepository(pool)

	if err := creditRepo.Grant(ctx, *userID, *amount, *paid, model.CreditReason(*reason)); err != nil {
		log.Fatal().Err(err).Int("user_id", *userID).Msg("Grant failed")
	}

	balance, err := creditRepo.GetBalance(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read balance back")
	}

	fmt.Printf("Granted %d unit(s) to user %d (%s)\n", *amount, *userID, *reason)
	fmt.Printf("Balance now: free=%d paid=%d\n", balance.FreeUnits, balance.PaidBalance)
}
