package service

import (
	"context"
	"fmt"

	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
)

// CreditService exposes the ledger read surface. All debits happen inside
// the admission transaction; grants are projections of external events
// (payment webhooks, referral bonuses) handled elsewhere.
type CreditService struct {
	credits *repository.CreditRepository
}

// NewCreditService creates a new CreditService.
func NewCreditService(credits *repository.CreditRepository) *CreditService {
	return &CreditService{credits: credits}
}

// GetOverview returns the user's balances plus a page of the credit log
// and the total log size for pagination.
func (s *CreditService) GetOverview(ctx context.Context, userID, page, perPage int) (*model.CreditOverview, int, error) {
	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("get balance: %w", err)
	}

	history, err := s.credits.ListHistory(ctx, userID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	if history == nil {
		history = []model.CreditHistory{}
	}

	total, err := s.credits.CountHistory(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	return &model.CreditOverview{
		FreeUnits:   balance.FreeUnits,
		PaidBalance: balance.PaidBalance,
		History:     history,
	}, total, nil
}
