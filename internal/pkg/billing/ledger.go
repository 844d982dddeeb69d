package billing

import (
	"context"
	"errors"

	"github.com/ManuelReschke/CertFox/app/repository"
)

// DebitCreditLedger takes amount credits from a pay-as-you-go organization
// for credential issuance and returns the remaining balance.
func (s *Service) DebitCreditLedger(ctx context.Context, organizationID string, amount int64) (*DebitResult, error) {
	if amount <= 0 {
		amount = 1
	}
	remaining, err := s.repos.Organization.DebitCredits(ctx, organizationID, amount, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotPayAsYouGo):
			s.metrics.CreditDebit("not_applicable")
			return nil, newError(KindNotApplicable, err, "organization is not on pay-as-you-go billing")
		case errors.Is(err, repository.ErrInsufficientCredits):
			s.metrics.CreditDebit("insufficient")
			return nil, newError(KindInsufficientCredits, err, "insufficient credits")
		case errors.Is(err, repository.ErrNotFound):
			s.metrics.CreditDebit("not_found")
			return nil, newError(KindNotFound, err, "organization not found")
		}
		s.metrics.CreditDebit("error")
		return nil, newError(KindInternal, err, "could not debit credits")
	}
	s.metrics.CreditDebit("ok")
	return &DebitResult{OrganizationID: organizationID, Debited: amount, Remaining: remaining}, nil
}

// RecordUsage adds created events and participants to the monthly and
// lifetime counters.
func (s *Service) RecordUsage(ctx context.Context, organizationID string, events, participants int64) error {
	if events < 0 || participants < 0 {
		return newError(KindValidation, nil, "usage increments must not be negative")
	}
	if events == 0 && participants == 0 {
		return nil
	}
	err := s.repos.Organization.IncrementUsage(ctx, organizationID, repository.UsageDelta{
		Events:       events,
		Participants: participants,
	}, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, err, "organization not found")
		}
		return newError(KindInternal, err, "could not record usage")
	}
	return nil
}
