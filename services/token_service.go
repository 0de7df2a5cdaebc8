package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/anjiri1684/letter_broker/utils"
	"github.com/sirupsen/logrus"
)

const (
	MaxTokensPerIssue = 500
	codeAttempts      = 5
)

// TokenService issues single-use credit tokens. Redemption lives in PaymentService.
type TokenService struct {
	store    repository.Store
	audit    Auditor
	log      logrus.FieldLogger
	now      func() time.Time
	generate func() (string, error)
}

func NewTokenService(store repository.Store, audit Auditor, log logrus.FieldLogger) *TokenService {
	return &TokenService{store: store, audit: audit, log: log, now: time.Now, generate: utils.GenerateTokenCode}
}

type IssueTokensInput struct {
	Count      int
	Value      int
	ExpiryDate time.Time
}

func (s *TokenService) Issue(ctx context.Context, in IssueTokensInput) ([]models.Token, error) {
	if in.Count < 1 || in.Count > MaxTokensPerIssue {
		return nil, errs.New(errs.ValidationError, "count must be between 1 and %d", MaxTokensPerIssue)
	}
	if in.Value < 1 {
		return nil, errs.New(errs.ValidationError, "value must be at least 1")
	}
	now := s.now().UTC()
	if models.StartOfDay(in.ExpiryDate).Before(models.StartOfDay(now)) {
		return nil, errs.New(errs.ValidationError, "expiry date is in the past")
	}

	out := make([]models.Token, 0, in.Count)
	for len(out) < in.Count {
		tok, err := s.issueOne(ctx, in.Value, models.StartOfDay(in.ExpiryDate), now)
		if err != nil {
			return out, err
		}
		out = append(out, *tok)
	}
	s.audit.Record(ctx, "token.issued", "token", fmt.Sprintf("%d", len(out)),
		fmt.Sprintf("value %d expiring %s", in.Value, in.ExpiryDate.Format("2006-01-02")))
	return out, nil
}

func (s *TokenService) issueOne(ctx context.Context, value int, expiry, now time.Time) (*models.Token, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate token code: %w", err)
		}
		tok := &models.Token{Code: code, Value: value, ExpiryDate: expiry, CreatedAt: now}
		err = s.store.Tokens().Create(ctx, tok)
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.WithField("attempt", attempt+1).Debug("token code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store token: %w", err)
		}
		return tok, nil
	}
	return nil, fmt.Errorf("could not find a free token code after %d attempts", codeAttempts)
}
