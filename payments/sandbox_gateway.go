package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SandboxGateway answers every call locally. It backs STORE_DRIVER=memory runs without stripe keys.
type SandboxGateway struct {
	log logrus.FieldLogger
}

func NewSandboxGateway(log logrus.FieldLogger) *SandboxGateway {
	return &SandboxGateway{log: log}
}

func (g *SandboxGateway) CreateIntent(_ context.Context, p IntentParams) (*Intent, error) {
	id := "pi_sandbox_" + strings.ReplaceAll(p.PaymentID.String(), "-", "")
	g.log.WithField("intent_id", id).Debug("sandbox intent")
	return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *SandboxGateway) IntentSecret(_ context.Context, intentID string) (string, error) {
	return intentID + "_secret", nil
}

func (g *SandboxGateway) Transfer(_ context.Context, p TransferParams) (string, error) {
	return "tr_sandbox_" + strings.ReplaceAll(p.PayoutID.String(), "-", ""), nil
}

func (g *SandboxGateway) Refund(_ context.Context, p RefundParams) (string, error) {
	id := p.RefundID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return "re_sandbox_" + strings.ReplaceAll(id.String(), "-", ""), nil
}

func (g *SandboxGateway) PayeeReady(_ context.Context, accountID string) (bool, error) {
	return accountID != "", nil
}
