package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PayoutTrigger starts settlement once a request is completed.
type PayoutTrigger interface {
	PayoutForRequest(ctx context.Context, req *models.Request) error
}

type party int

const (
	partyNone party = iota
	partyRequester
	partyFulfiller
	partyAdmin
)

func relationOf(req *models.Request, actor models.Identity) party {
	switch actor.Role {
	case models.RoleAdmin:
		return partyAdmin
	case models.RoleRequester:
		if req.RequesterID == actor.UserID {
			return partyRequester
		}
	case models.RoleFulfiller:
		if req.HasFulfiller(actor.UserID) {
			return partyFulfiller
		}
	}
	return partyNone
}

func (p party) mayRequest(target models.RequestStatus) bool {
	switch p {
	case partyAdmin:
		return true
	case partyRequester:
		return target == models.RequestCancelled || target == models.RequestReassigned
	case partyFulfiller:
		switch target {
		case models.RequestAccepted, models.RequestDeclined, models.RequestInProgress, models.RequestCompleted:
			return true
		}
	}
	return false
}

type RequestService struct {
	store    repository.Store
	notifier *Notifier
	audit    Auditor
	payouts  PayoutTrigger
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRequestService(store repository.Store, notifier *Notifier, audit Auditor, payouts PayoutTrigger, log logrus.FieldLogger) *RequestService {
	return &RequestService{
		store:    store,
		notifier: notifier,
		audit:    audit,
		payouts:  payouts,
		log:      log,
		now:      time.Now,
	}
}

type CreateRequestInput struct {
	Purpose      models.Purpose
	FulfillerIDs []uuid.UUID
	Deadline     time.Time
}

func (s *RequestService) Create(ctx context.Context, actor models.Identity, in CreateRequestInput) (*models.Request, error) {
	if actor.Role != models.RoleRequester {
		return nil, errs.New(errs.Forbidden, "only requesters can open a request")
	}
	if !in.Purpose.Valid() {
		return nil, errs.New(errs.ValidationError, "unknown purpose %q", in.Purpose)
	}
	if len(in.FulfillerIDs) == 0 {
		return nil, errs.New(errs.ValidationError, "at least one fulfiller is required")
	}
	now := s.now().UTC()
	if !in.Deadline.After(now) {
		return nil, errs.New(errs.ValidationError, "deadline must be in the future")
	}

	seen := make(map[uuid.UUID]bool, len(in.FulfillerIDs))
	ids := make([]string, 0, len(in.FulfillerIDs))
	for _, id := range in.FulfillerIDs {
		if id == uuid.Nil || id == actor.UserID {
			return nil, errs.New(errs.ValidationError, "invalid fulfiller %s", id)
		}
		if seen[id] {
			return nil, errs.New(errs.ValidationError, "duplicate fulfiller %s", id)
		}
		seen[id] = true
		ids = append(ids, id.String())
	}

	req := &models.Request{
		ID:           uuid.New(),
		RequesterID:  actor.UserID,
		FulfillerIDs: ids,
		Purpose:      in.Purpose,
		Status:       models.RequestPendingAcceptance,
		Deadline:     in.Deadline.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Requests().Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.audit.Record(ctx, "request.created", "request", req.ID.String(), string(req.Purpose))
	return req, nil
}

func (s *RequestService) Get(ctx context.Context, actor models.Identity, id uuid.UUID) (*models.Request, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if relationOf(req, actor) == partyNone {
		return nil, errs.New(errs.Forbidden, "not a party to request %s", id)
	}
	return req, nil
}

func (s *RequestService) find(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	req, err := s.store.Requests().FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.New(errs.NotFound, "request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	return req, nil
}

// Transition moves a request along the lifecycle on behalf of actor.
func (s *RequestService) Transition(ctx context.Context, requestID uuid.UUID, actor models.Identity, target models.RequestStatus, reason string) (*models.Request, error) {
	if !target.Valid() {
		return nil, errs.New(errs.ValidationError, "unknown status %q", target)
	}
	req, err := s.find(ctx, requestID)
	if err != nil {
		return nil, err
	}

	rel := relationOf(req, actor)
	if rel == partyNone {
		return nil, errs.New(errs.Forbidden, "not a party to request %s", requestID)
	}
	if !rel.mayRequest(target) {
		return nil, errs.New(errs.InvalidTransition, "%s may not move a request to %s", actor.Role, target)
	}
	if req.Status.Terminal() {
		return nil, errs.New(errs.InvalidTransition, "request is %s", req.Status)
	}
	if !req.Status.CanMoveTo(target) {
		return nil, errs.New(errs.InvalidTransition, "cannot move from %s to %s", req.Status, target)
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	now := s.now().UTC()
	changed, err := s.store.Requests().UpdateStatus(ctx, req.ID, req.Status, target, reasonPtr, now)
	if err != nil {
		return nil, fmt.Errorf("update request status: %w", err)
	}
	if !changed {
		return nil, errs.New(errs.InvalidTransition, "request %s changed concurrently", requestID)
	}

	from := req.Status
	req.Status = target
	req.StatusReason = reasonPtr
	req.UpdatedAt = now

	s.notifier.Notify(ctx, s.store, s.counterParties(req, rel, from, reason)...)
	s.audit.Record(ctx, "request.transition", "request", req.ID.String(),
		fmt.Sprintf("%s -> %s by %s %s", from, target, actor.Role, actor.UserID))

	if target == models.RequestCompleted && s.payouts != nil {
		if err := s.payouts.PayoutForRequest(ctx, req); err != nil {
			s.log.WithError(err).WithField("request_id", req.ID).Error("payout after completion failed")
			s.audit.Record(ctx, "payout.trigger_failed", "request", req.ID.String(), err.Error())
		}
	}
	return req, nil
}

func (s *RequestService) counterParties(req *models.Request, rel party, from models.RequestStatus, reason string) []Notice {
	payload := map[string]interface{}{
		"request_id":  req.ID.String(),
		"from_status": string(from),
		"status":      string(req.Status),
		"reason":      reason,
		"purpose":     string(req.Purpose),
	}
	var recipients []uuid.UUID
	switch rel {
	case partyRequester:
		recipients = req.Fulfillers()
	case partyFulfiller:
		recipients = []uuid.UUID{req.RequesterID}
	case partyAdmin:
		recipients = append([]uuid.UUID{req.RequesterID}, req.Fulfillers()...)
	}

	notices := make([]Notice, 0, len(recipients))
	for _, id := range recipients {
		reqID := req.ID
		notices = append(notices, Notice{
			Type:        models.NotifyStatusChange,
			RecipientID: id,
			RequestID:   &reqID,
			Payload:     payload,
		})
	}
	return notices
}
