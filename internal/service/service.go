package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payouts.hh/internal/fee"
	"payouts.hh/internal/pixkey"
	"payouts.hh/internal/store"
	"payouts.hh/internal/withdrawal"
)

const (
	defaultLookupTimeout = 500 * time.Millisecond
	maxListLimit         = 100
)

// Repository is the persistence contract. Create returns the id of an
// already stored withdrawal when the idempotency key repeats with the same
// payload. UpdateIf must apply the mutation atomically with respect to the
// expected status and return store.ErrConflict when the status no longer
// matches.
type Repository interface {
	Create(ctx context.Context, w withdrawal.Withdrawal) (string, error)
	Get(ctx context.Context, id string) (withdrawal.Withdrawal, error)
	List(ctx context.Context, f withdrawal.ListFilter) ([]withdrawal.Withdrawal, error)
	UpdateIf(ctx context.Context, id string, expected withdrawal.Status, mutate withdrawal.Mutation) (withdrawal.Withdrawal, error)
}

// Observer receives lifecycle counts.
type Observer interface {
	WithdrawalCreated()
	Transition(event, outcome string)
	EnrichmentFailed()
}

type nopObserver struct{}

func (nopObserver) WithdrawalCreated()        {}
func (nopObserver) Transition(string, string) {}
func (nopObserver) EnrichmentFailed()         {}

type Deps struct {
	Repo       Repository
	Calculator *fee.Calculator
	PixKeys    pixkey.Directory
	Observer   Observer
	Logger     *zap.Logger
	// Now defaults to time.Now.
	Now           func() time.Time
	LookupTimeout time.Duration
}

type Service struct {
	repo          Repository
	calc          *fee.Calculator
	pixKeys       pixkey.Directory
	observer      Observer
	logger        *zap.Logger
	now           func() time.Time
	lookupTimeout time.Duration
}

func New(deps Deps) *Service {
	s := &Service{
		repo:          deps.Repo,
		calc:          deps.Calculator,
		pixKeys:       deps.PixKeys,
		observer:      deps.Observer,
		logger:        deps.Logger,
		now:           deps.Now,
		lookupTimeout: deps.LookupTimeout,
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.lookupTimeout <= 0 {
		s.lookupTimeout = defaultLookupTimeout
	}
	return s
}

type CreateInput struct {
	UserID          string
	RequestedAmount int64
	IsPix           bool
	PixKeyID        string
	Description     string
	IdempotencyKey  string
}

// Detail is a withdrawal with presentation-only enrichment.
type Detail struct {
	withdrawal.Withdrawal
	PixKey *pixkey.Summary
}

func (s *Service) CreateWithdrawal(ctx context.Context, in CreateInput) (withdrawal.Withdrawal, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return withdrawal.Withdrawal{}, withdrawal.ErrMissingUser
	}
	if in.RequestedAmount <= 0 {
		return withdrawal.Withdrawal{}, withdrawal.ErrInvalidAmount
	}
	pixKeyID := strings.TrimSpace(in.PixKeyID)
	if in.IsPix && pixKeyID == "" {
		return withdrawal.Withdrawal{}, withdrawal.ErrMissingPixKey
	}

	feeAmount, net, err := s.calc.Compute(in.RequestedAmount)
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	now := withdrawal.Timestamp(s.now())
	w := withdrawal.Withdrawal{
		ID:              uuid.NewString(),
		UserID:          userID,
		RequestedAmount: in.RequestedAmount,
		FeeAmount:       feeAmount,
		Amount:          net,
		Status:          withdrawal.StatusPending,
		IsPix:           in.IsPix,
		PixKeyID:        optional(pixKeyID),
		Description:     optional(strings.TrimSpace(in.Description)),
		IdempotencyKey:  optional(strings.TrimSpace(in.IdempotencyKey)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	id, err := s.repo.Create(ctx, w)
	if err != nil {
		if errors.Is(err, withdrawal.ErrPersistence) {
			s.logger.Error("withdrawal_create_failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			s.logger.Info("withdrawal_create_rejected", zap.String("user_id", userID), zap.Error(err))
		}
		return withdrawal.Withdrawal{}, err
	}
	if id != w.ID {
		stored, err := s.repo.Get(ctx, id)
		if err != nil {
			return withdrawal.Withdrawal{}, err
		}
		s.logger.Info("withdrawal_create_replayed",
			zap.String("withdrawal_id", stored.ID),
			zap.String("user_id", stored.UserID),
		)
		return stored, nil
	}

	s.observer.WithdrawalCreated()
	s.logger.Info("withdrawal_created",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", w.UserID),
		zap.Int64("requested_amount", w.RequestedAmount),
		zap.Int64("fee_amount", w.FeeAmount),
		zap.Bool("is_pix", w.IsPix),
	)
	return w, nil
}

func (s *Service) ApproveWithdrawal(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	return s.transition(ctx, id, withdrawal.Approve())
}

func (s *Service) CancelWithdrawal(ctx context.Context, id, reason string) (withdrawal.Withdrawal, error) {
	if strings.TrimSpace(reason) == "" {
		s.observer.Transition(string(withdrawal.EventCancel), outcome(withdrawal.ErrMissingReason))
		return withdrawal.Withdrawal{}, withdrawal.ErrMissingReason
	}
	return s.transition(ctx, id, withdrawal.Cancel(reason))
}

func (s *Service) MarkPaidManually(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	return s.transition(ctx, id, withdrawal.MarkPaidManually())
}

// ConfirmPayout records settlement of an automatic payout by the payment rail.
func (s *Service) ConfirmPayout(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	return s.transition(ctx, id, withdrawal.ConfirmPayout())
}

func (s *Service) transition(ctx context.Context, id string, ev withdrawal.Event) (withdrawal.Withdrawal, error) {
	updated, err := s.applyTransition(ctx, id, ev)
	s.observer.Transition(string(ev.Kind), outcome(err))
	if err != nil {
		fields := []zap.Field{
			zap.String("withdrawal_id", id),
			zap.String("event", string(ev.Kind)),
			zap.Error(err),
		}
		if errors.Is(err, withdrawal.ErrPersistence) {
			s.logger.Error("withdrawal_transition_failed", fields...)
		} else {
			s.logger.Info("withdrawal_transition_rejected", fields...)
		}
		return withdrawal.Withdrawal{}, err
	}

	s.logger.Info("withdrawal_transitioned",
		zap.String("withdrawal_id", updated.ID),
		zap.String("event", string(ev.Kind)),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *Service) applyTransition(ctx context.Context, id string, ev withdrawal.Event) (withdrawal.Withdrawal, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}
	if _, err := withdrawal.Transition(current.Status, ev); err != nil {
		return withdrawal.Withdrawal{}, err
	}

	updated, err := s.repo.UpdateIf(ctx, id, current.Status, withdrawal.Mutate(ev, s.now))
	if errors.Is(err, store.ErrConflict) {
		return withdrawal.Withdrawal{}, &withdrawal.TransitionError{From: current.Status, Event: ev.Kind, Race: true}
	}
	return updated, err
}

// GetWithdrawal loads a withdrawal and, for pix withdrawals, attaches the
// destination summary. A failed lookup only drops the enrichment.
func (s *Service) GetWithdrawal(ctx context.Context, id string) (Detail, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{Withdrawal: w}
	if !w.IsPix || w.PixKeyID == nil || s.pixKeys == nil {
		return d, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	summary, err := s.pixKeys.Lookup(lookupCtx, *w.PixKeyID)
	if err != nil {
		s.observer.EnrichmentFailed()
		s.logger.Warn("pixkey_lookup_failed",
			zap.String("withdrawal_id", w.ID),
			zap.String("pixkey_id", *w.PixKeyID),
			zap.Error(err),
		)
		return d, nil
	}
	d.PixKey = &summary
	return d, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, f withdrawal.ListFilter) ([]withdrawal.Withdrawal, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, withdrawal.ErrInvalidPagination
	}
	if f.Limit == 0 {
		f.Limit = withdrawal.DefaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	f.Status = strings.TrimSpace(f.Status)
	f.UserID = strings.TrimSpace(f.UserID)
	return s.repo.List(ctx, f)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, withdrawal.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, withdrawal.ErrMissingReason):
		return "missing_reason"
	case errors.Is(err, withdrawal.ErrNotFound):
		return "not_found"
	case errors.Is(err, withdrawal.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}
