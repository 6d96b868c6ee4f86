package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"
	"accountmart-api/pkg/uid"

	"github.com/shopspring/decimal"
)

// RateSource supplies the conversion rate frozen into new payment requests.
type RateSource interface {
	Rate(ctx context.Context) decimal.Decimal
}

// PaymentService runs the operator-approved top-up workflow.
type PaymentService struct {
	store    repository.Store
	rates    RateSource
	notifier notify.Notifier
	now      Clock
}

// NewPaymentService creates a payment service.
func NewPaymentService(store repository.Store, rates RateSource, notifier notify.Notifier, now Clock) *PaymentService {
	return &PaymentService{store: store, rates: rates, notifier: notifier, now: clockOrDefault(now)}
}

// Submit records a pending top-up. The converted amount is computed once,
// here, and never recomputed.
func (s *PaymentService) Submit(ctx context.Context, buyerID string, amount decimal.Decimal, address string) (*model.PaymentRequest, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, apperr.InvalidInput("amount must be positive")
	}
	if !model.WithinMaxAmount(amount) {
		return nil, apperr.InvalidInput("amount exceeds %s", model.MaxAmount)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, apperr.InvalidInput("payment address is required")
	}

	buyer, err := s.store.GetUserByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	rate := s.rates.Rate(ctx)
	target := amount.Mul(rate).Round(2)
	if !target.IsPositive() {
		return nil, apperr.InvalidInput("amount too small to convert")
	}
	if !model.WithinMaxAmount(target) {
		return nil, apperr.InvalidInput("converted amount exceeds %s", model.MaxAmount)
	}

	now := s.now()
	req := &model.PaymentRequest{
		ID:           uid.New(),
		BuyerID:      buyer.ID,
		BuyerEmail:   buyer.Email,
		AmountSource: amount,
		Rate:         rate,
		AmountTarget: target,
		Address:      address,
		Status:       model.PaymentPending,
		CreatedAt:    now,
	}
	if err := s.store.CreatePaymentRequest(ctx, req); err != nil {
		return nil, err
	}

	log.Printf("[PaymentService] Request %s: %s x %s = %s", req.ID, amount.StringFixed(2), rate, target.StringFixed(2))
	recordActivity(ctx, s.store, now, buyer.ID, model.ActionPaymentSubmit,
		fmt.Sprintf("request=%s amount=%s", req.ID, amount.StringFixed(2)))
	sendNotification(ctx, s.notifier, now, notify.KindPaymentRequest,
		fmt.Sprintf("New payment request from %s: %s -> %s (rate %s), address %s",
			buyer.Email, amount.StringFixed(2), target.StringFixed(2), rate, address))

	return req, nil
}

// Approve credits the frozen amount to the buyer. A request is credited at most once.
func (s *PaymentService) Approve(ctx context.Context, operatorID, requestID string) (*model.PaymentRequest, error) {
	now := s.now()
	err := s.store.RunAtomic(ctx, func(ctx context.Context) error {
		req, err := s.store.GetPaymentRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := s.store.TransitionPaymentRequest(ctx, requestID, model.PaymentApproved, now, operatorID); err != nil {
			return err
		}
		if _, err := s.store.CreditBalance(ctx, req.BuyerID, req.AmountTarget); err != nil {
			if !s.store.Transactional() {
				if rvErr := s.store.RevertPaymentRequest(context.WithoutCancel(ctx), requestID, model.PaymentApproved); rvErr != nil {
					log.Printf("[PaymentService] CRITICAL: request %s approved without credit: %v", requestID, rvErr)
				}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req, err := s.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	log.Printf("[PaymentService] Request %s approved by %s", req.ID, operatorID)
	recordActivity(ctx, s.store, now, operatorID, model.ActionPaymentApprove,
		fmt.Sprintf("request=%s buyer=%s amount=%s", req.ID, req.BuyerID, req.AmountTarget.StringFixed(2)))
	sendNotification(ctx, s.notifier, now, notify.KindPaymentApproved,
		fmt.Sprintf("Payment approved for %s: +%s", req.BuyerEmail, req.AmountTarget.StringFixed(2)))

	return req, nil
}

// Reject closes a pending request without touching any balance.
func (s *PaymentService) Reject(ctx context.Context, operatorID, requestID string) (*model.PaymentRequest, error) {
	now := s.now()
	if err := s.store.TransitionPaymentRequest(ctx, requestID, model.PaymentRejected, now, operatorID); err != nil {
		return nil, err
	}

	req, err := s.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.store, now, operatorID, model.ActionPaymentReject,
		fmt.Sprintf("request=%s buyer=%s", req.ID, req.BuyerID))
	sendNotification(ctx, s.notifier, now, notify.KindPaymentRejected,
		fmt.Sprintf("Payment rejected for %s: %s", req.BuyerEmail, req.AmountSource.StringFixed(2)))

	return req, nil
}

// ListMine returns the buyer's requests, newest first.
func (s *PaymentService) ListMine(ctx context.Context, buyerID string) ([]model.PaymentRequest, error) {
	return s.store.ListPaymentRequests(ctx, buyerID, "")
}

// List returns all requests, optionally filtered by status, newest first.
func (s *PaymentService) List(ctx context.Context, status model.PaymentStatus) ([]model.PaymentRequest, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.InvalidInput("unknown status %q", status)
	}
	return s.store.ListPaymentRequests(ctx, "", status)
}

// PayoutAddress returns the address buyers pay into. Empty when unset.
func (s *PaymentService) PayoutAddress(ctx context.Context) (string, error) {
	return s.store.GetSetting(ctx, model.SettingPayoutAddress)
}

// SetPayoutAddress changes the address buyers pay into.
func (s *PaymentService) SetPayoutAddress(ctx context.Context, operatorID, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return apperr.InvalidInput("payout address is required")
	}
	if err := s.store.PutSetting(ctx, model.SettingPayoutAddress, address); err != nil {
		return err
	}
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionSettingsUpdate, model.SettingPayoutAddress)
	return nil
}
