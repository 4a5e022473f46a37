package estimate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/events"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/obs"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/pricing"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// Send finalises the totals and transmits the estimate, engaging the rate
// lock and stamping the expiry window.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (Detail, error) {
	var sent store.Estimate
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.loadForTransition(ctx, q, id, pricing.StatusSent)
		if err != nil {
			return err
		}
		// Final recompute so the transmitted totals match the stored inputs.
		if _, err := s.recompute(ctx, q, est, "send"); err != nil {
			return err
		}
		now := s.now()
		var expiresAt *time.Time
		if est.ExpiresAt == nil && s.ValidityDays > 0 {
			exp := now.AddDate(0, 0, s.ValidityDays)
			expiresAt = &exp
		}
		updated, err := q.UpdateEstimateStatus(ctx, id, string(pricing.StatusSent), &now, expiresAt)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		obs.IncEstimateTransition(est.Status, updated.Status)
		sent = updated
		detail, err = s.assemble(ctx, q, updated)
		return err
	})
	if err != nil {
		return Detail{}, err
	}
	s.emit(ctx, events.TopicEstimateSent, sent)
	return detail, nil
}

// Accept marks a sent estimate as accepted by the customer.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (Detail, error) {
	return s.transition(ctx, id, pricing.StatusAccepted, events.TopicEstimateAccepted)
}

// Cancel withdraws a draft or sent estimate.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (Detail, error) {
	return s.transition(ctx, id, pricing.StatusCancelled, events.TopicEstimateCancelled)
}

// Expire marks a sent estimate as expired.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (Detail, error) {
	return s.transition(ctx, id, pricing.StatusExpired, events.TopicEstimateExpired)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to pricing.Status, topic string) (Detail, error) {
	var moved store.Estimate
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		est, err := s.loadForTransition(ctx, q, id, to)
		if err != nil {
			return err
		}
		updated, err := q.UpdateEstimateStatus(ctx, id, string(to), nil, nil)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		obs.IncEstimateTransition(est.Status, updated.Status)
		moved = updated
		detail, err = s.assemble(ctx, q, updated)
		return err
	})
	if err != nil {
		return Detail{}, err
	}
	s.emit(ctx, topic, moved)
	return detail, nil
}

func (s *Service) loadForTransition(ctx context.Context, q Querier, id uuid.UUID, to pricing.Status) (store.Estimate, error) {
	est, err := q.GetEstimateForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Estimate{}, notFound("estimate not found", err)
		}
		return store.Estimate{}, fmt.Errorf("get estimate: %w", err)
	}
	from := pricing.Status(est.Status)
	if !pricing.CanTransition(from, to) {
		return store.Estimate{}, &common.AppError{
			Code:       "INVALID_TRANSITION",
			Message:    fmt.Sprintf("estimate %s cannot move from %s to %s", est.Number, from, to),
			HTTPStatus: http.StatusConflict,
		}
	}
	return est, nil
}

// ExpireDue sweeps sent estimates whose expiry has passed and reports how
// many transitioned. Used by the background worker.
func (s *Service) ExpireDue(ctx context.Context, limit int32) (int, error) {
	ids, err := s.Q.ListExpirableEstimates(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expirable estimates: %w", err)
	}
	expired := 0
	for _, id := range ids {
		if _, err := s.Expire(ctx, id); err != nil {
			// Concurrent transitions are expected; skip and keep sweeping.
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.Code == "INVALID_TRANSITION" {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// Duplicate copies an estimate into a fresh draft with refreshed pricing
// inputs, the escape hatch once a sent estimate's rates are locked.
func (s *Service) Duplicate(ctx context.Context, id uuid.UUID) (Detail, error) {
	var detail Detail
	err := s.inTx(ctx, func(q Querier) error {
		src, err := q.GetEstimate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("estimate not found", err)
			}
			return fmt.Errorf("get estimate: %w", err)
		}
		lines, err := q.ListLines(ctx, id)
		if err != nil {
			return fmt.Errorf("list lines: %w", err)
		}
		charges, err := q.ListCharges(ctx, id)
		if err != nil {
			return fmt.Errorf("list charges: %w", err)
		}

		draft, err := q.CreateEstimate(ctx, store.CreateEstimateParams{
			CustomerID:   src.CustomerID,
			NumberPrefix: s.numberPrefix(),
			TaxRate:      src.TaxRate,
			Notes:        src.Notes,
		})
		if err != nil {
			return fmt.Errorf("create estimate: %w", err)
		}
		if _, err := q.UpdateEstimatePricing(ctx, draft.ID, store.UpdateEstimatePricingParams{
			DiscountType:        src.DiscountType,
			DiscountValue:       src.DiscountValue,
			TaxRate:             src.TaxRate,
			ShippingAmount:      src.ShippingAmount,
			OverrideSubtotal:    src.OverrideSubtotal,
			OverrideTaxAmount:   src.OverrideTaxAmount,
			OverrideTotalAmount: src.OverrideTotalAmount,
		}); err != nil {
			return fmt.Errorf("copy pricing: %w", err)
		}
		draft.DiscountType = src.DiscountType
		draft.DiscountValue = src.DiscountValue
		draft.ShippingAmount = src.ShippingAmount
		draft.OverrideSubtotal = src.OverrideSubtotal
		draft.OverrideTaxAmount = src.OverrideTaxAmount
		draft.OverrideTotalAmount = src.OverrideTotalAmount

		for _, line := range lines {
			params := store.InsertLineParams{
				EstimateID:  draft.ID,
				ServiceID:   line.ServiceID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				LineTotal:   line.LineTotal,
				Taxable:     line.Taxable,
				Position:    line.Position,
			}
			if line.ServiceID != nil {
				// Rules may have moved since the source was priced; the
				// draft takes today's resolved rate, not the locked one.
				taxable := line.Taxable
				repriced, err := s.resolveLine(ctx, q, draft, LineInput{
					ServiceID:   line.ServiceID,
					Description: line.Description,
					Quantity:    line.Quantity,
					Taxable:     &taxable,
				})
				if err != nil {
					return fmt.Errorf("reprice line: %w", err)
				}
				repriced.Position = line.Position
				params = repriced
			}
			if _, err := q.InsertLine(ctx, params); err != nil {
				return fmt.Errorf("copy line: %w", err)
			}
		}
		for _, charge := range charges {
			if _, err := q.InsertCharge(ctx, store.InsertChargeParams{
				EstimateID:  draft.ID,
				Kind:        charge.Kind,
				Description: charge.Description,
				Amount:      charge.Amount,
			}); err != nil {
				return fmt.Errorf("copy charge: %w", err)
			}
		}
		detail, err = s.recompute(ctx, q, draft, "duplicated")
		return err
	})
	return detail, err
}
