package billing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
)

const (
	webhookProvider    = "paystack"
	eventChargeSuccess = "charge.success"
)

// VerifyPayment confirms reference with the gateway and settles the invoice.
// Replays return the stored projection with AlreadyProcessed set.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*PaymentOutcome, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, newError(KindValidation, nil, "reference is required")
	}

	res, err := s.gateway.Verify(ctx, ref)
	if err != nil {
		s.metrics.PaymentVerified("unknown", strings.ToLower(string(KindOf(err))))
		log.Errorf("[Billing] Gateway verify failed: reference=%s: %v", ref, err)
		return nil, err
	}

	inv, err := s.repos.Invoice.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, err, "invoice not found for reference %s", ref)
		}
		return nil, newError(KindInternal, err, "could not load invoice")
	}

	if inv.Status == models.InvoiceStatusPaid {
		return s.alreadyPaid(ctx, inv)
	}

	switch res.Status {
	case TransactionSuccess:
	case TransactionPending:
		s.metrics.PaymentVerified(string(inv.Type), "pending")
		return nil, newError(KindGatewayTransient, nil, "payment is still pending")
	default:
		s.failInvoice(ctx, inv, string(res.Status))
		s.metrics.PaymentVerified(string(inv.Type), "failed")
		return nil, newError(KindGatewayFatal, nil, "payment %s: %s", res.Status, res.GatewayResponse)
	}

	if inv.Status.IsTerminal() {
		return nil, newError(KindConflict, nil, "invoice %s is %s", inv.InvoiceNumber, inv.Status)
	}
	if res.AmountMinor < ToMinorUnits(inv.TotalAmount) {
		s.metrics.PaymentVerified(string(inv.Type), "amount_mismatch")
		log.Errorf("[Billing] Amount mismatch: reference=%s paid=%d expected=%d", ref, res.AmountMinor, ToMinorUnits(inv.TotalAmount))
		return nil, newError(KindGatewayFatal, nil, "paid amount does not cover invoice %s", inv.InvoiceNumber)
	}

	now := s.clock()
	paidAt := now
	if res.PaidAt != nil {
		paidAt = res.PaidAt.UTC()
	}
	card := models.PaystackCustomer{
		CustomerID:        res.CustomerCode,
		AuthorizationCode: res.Authorization.AuthorizationCode,
		LastFourDigits:    res.Authorization.Last4,
		CardType:          res.Authorization.CardType,
		Bank:              res.Authorization.Bank,
	}
	patch := models.InvoicePatch{
		TransactionID:  res.TransactionID,
		PaidAt:         &paidAt,
		PaidDate:       &now,
		Channel:        res.Channel,
		IPAddress:      res.IPAddress,
		Fees:           res.FeesMinor / minorUnitsPerUnit,
		CardType:       res.Authorization.CardType,
		LastFourDigits: res.Authorization.Last4,
		Bank:           res.Authorization.Bank,
	}
	if patch.TransactionID == "" {
		patch.TransactionID = ref
	}

	var paid *models.Invoice
	err = s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		if inv.Status == models.InvoiceStatusPending {
			if _, err := tx.Invoice.Transition(ctx, inv.ID, models.InvoiceStatusPending, models.InvoiceStatusProcessing, models.InvoicePatch{}); err != nil {
				if !errors.Is(err, repository.ErrStatusConflict) {
					return err
				}
				// checkout moved it to processing after we loaded it
				current, rerr := tx.Invoice.GetByID(ctx, inv.ID)
				if rerr != nil {
					return rerr
				}
				if current.Status != models.InvoiceStatusProcessing {
					return err
				}
			}
		}
		updated, err := tx.Invoice.Transition(ctx, inv.ID, models.InvoiceStatusProcessing, models.InvoiceStatusPaid, patch)
		if err != nil {
			return err
		}
		settlement, err := settlementFor(ctx, tx, updated, paidAt, now, card)
		if err != nil {
			return err
		}
		if _, err := tx.Organization.ApplySettlement(ctx, settlement); err != nil {
			return err
		}
		paid = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			current, rerr := s.repos.Invoice.GetByID(ctx, inv.ID)
			if rerr == nil && current.Status == models.InvoiceStatusPaid {
				return s.alreadyPaid(ctx, current)
			}
			s.metrics.PaymentVerified(string(inv.Type), "conflict")
			return nil, newError(KindConflict, err, "invoice %s changed during verification", inv.InvoiceNumber)
		}
		s.metrics.PaymentVerified(string(inv.Type), "error")
		log.Errorf("[Billing] Settlement failed: reference=%s: %v", ref, err)
		return nil, newError(KindInternal, err, "could not settle payment")
	}

	s.metrics.PaymentVerified(string(paid.Type), "paid")
	log.Infof("[Billing] Payment settled: org=%s invoice=%s reference=%s type=%s", paid.OrganizationID, paid.InvoiceNumber, ref, paid.Type)

	if s.notifier != nil {
		if err := s.notifier.NotifyPaymentReceipt(ctx, paid.ID); err != nil {
			log.Warnf("[Billing] Could not queue receipt for invoice %s: %v", paid.ID, err)
		}
	}

	org, err := s.loadOrganization(ctx, paid.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{
		Invoice:      paid,
		Billing:      org.Billing,
		CreditsAdded: paid.Credits.TotalCredits,
	}, nil
}

func settlementFor(ctx context.Context, tx *repository.Repositories, inv *models.Invoice, paidAt, now time.Time, card models.PaystackCustomer) (repository.Settlement, error) {
	s := repository.Settlement{
		OrganizationID: inv.OrganizationID,
		InvoiceID:      inv.ID,
		Reference:      inv.Paystack.Reference,
		Type:           inv.Type,
		PaidAt:         paidAt,
		ActivatedAt:    now,
		Card:           card,
	}
	switch inv.Type {
	case models.InvoiceTypeCreditPurchase:
		s.Credits = inv.Credits.TotalCredits
	case models.InvoiceTypeSubscription:
		if inv.PlanID == nil {
			return s, errors.New("subscription invoice without plan")
		}
		s.PlanID = *inv.PlanID
		s.CycleDays = models.BillingCycleMonthly.Days()
		plan, err := tx.Plan.GetByID(ctx, s.PlanID)
		switch {
		case err == nil:
			s.CycleDays = plan.CycleDays()
		case !errors.Is(err, repository.ErrNotFound):
			return s, err
		}
	}
	return s, nil
}

// alreadyPaid re-applies the idempotent settlement so a ledger write lost
// after the invoice commit is repaired, then returns the stored projection.
func (s *Service) alreadyPaid(ctx context.Context, inv *models.Invoice) (*PaymentOutcome, error) {
	paidAt := s.clock()
	if inv.Paystack.PaidAt != nil {
		paidAt = inv.Paystack.PaidAt.UTC()
	}
	activatedAt := paidAt
	if inv.PaidDate != nil {
		activatedAt = inv.PaidDate.UTC()
	}
	settlement, err := settlementFor(ctx, s.repos, inv, paidAt, activatedAt, models.PaystackCustomer{})
	if err != nil {
		return nil, newError(KindInternal, err, "could not rebuild settlement")
	}
	applied, err := s.repos.Organization.ApplySettlement(ctx, settlement)
	if err != nil {
		return nil, newError(KindInternal, err, "could not settle payment")
	}
	if applied {
		log.Warnf("[Billing] Repaired missing ledger entry for invoice %s", inv.ID)
	}

	s.metrics.PaymentVerified(string(inv.Type), "already_paid")
	org, err := s.loadOrganization(ctx, inv.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{
		Invoice:          inv,
		Billing:          org.Billing,
		AlreadyProcessed: true,
	}, nil
}

// failInvoice records a gateway rejection. The invoice may already have
// moved on, in which case nothing is written.
func (s *Service) failInvoice(ctx context.Context, inv *models.Invoice, reason string) {
	if inv.Status.IsTerminal() {
		return
	}
	if _, err := s.repos.Invoice.Transition(ctx, inv.ID, inv.Status, models.InvoiceStatusFailed, models.InvoicePatch{}); err != nil {
		log.Warnf("[Billing] Could not mark invoice %s failed: %v", inv.ID, err)
		return
	}
	log.Infof("[Billing] Invoice %s failed at gateway: %s", inv.InvoiceNumber, reason)
}

type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
	} `json:"data"`
}

// HandleWebhook authenticates a gateway event against the raw request body
// and settles charge.success through VerifyPayment. Events are recorded once
// per provider event id.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if !s.gateway.VerifyWebhookSignature(rawBody, signature) {
		s.metrics.Webhook("unknown", "invalid_signature")
		log.Warnf("[Webhook] Rejected event with invalid signature")
		return nil, newError(KindSignatureInvalid, nil, "invalid webhook signature")
	}

	var payload webhookEnvelope
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		s.metrics.Webhook("unknown", "malformed")
		return nil, newError(KindValidation, err, "malformed webhook payload")
	}

	result := &WebhookResult{Event: payload.Event, Reference: strings.TrimSpace(payload.Data.Reference)}

	eventID := payload.Data.ID.String()
	if eventID != "" {
		eventID = payload.Event + ":" + eventID
	} else {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	event := &models.BillingWebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: eventID,
		EventType:       payload.Event,
		Reference:       result.Reference,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	}
	created, err := s.repos.WebhookEvent.CreateIfNotExists(ctx, event)
	if err != nil {
		log.Errorf("[Webhook] Could not record event %s: %v", eventID, err)
		return nil, newError(KindInternal, err, "could not record webhook event")
	}
	result.Duplicate = !created

	if payload.Event != eventChargeSuccess {
		s.metrics.Webhook(payload.Event, "ignored")
		log.Infof("[Webhook] Acknowledged unhandled event %q", payload.Event)
		s.markWebhook(ctx, event, nil)
		return result, nil
	}
	if result.Reference == "" {
		s.metrics.Webhook(payload.Event, "malformed")
		err := newError(KindValidation, nil, "charge.success without reference")
		s.markWebhook(ctx, event, err)
		result.Error = err.Message
		return result, nil
	}

	// Replays still go through verify; the invoice status makes them no-ops.
	_, err = s.VerifyPayment(ctx, result.Reference)
	if err != nil {
		if IsKind(err, KindGatewayTransient) || IsKind(err, KindInternal) || IsKind(err, KindConfig) {
			s.metrics.Webhook(payload.Event, "retry")
			s.markWebhook(ctx, event, err)
			return nil, err
		}
		s.metrics.Webhook(payload.Event, "rejected")
		log.Warnf("[Webhook] charge.success for %s not settled: %v", result.Reference, err)
		s.markWebhook(ctx, event, err)
		result.Error = Message(err)
		return result, nil
	}

	s.metrics.Webhook(payload.Event, "processed")
	s.markWebhook(ctx, event, nil)
	result.Processed = true
	return result, nil
}

func (s *Service) markWebhook(ctx context.Context, event *models.BillingWebhookEvent, processingErr error) {
	if event.ID == "" {
		return
	}
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.repos.WebhookEvent.MarkProcessed(ctx, event.ID, msg, s.clock()); err != nil {
		log.Warnf("[Webhook] Could not mark event %s processed: %v", event.ID, err)
	}
}
