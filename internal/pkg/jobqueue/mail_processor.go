package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/mail"
)

// MailProcessor renders and sends the billing notification emails.
type MailProcessor struct {
	repos  *repository.Repositories
	mailer mail.Mailer
}

func NewMailProcessor(repos *repository.Repositories, mailer mail.Mailer) *MailProcessor {
	return &MailProcessor{repos: repos, mailer: mailer}
}

// Register installs the processor's handlers on q.
func (p *MailProcessor) Register(q *Queue) {
	q.Handle(JobTypePaymentReceipt, p.processPaymentReceipt)
	q.Handle(JobTypeSubscriptionCancelled, p.processSubscriptionCancelled)
	q.Handle(JobTypeSubscriptionExpired, p.processSubscriptionExpired)
}

func (p *MailProcessor) processPaymentReceipt(ctx context.Context, job *Job) error {
	var payload PaymentReceiptPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	inv, err := p.repos.Invoice.GetByID(ctx, payload.InvoiceID)
	if err != nil {
		return fmt.Errorf("load invoice %s: %w", payload.InvoiceID, err)
	}
	if inv.Status != models.InvoiceStatusPaid {
		log.Warnf("[JobQueue] Skipping receipt for unpaid invoice %s (%s)", inv.ID, inv.Status)
		return nil
	}
	org, err := p.repos.Organization.GetByID(ctx, inv.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization %s: %w", inv.OrganizationID, err)
	}

	receipt := mail.Receipt{
		OrganizationName: org.Name,
		InvoiceNumber:    inv.InvoiceNumber,
		Amount:           inv.TotalAmount,
		Currency:         inv.Currency,
		PaidAt:           inv.Paystack.PaidAt,
		Credits:          inv.Credits.TotalCredits,
	}
	if inv.Type == models.InvoiceTypeSubscription && inv.PlanID != nil {
		plan, err := p.repos.Plan.GetByID(ctx, *inv.PlanID)
		switch {
		case err == nil:
			receipt.PlanName = string(plan.Name)
		case errors.Is(err, repository.ErrNotFound):
			receipt.PlanName = "subscription"
		default:
			return fmt.Errorf("load plan %s: %w", *inv.PlanID, err)
		}
		receipt.NextBillingDate = org.Billing.NextBillingDate
	}

	body, err := mail.RenderReceipt(receipt)
	if err != nil {
		return err
	}
	return p.mailer.Send(ctx, org.Email, "Payment receipt "+inv.InvoiceNumber, body)
}

func (p *MailProcessor) processSubscriptionCancelled(ctx context.Context, job *Job) error {
	var payload SubscriptionCancelledPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	org, err := p.repos.Organization.GetByID(ctx, payload.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization %s: %w", payload.OrganizationID, err)
	}
	body, err := mail.RenderCancellation(mail.SubscriptionNotice{
		OrganizationName: org.Name,
		Immediate:        payload.Immediate,
		EndDate:          org.Billing.Subscription.EndDate,
	})
	if err != nil {
		return err
	}
	return p.mailer.Send(ctx, org.Email, "Your subscription has been cancelled", body)
}

func (p *MailProcessor) processSubscriptionExpired(ctx context.Context, job *Job) error {
	var payload SubscriptionExpiredPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	org, err := p.repos.Organization.GetByID(ctx, payload.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization %s: %w", payload.OrganizationID, err)
	}
	subject := "Your subscription has ended"
	if payload.PastDue {
		subject = "Your subscription is past due"
	}
	body, err := mail.RenderExpiry(mail.SubscriptionNotice{
		OrganizationName: org.Name,
		PastDue:          payload.PastDue,
		EndDate:          org.Billing.Subscription.EndDate,
	})
	if err != nil {
		return err
	}
	return p.mailer.Send(ctx, org.Email, subject, body)
}
