package jobqueue

import "context"

// Notifier turns billing events into queued notification jobs.
type Notifier struct {
	queue *Queue
}

func NewNotifier(q *Queue) *Notifier {
	return &Notifier{queue: q}
}

func (n *Notifier) NotifyPaymentReceipt(ctx context.Context, invoiceID string) error {
	_, err := n.queue.EnqueueJob(ctx, JobTypePaymentReceipt, PaymentReceiptPayload{InvoiceID: invoiceID})
	return err
}

func (n *Notifier) NotifySubscriptionCancelled(ctx context.Context, organizationID string, immediate bool) error {
	_, err := n.queue.EnqueueJob(ctx, JobTypeSubscriptionCancelled, SubscriptionCancelledPayload{
		OrganizationID: organizationID,
		Immediate:      immediate,
	})
	return err
}

func (n *Notifier) NotifySubscriptionExpired(ctx context.Context, organizationID string, pastDue bool) error {
	_, err := n.queue.EnqueueJob(ctx, JobTypeSubscriptionExpired, SubscriptionExpiredPayload{
		OrganizationID: organizationID,
		PastDue:        pastDue,
	})
	return err
}
