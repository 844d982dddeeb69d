package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/database"
)

const testWebhookSecret = "sk_test_webhook"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeGateway settles every initialized reference successfully for the
// initialized amount unless a test overrides the outcome.
type fakeGateway struct {
	mu        sync.Mutex
	initErr   error
	verifyErr error
	amounts   map[string]int64
	statuses  map[string]TransactionStatus
	paidAt    map[string]time.Time
	inits     []InitializeRequest
	verifies  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		amounts:  map[string]int64{},
		statuses: map[string]TransactionStatus{},
		paidAt:   map[string]time.Time{},
	}
}

func (g *fakeGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inits = append(g.inits, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.amounts[req.Reference] = req.AmountMinor
	return &InitializeResult{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	status, ok := g.statuses[reference]
	if !ok {
		status = TransactionSuccess
	}
	paidAt, ok := g.paidAt[reference]
	if !ok {
		paidAt = testNow
	}
	return &VerifyResult{
		Status:        status,
		Reference:     reference,
		TransactionID: "trx_" + reference,
		AmountMinor:   g.amounts[reference],
		Currency:      "NGN",
		Channel:       "card",
		PaidAt:        &paidAt,
		FeesMinor:     15000,
		CustomerCode:  "CUS_test",
		Authorization: Authorization{
			AuthorizationCode: "AUTH_test",
			CardType:          "visa",
			Last4:             "4081",
			Bank:              "TEST BANK",
		},
	}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return VerifyPaystackWebhookSignature(rawBody, signature, testWebhookSecret)
}

func (g *fakeGateway) set(ref string, status TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[ref] = status
}

type recordingNotifier struct {
	mu        sync.Mutex
	receipts  []string
	cancelled []string
}

func (n *recordingNotifier) NotifyPaymentReceipt(ctx context.Context, invoiceID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, invoiceID)
	return nil
}

func (n *recordingNotifier) NotifySubscriptionCancelled(ctx context.Context, organizationID string, immediate bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, organizationID)
	return nil
}

type fixture struct {
	ctx      context.Context
	repos    *repository.Repositories
	gateway  *fakeGateway
	notifier *recordingNotifier
	svc      *Service
	org      *models.Organization
	admin    *models.Admin
	plans    map[models.PlanName]*models.Plan
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		ctx:      context.Background(),
		repos:    repository.NewRepositories(db),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
		plans:    map[models.PlanName]*models.Plan{},
		now:      testNow,
	}
	if _, err := SeedDefaultPlans(f.ctx, f.repos.Plan); err != nil {
		t.Fatalf("seed plans: %v", err)
	}
	plans, err := f.repos.Plan.List(f.ctx, true)
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	for i := range plans {
		f.plans[plans[i].Name] = &plans[i]
	}

	f.org = models.NewOrganization("Acme Academy", "billing@acme.test", testNow)
	if err := f.repos.Organization.Create(f.ctx, f.org); err != nil {
		t.Fatalf("create org: %v", err)
	}
	f.admin = &models.Admin{Name: "Ada", Email: "ada@acme.test", OrganizationID: f.org.ID, Role: models.AdminRoleOwner}
	if err := f.repos.Admin.Create(f.ctx, f.admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	f.svc = NewService(f.repos, f.gateway,
		WithClock(func() time.Time { return f.now }),
		WithNotifier(f.notifier),
		WithCallbackURL(func() string { return "https://app.test/billing/callback" }),
	)
	return f
}

func (f *fixture) reloadOrg(t *testing.T) *models.Organization {
	t.Helper()
	org, err := f.repos.Organization.GetByID(f.ctx, f.org.ID)
	if err != nil {
		t.Fatalf("reload org: %v", err)
	}
	return org
}

func (f *fixture) invoice(t *testing.T, ref string) *models.Invoice {
	t.Helper()
	inv, err := f.repos.Invoice.FindByReference(f.ctx, ref)
	if err != nil {
		t.Fatalf("find invoice %s: %v", ref, err)
	}
	return inv
}

func TestCreditPurchaseHappyPath(t *testing.T) {
	f := newFixture(t)

	session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 2500, Price: 12500})
	if err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}
	if session.AuthorizationURL == "" || session.TotalCredits != 2800 {
		t.Fatalf("unexpected session %+v", session)
	}
	if want := fmt.Sprintf("CREDIT_%d_%s", testNow.UnixMilli(), f.org.ID); session.Reference != want {
		t.Fatalf("reference = %q, want %q", session.Reference, want)
	}

	inv := f.invoice(t, session.Reference)
	if inv.Status != models.InvoiceStatusProcessing {
		t.Fatalf("invoice status = %s, want processing", inv.Status)
	}
	if inv.Credits.TotalCredits != 2800 || inv.Credits.BonusCredits != 300 {
		t.Fatalf("invoice credits = %+v", inv.Credits)
	}
	if inv.InvoiceNumber != fmt.Sprintf("INV-00001-%04d", testNow.UnixMilli()%10000) {
		t.Fatalf("invoice number = %s", inv.InvoiceNumber)
	}
	if got := f.gateway.inits[0]; got.AmountMinor != 1250000 || got.CallbackURL != "https://app.test/billing/callback" || got.Email != "ada@acme.test" {
		t.Fatalf("gateway initialize request = %+v", got)
	}

	out, err := f.svc.VerifyPayment(f.ctx, session.Reference)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if out.AlreadyProcessed || out.Invoice.Status != models.InvoiceStatusPaid {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Billing.Credits.Available != 2800 || out.Billing.PlanType != models.PlanTypePayAsYouGo {
		t.Fatalf("billing after verify = %+v", out.Billing)
	}

	paid := f.invoice(t, session.Reference)
	if paid.PaidDate == nil || paid.Paystack.TransactionID == "" || paid.Paystack.LastFourDigits != "4081" {
		t.Fatalf("paid invoice missing gateway fields: %+v", paid)
	}

	again, err := f.svc.VerifyPayment(f.ctx, session.Reference)
	if err != nil {
		t.Fatalf("second VerifyPayment: %v", err)
	}
	if !again.AlreadyProcessed || again.Billing.Credits.Available != 2800 {
		t.Fatalf("replay changed the ledger: %+v", again)
	}
	if len(f.notifier.receipts) != 1 || f.notifier.receipts[0] != paid.ID {
		t.Fatalf("receipts = %v", f.notifier.receipts)
	}
}

func TestSubscriptionActivation(t *testing.T) {
	f := newFixture(t)
	basic := f.plans[models.PlanBasic]

	session, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, basic.ID)
	if err != nil {
		t.Fatalf("InitializeSubscription: %v", err)
	}
	if session.Amount != 15000 || f.gateway.inits[0].AmountMinor != 1500000 {
		t.Fatalf("unexpected amounts: session=%d gateway=%d", session.Amount, f.gateway.inits[0].AmountMinor)
	}
	if status := f.invoice(t, session.Reference).Status; status != models.InvoiceStatusProcessing {
		t.Fatalf("invoice status = %s", status)
	}

	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	org := f.reloadOrg(t)
	b := org.Billing
	if b.PlanType != models.PlanTypeSubscription || b.CurrentPlanID == nil || *b.CurrentPlanID != basic.ID {
		t.Fatalf("plan not activated: %+v", b)
	}
	if b.Subscription.Status != models.SubscriptionActive {
		t.Fatalf("subscription status = %s", b.Subscription.Status)
	}
	if b.Subscription.EndDate == nil || !b.Subscription.EndDate.Equal(testNow.AddDate(0, 0, 30)) {
		t.Fatalf("end date = %v, want %v", b.Subscription.EndDate, testNow.AddDate(0, 0, 30))
	}
	if b.Credits.Available != 0 {
		t.Fatalf("subscription must not add credits, got %d", b.Credits.Available)
	}
	if !b.Paystack.HasCard() || b.Paystack.LastFourDigits != "4081" {
		t.Fatalf("card fingerprint not cached: %+v", b.Paystack)
	}
}

func TestSwitchPlanQuoteDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	basic := f.plans[models.PlanBasic]
	standard := f.plans[models.PlanStandard]

	f.now = testNow.AddDate(0, 0, -10)
	session, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, basic.ID)
	if err != nil {
		t.Fatalf("InitializeSubscription: %v", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	before := f.reloadOrg(t)

	f.now = testNow
	q, err := f.svc.SwitchPlan(f.ctx, f.admin.ID, standard.ID)
	if err != nil {
		t.Fatalf("SwitchPlan: %v", err)
	}
	if q.TotalDays != 30 || q.RemainingDays != 20 || q.UnusedCredit != 10000 || q.ProratedAmount != 35000 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.ProrationType != ProrationUpgrade || q.CurrentPlan.ID != basic.ID || q.NewPlan.ID != standard.ID {
		t.Fatalf("unexpected quote plans %+v", q)
	}

	after := f.reloadOrg(t)
	if *after.Billing.CurrentPlanID != *before.Billing.CurrentPlanID || !after.Billing.Subscription.EndDate.Equal(*before.Billing.Subscription.EndDate) {
		t.Fatalf("quote changed organization state")
	}

	if _, err := f.svc.SwitchPlan(f.ctx, f.admin.ID, basic.ID); KindOf(err) != KindValidation {
		t.Fatalf("switching to the same plan: got %v, want VALIDATION", err)
	}
}

func TestSwitchPlanWithoutSubscriptionQuotesFullPrice(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.SwitchPlan(f.ctx, f.admin.ID, f.plans[models.PlanStandard].ID)
	if err != nil {
		t.Fatalf("SwitchPlan: %v", err)
	}
	if q.CurrentPlan != nil || q.UnusedCredit != 0 || q.ProratedAmount != 45000 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestConcurrentVerifyAppliesCreditsOnce(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
	if err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}

	const callers = 12
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent VerifyPayment: %v", err)
	}

	org := f.reloadOrg(t)
	if org.Billing.Credits.Available != 1100 {
		t.Fatalf("credits = %d, want exactly one application of 1100", org.Billing.Credits.Available)
	}
	if len(f.notifier.receipts) != 1 {
		t.Fatalf("receipts queued %d times", len(f.notifier.receipts))
	}
}

func TestVerifyAcceptsInvoiceLeftPending(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
	if err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}
	// simulate a lost pending -> processing write
	inv := f.invoice(t, session.Reference)
	if err := f.repos.Transaction(f.ctx, func(ctx context.Context, tx *repository.Repositories) error {
		_, err := tx.Invoice.Transition(ctx, inv.ID, models.InvoiceStatusProcessing, models.InvoiceStatusCancelled, models.InvoicePatch{})
		return err
	}); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); KindOf(err) != KindConflict {
		t.Fatalf("verify of cancelled invoice: got %v, want CONFLICT", err)
	}

	pending := &models.Invoice{
		InvoiceNumber:  "INV-99999-0001",
		OrganizationID: f.org.ID,
		Type:           models.InvoiceTypeCreditPurchase,
		Amount:         5000,
		TotalAmount:    5000,
		Currency:       "NGN",
		DueDate:        testNow.Add(invoiceDueIn),
		Credits:        models.InvoiceCredits{Quantity: 1000, BonusCredits: 100, TotalCredits: 1100},
		Paystack:       models.InvoicePaystack{Reference: "CREDIT_pending"},
	}
	if err := f.repos.Invoice.Create(f.ctx, pending); err != nil {
		t.Fatalf("create pending invoice: %v", err)
	}
	f.gateway.amounts["CREDIT_pending"] = 500000

	out, err := f.svc.VerifyPayment(f.ctx, "CREDIT_pending")
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if out.Invoice.Status != models.InvoiceStatusPaid || out.Billing.Credits.Available != 1100 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

// checkoutRacer moves the invoice to processing right after verify loaded it
// as pending, the way a late openCheckout CAS would.
type checkoutRacer struct {
	repository.InvoiceRepository
}

func (r checkoutRacer) FindByReference(ctx context.Context, reference string) (*models.Invoice, error) {
	inv, err := r.InvoiceRepository.FindByReference(ctx, reference)
	if err != nil || inv.Status != models.InvoiceStatusPending {
		return inv, err
	}
	if _, err := r.InvoiceRepository.Transition(ctx, inv.ID, models.InvoiceStatusPending, models.InvoiceStatusProcessing, models.InvoicePatch{}); err != nil {
		return nil, err
	}
	return inv, nil
}

func TestVerifyPendingInvoiceRacingCheckout(t *testing.T) {
	f := newFixture(t)
	pending := &models.Invoice{
		InvoiceNumber:  "INV-99999-0002",
		OrganizationID: f.org.ID,
		Type:           models.InvoiceTypeCreditPurchase,
		Amount:         5000,
		TotalAmount:    5000,
		Currency:       "NGN",
		DueDate:        testNow.Add(invoiceDueIn),
		Credits:        models.InvoiceCredits{Quantity: 1000, BonusCredits: 100, TotalCredits: 1100},
		Paystack:       models.InvoicePaystack{Reference: "CREDIT_race"},
	}
	if err := f.repos.Invoice.Create(f.ctx, pending); err != nil {
		t.Fatalf("create pending invoice: %v", err)
	}
	f.gateway.amounts["CREDIT_race"] = 500000

	racing := *f.repos
	racing.Invoice = checkoutRacer{InvoiceRepository: f.repos.Invoice}
	svc := NewService(&racing, f.gateway, WithClock(func() time.Time { return f.now }))

	out, err := svc.VerifyPayment(f.ctx, "CREDIT_race")
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if out.Invoice.Status != models.InvoiceStatusPaid {
		t.Fatalf("invoice status = %s, want paid", out.Invoice.Status)
	}
	if got := f.reloadOrg(t).Billing.Credits.Available; got != 1100 {
		t.Fatalf("credits available = %d, want 1100", got)
	}
}

func TestInitializeGatewayFailureLeavesInvoicePending(t *testing.T) {
	f := newFixture(t)
	f.gateway.initErr = newError(KindGatewayTransient, nil, "payment gateway unavailable")

	_, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
	if KindOf(err) != KindGatewayTransient {
		t.Fatalf("got %v, want GATEWAY_TRANSIENT", err)
	}

	invoices, total, err := f.repos.Invoice.ListByOrganization(f.ctx, f.org.ID, repository.InvoiceFilter{})
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if total != 1 || invoices[0].Status != models.InvoiceStatusPending {
		t.Fatalf("expected one pending invoice, got %d %+v", total, invoices)
	}
	if org := f.reloadOrg(t); org.Billing.PlanType != models.PlanTypeNone || org.Billing.Credits.Available != 0 {
		t.Fatalf("organization touched on gateway failure: %+v", org.Billing)
	}
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		call func() error
		want Kind
	}{
		{"price does not match rate", func() error {
			_, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 4000})
			return err
		}, KindValidation},
		{"zero quantity", func() error {
			_, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 0, Price: 4000})
			return err
		}, KindValidation},
		{"unknown admin", func() error {
			_, err := f.svc.InitializeCreditPurchase(f.ctx, "missing", CreditPackage{Quantity: 1000, Price: 5000})
			return err
		}, KindNotFound},
		{"missing admin", func() error {
			_, err := f.svc.InitializeSubscription(f.ctx, "", f.plans[models.PlanBasic].ID)
			return err
		}, KindAuth},
		{"unknown plan", func() error {
			_, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, "nope")
			return err
		}, KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.call()); got != tt.want {
				t.Fatalf("kind = %s, want %s", got, tt.want)
			}
		})
	}
	if len(f.gateway.inits) != 0 {
		t.Fatalf("gateway called for invalid requests")
	}
}

func TestVerifyGatewayOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		status     TransactionStatus
		wantKind   Kind
		wantStatus models.InvoiceStatus
	}{
		{"pending stays retryable", TransactionPending, KindGatewayTransient, models.InvoiceStatusProcessing},
		{"failed marks invoice failed", TransactionFailed, KindGatewayFatal, models.InvoiceStatusFailed},
		{"abandoned marks invoice failed", TransactionAbandoned, KindGatewayFatal, models.InvoiceStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
			if err != nil {
				t.Fatalf("InitializeCreditPurchase: %v", err)
			}
			f.gateway.set(session.Reference, tt.status)

			_, err = f.svc.VerifyPayment(f.ctx, session.Reference)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("kind = %s (%v), want %s", KindOf(err), err, tt.wantKind)
			}
			if got := f.invoice(t, session.Reference).Status; got != tt.wantStatus {
				t.Fatalf("invoice status = %s, want %s", got, tt.wantStatus)
			}
			if org := f.reloadOrg(t); org.Billing.Credits.Available != 0 {
				t.Fatalf("credits applied for unsuccessful payment")
			}
		})
	}
}

func TestVerifyRejectsShortPayment(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
	if err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}
	f.gateway.amounts[session.Reference] = 499999

	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); KindOf(err) != KindGatewayFatal {
		t.Fatalf("got %v, want GATEWAY_FATAL", err)
	}
	if got := f.invoice(t, session.Reference).Status; got != models.InvoiceStatusProcessing {
		t.Fatalf("invoice status = %s, want processing", got)
	}
}

func TestVerifyUnknownReference(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.VerifyPayment(f.ctx, "CREDIT_0_none"); KindOf(err) != KindNotFound {
		t.Fatalf("got %v, want NOT_FOUND", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, "  "); KindOf(err) != KindValidation {
		t.Fatalf("got %v, want VALIDATION", err)
	}
}

func TestLaterSubscriptionPaymentWins(t *testing.T) {
	f := newFixture(t)
	basic := f.plans[models.PlanBasic]
	pro := f.plans[models.PlanProfessional]

	first, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, basic.ID)
	if err != nil {
		t.Fatalf("InitializeSubscription basic: %v", err)
	}
	second, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, pro.ID)
	if err != nil {
		t.Fatalf("InitializeSubscription professional: %v", err)
	}
	f.gateway.paidAt[first.Reference] = testNow.Add(-time.Hour)
	f.gateway.paidAt[second.Reference] = testNow

	// the later payment settles first
	if _, err := f.svc.VerifyPayment(f.ctx, second.Reference); err != nil {
		t.Fatalf("verify professional: %v", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, first.Reference); err != nil {
		t.Fatalf("verify basic: %v", err)
	}

	org := f.reloadOrg(t)
	if *org.Billing.CurrentPlanID != pro.ID {
		t.Fatalf("current plan = %s, want the later paid %s", *org.Billing.CurrentPlanID, pro.ID)
	}
	if f.invoice(t, first.Reference).Status != models.InvoiceStatusPaid {
		t.Fatalf("superseded invoice must still be paid")
	}
}

func TestCancelSubscription(t *testing.T) {
	activate := func(t *testing.T, f *fixture) {
		session, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, f.plans[models.PlanStandard].ID)
		if err != nil {
			t.Fatalf("InitializeSubscription: %v", err)
		}
		if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
			t.Fatalf("VerifyPayment: %v", err)
		}
	}

	t.Run("immediate", func(t *testing.T) {
		f := newFixture(t)
		activate(t, f)
		f.now = testNow.Add(48 * time.Hour)

		res, err := f.svc.CancelSubscription(f.ctx, f.admin.ID, true)
		if err != nil {
			t.Fatalf("CancelSubscription: %v", err)
		}
		if res.Subscription.Status != models.SubscriptionCancelled || res.PlanType != models.PlanTypePayAsYouGo {
			t.Fatalf("unexpected result %+v", res)
		}
		org := f.reloadOrg(t)
		if org.Billing.CurrentPlanID != nil || !org.Billing.Subscription.EndDate.Equal(f.now) {
			t.Fatalf("unexpected billing %+v", org.Billing)
		}
		if len(f.notifier.cancelled) != 1 {
			t.Fatalf("cancellation notice not queued")
		}
	})

	t.Run("deferred", func(t *testing.T) {
		f := newFixture(t)
		activate(t, f)

		res, err := f.svc.CancelSubscription(f.ctx, f.admin.ID, false)
		if err != nil {
			t.Fatalf("CancelSubscription: %v", err)
		}
		if res.Subscription.Status != models.SubscriptionActive || !res.Subscription.CancelAtPeriodEnd {
			t.Fatalf("unexpected result %+v", res)
		}
	})

	t.Run("without subscription", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.CancelSubscription(f.ctx, f.admin.ID, true); KindOf(err) != KindValidation {
			t.Fatalf("got %v, want VALIDATION", err)
		}
	})
}

func TestDebitCreditLedger(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.DebitCreditLedger(f.ctx, f.org.ID, 1); KindOf(err) != KindNotApplicable {
		t.Fatalf("debit without pay-as-you-go: got %v, want NOT_APPLICABLE", err)
	}

	session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
	if err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	res, err := f.svc.DebitCreditLedger(f.ctx, f.org.ID, 100)
	if err != nil {
		t.Fatalf("DebitCreditLedger: %v", err)
	}
	if res.Remaining != 1000 {
		t.Fatalf("remaining = %d, want 1000", res.Remaining)
	}
	if _, err := f.svc.DebitCreditLedger(f.ctx, f.org.ID, 1001); KindOf(err) != KindInsufficientCredits {
		t.Fatalf("overdraft: got %v, want INSUFFICIENT_CREDITS", err)
	}
	if _, err := f.svc.DebitCreditLedger(f.ctx, "missing", 1); KindOf(err) != KindNotFound {
		t.Fatalf("unknown org: got %v, want NOT_FOUND", err)
	}

	org := f.reloadOrg(t)
	c := org.Billing.Credits
	if c.Available != 1000 || c.Used != 100 || c.Available+c.Used != 1100 {
		t.Fatalf("credits = %+v", c)
	}
	if org.Billing.Usage.CurrentMonth.CredentialsIssued != 100 || org.Billing.Usage.Lifetime.CredentialsIssued != 100 {
		t.Fatalf("usage = %+v", org.Billing.Usage)
	}
}

func TestRecordUsage(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RecordUsage(f.ctx, f.org.ID, 2, 40); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := f.svc.RecordUsage(f.ctx, f.org.ID, -1, 0); KindOf(err) != KindValidation {
		t.Fatalf("negative usage: got %v", err)
	}
	org := f.reloadOrg(t)
	if org.Billing.Usage.CurrentMonth.EventsCreated != 2 || org.Billing.Usage.Lifetime.ParticipantsAdded != 40 {
		t.Fatalf("usage = %+v", org.Billing.Usage)
	}
}

func TestDashboardReflectsVerifiedPayment(t *testing.T) {
	f := newFixture(t)
	basic := f.plans[models.PlanBasic]

	d, err := f.svc.Dashboard(f.ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Billing.PaymentMethod != nil || d.Billing.Usage.Percentages != nil || len(d.Plans) != 3 {
		t.Fatalf("unexpected empty dashboard %+v", d.Billing)
	}

	session, err := f.svc.InitializeSubscription(f.ctx, f.admin.ID, basic.ID)
	if err != nil {
		t.Fatalf("InitializeSubscription: %v", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if _, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000}); err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}
	if err := f.svc.RecordUsage(f.ctx, f.org.ID, 5, 125); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	d, err = f.svc.Dashboard(f.ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Billing.CurrentPlan == nil || d.Billing.CurrentPlan.ID != basic.ID {
		t.Fatalf("current plan = %+v", d.Billing.CurrentPlan)
	}
	if d.Billing.PaymentMethod == nil || d.Billing.PaymentMethod.LastFourDigits != "4081" {
		t.Fatalf("payment method = %+v", d.Billing.PaymentMethod)
	}
	p := d.Billing.Usage.Percentages
	if p == nil || p.Events == nil || *p.Events != 50 || p.Participants == nil || *p.Participants != 25 {
		t.Fatalf("percentages = %+v", p)
	}
	current := 0
	for _, plan := range d.Plans {
		if plan.IsCurrent {
			current++
			if plan.ID != basic.ID {
				t.Fatalf("wrong plan flagged current: %s", plan.Name)
			}
		}
	}
	if current != 1 {
		t.Fatalf("%d plans flagged current", current)
	}
	stats := d.Statistics
	if stats.TotalSpent != 15000 || !stats.ActiveSubscription {
		t.Fatalf("statistics = %+v", stats)
	}
	if stats.InvoicesCount.Paid != 1 || stats.InvoicesCount.Pending != 1 || stats.InvoicesCount.Total != 2 {
		t.Fatalf("invoice counts = %+v", stats.InvoicesCount)
	}
	if len(d.Invoices) != 2 {
		t.Fatalf("dashboard invoices = %d", len(d.Invoices))
	}
}

func TestUsageReportForPayAsYouGo(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000})
	if err != nil {
		t.Fatalf("InitializeCreditPurchase: %v", err)
	}
	if _, err := f.svc.VerifyPayment(f.ctx, session.Reference); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	u, err := f.svc.Usage(f.ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Percentages != nil {
		t.Fatalf("percentages must be null off subscription, got %+v", u.Percentages)
	}
	if u.Limits.MaxEventsPerMonth != 10 || u.Credits.Available != 1100 {
		t.Fatalf("unexpected usage report %+v", u)
	}
}

func TestInvoicesPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.now = testNow.Add(time.Duration(i) * time.Minute)
		if _, err := f.svc.InitializeCreditPurchase(f.ctx, f.admin.ID, CreditPackage{Quantity: 1000, Price: 5000}); err != nil {
			t.Fatalf("InitializeCreditPurchase: %v", err)
		}
	}

	page, err := f.svc.Invoices(f.ctx, f.admin.ID, 2, 2, "")
	if err != nil {
		t.Fatalf("Invoices: %v", err)
	}
	if page.Total != 5 || page.Pages != 3 || len(page.Invoices) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	paid, err := f.svc.Invoices(f.ctx, f.admin.ID, 1, 10, models.InvoiceStatusPaid)
	if err != nil {
		t.Fatalf("Invoices(paid): %v", err)
	}
	if paid.Total != 0 || len(paid.Invoices) != 0 {
		t.Fatalf("expected no paid invoices, got %+v", paid)
	}

	if _, err := f.svc.Invoices(f.ctx, f.admin.ID, 1, 10, "refunded"); KindOf(err) != KindValidation {
		t.Fatalf("unknown status: got %v", err)
	}
}
