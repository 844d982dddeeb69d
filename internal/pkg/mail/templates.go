package mail

import (
	"bytes"
	"html/template"
	"time"
)

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("02 Jan 2006")
	},
}).Parse(`
{{define "receipt"}}<p>Hello {{.OrganizationName}},</p>
<p>we received your payment for invoice <b>{{.InvoiceNumber}}</b>.</p>
<table>
<tr><td>Amount</td><td>{{.Amount}} {{.Currency}}</td></tr>
<tr><td>Paid at</td><td>{{date .PaidAt}}</td></tr>
{{if .PlanName}}<tr><td>Plan</td><td>{{.PlanName}}</td></tr>
<tr><td>Next billing date</td><td>{{date .NextBillingDate}}</td></tr>{{end}}
{{if .Credits}}<tr><td>Credits added</td><td>{{.Credits}}</td></tr>{{end}}
</table>{{end}}

{{define "cancelled"}}<p>Hello {{.OrganizationName}},</p>
{{if .Immediate}}<p>your subscription has been cancelled and your account moved to pay-as-you-go.</p>
{{else}}<p>your subscription will end on {{date .EndDate}}. You keep all features until then.</p>{{end}}{{end}}

{{define "expired"}}<p>Hello {{.OrganizationName}},</p>
{{if .PastDue}}<p>your subscription period ended on {{date .EndDate}} and has not been renewed. Please renew to keep your plan features.</p>
{{else}}<p>your subscription has ended and your account moved to pay-as-you-go.</p>{{end}}{{end}}
`))

// Receipt is the data of a payment receipt.
type Receipt struct {
	OrganizationName string
	InvoiceNumber    string
	Amount           int64
	Currency         string
	PaidAt           *time.Time
	PlanName         string
	NextBillingDate  *time.Time
	Credits          int64
}

// SubscriptionNotice is the data of cancellation and expiry notices.
type SubscriptionNotice struct {
	OrganizationName string
	Immediate        bool
	PastDue          bool
	EndDate          *time.Time
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func RenderReceipt(r Receipt) (string, error) {
	return render("receipt", r)
}

func RenderCancellation(n SubscriptionNotice) (string, error) {
	return render("cancelled", n)
}

func RenderExpiry(n SubscriptionNotice) (string, error) {
	return render("expired", n)
}
