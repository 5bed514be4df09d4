package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

type noticeTemplate struct {
	subject string
	body    *template.Template
}

var noticeLayout = `<p>Hi {{.Name}},</p>
{{block "content" .}}{{end}}
<p>Manage your plan at <a href="{{.BillingURL}}">{{.BillingURL}}</a>.</p>
<p>Your InvoiceFox team</p>`

func newNotice(subject, content string) noticeTemplate {
	t := template.Must(template.New("notice").Parse(noticeLayout))
	template.Must(t.New("content").Parse(content))
	return noticeTemplate{subject: subject, body: t}
}

var notices = map[string]noticeTemplate{
	"payment_failed": newNotice("Your InvoiceFox payment failed",
		`<p>We could not collect your latest payment. Please update your payment method to keep access to InvoiceFox.</p>`),
	"subscription_canceled": newNotice("Your InvoiceFox subscription was canceled",
		`<p>Your subscription has been canceled. You can subscribe again at any time.</p>`),
	"subscription_activated": newNotice("Your InvoiceFox subscription is active again",
		`<p>Thanks, your payment went through and your subscription is active again.</p>`),
	"trial_ended": newNotice("Your InvoiceFox trial has ended",
		`<p>Your free trial has ended. Set up a payment method to continue using InvoiceFox.</p>`),
}

// NoticeData fills a billing notice template.
type NoticeData struct {
	Name       string
	BillingURL string
}

// BillingNotice renders the email for a billing notice kind.
func BillingNotice(kind, to string, data NoticeData) (Message, error) {
	tpl, ok := notices[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown billing notice %q", kind)
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s notice: %w", kind, err)
	}
	return Message{
		To:       to,
		Subject:  tpl.subject,
		HTMLBody: buf.String(),
		Tag:      kind,
	}, nil
}
