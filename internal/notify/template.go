package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Message is a rendered notification ready for a transport.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	// Tag groups messages in the provider's statistics, e.g. the event name.
	Tag string
}

type emailData struct {
	Primary   string
	Secondary string
	Code      string
	StoreLink string
}

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background: #f6f6f6; padding: 24px;">
<div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 24px;">
<p dir="rtl" style="font-size: 16px; text-align: right;">{{.Primary}}</p>
<hr style="border: none; border-top: 1px solid #eeeeee;">
<p dir="ltr" style="font-size: 16px;">{{.Secondary}}</p>
{{- if .Code}}
<p style="text-align: center; font-size: 22px; font-weight: bold; letter-spacing: 2px; border: 2px dashed #333333; padding: 12px;">{{.Code}}</p>
{{- end}}
<p style="text-align: center;"><a href="{{.StoreLink}}" style="background: #333333; color: #ffffff; padding: 10px 20px; border-radius: 4px; text-decoration: none;">زيارة المتجر / Visit store</a></p>
</div>
</body>
</html>
`))

func render(to, subject string, d emailData) (Message, error) {
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, d); err != nil {
		return Message{}, fmt.Errorf("render email: %w", err)
	}

	var text strings.Builder
	text.WriteString(d.Primary)
	text.WriteString("\n\n")
	text.WriteString(d.Secondary)
	text.WriteString("\n\n")
	if d.Code != "" {
		fmt.Fprintf(&text, "Code: %s\n\n", d.Code)
	}
	text.WriteString(d.StoreLink)
	text.WriteString("\n")

	return Message{To: to, Subject: subject, HTML: buf.String(), Text: text.String()}, nil
}

// Message renders the content as an email to its recipient.
func (c *Content) Message() (Message, error) {
	msg, err := render(c.Recipient, c.Subject, emailData{
		Primary:   c.BodyPrimary,
		Secondary: c.BodySecondary,
		Code:      c.Code,
		StoreLink: c.StoreLink,
	})
	msg.Tag = c.Event
	return msg, err
}

// Message renders the alert as an email to the operator address.
func (a Alert) Message(to string) (Message, error) {
	msg, err := render(to, a.Subject, emailData{
		Primary:   a.BodyPrimary,
		Secondary: a.BodySecondary,
		Code:      a.Code,
		StoreLink: a.StoreLink,
	})
	msg.Tag = "operator-alert"
	return msg, err
}
