package leads

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/models"
	"breakfear-decoder/pkg/registry"
)

const insightSubject = "Your BreakFear Decoder insight"

var (
	insightText = texttemplate.Must(texttemplate.New("text").Parse(
		`Hello {{.FirstName}},

Here is your decoded insight.
{{range .Sections}}
{{.Label}}
{{.Text}}
{{end}}
If you ever feel you need extra support, please reach out to a licensed professional.
`))

	insightHTML = htmltemplate.Must(htmltemplate.New("html").Parse(
		`<p>Hello {{.FirstName}},</p>
<p>Here is your decoded insight.</p>
{{range .Sections}}<h3>{{.Label}}</h3>
<p>{{.Text}}</p>
{{end}}<p>If you ever feel you need extra support, please reach out to a licensed professional.</p>
`))
)

// Sender delivers one e-mail and returns its message id.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) (string, error)
}

type section struct {
	Label string
	Text  string
}

// InsightMailer renders a formatted result and hands it to a Sender.
type InsightMailer struct {
	sender   Sender
	registry *registry.VariantRegistry
	logger   logger.Logger
}

func NewInsightMailer(sender Sender, reg *registry.VariantRegistry, log logger.Logger) *InsightMailer {
	return &InsightMailer{
		sender:   sender,
		registry: reg,
		logger:   log.WithFields(map[string]interface{}{"component": "insight-mailer"}),
	}
}

func (m *InsightMailer) SendInsight(ctx context.Context, msg models.InsightEmail) error {
	_, err := m.Deliver(ctx, msg)
	return err
}

// Deliver renders and sends msg, returning the provider message id.
func (m *InsightMailer) Deliver(ctx context.Context, msg models.InsightEmail) (string, error) {
	v, ok := m.registry.Get(msg.Variant)
	if !ok {
		return "", errors.NewVariantNotFoundError(msg.Variant)
	}

	text, html, err := RenderInsight(*v, msg)
	if err != nil {
		return "", errors.NewInternalError(err)
	}

	id, err := m.sender.Send(ctx, msg.To, insightSubject, text, html)
	if err != nil {
		return "", errors.NewNotificationSendFailedError("email", err)
	}
	m.logger.Info("insight e-mail sent", map[string]interface{}{"messageId": id, "variant": v.ID})
	return id, nil
}

// RenderInsight builds the plain text and HTML bodies in variant field order.
func RenderInsight(v registry.Variant, msg models.InsightEmail) (string, string, error) {
	data := struct {
		FirstName string
		Sections  []section
	}{FirstName: msg.FirstName}
	for _, f := range v.Fields {
		if t := strings.TrimSpace(msg.Fields[f.Name]); t != "" {
			data.Sections = append(data.Sections, section{Label: f.Label, Text: t})
		}
	}

	var text, html bytes.Buffer
	if err := insightText.Execute(&text, data); err != nil {
		return "", "", err
	}
	if err := insightHTML.Execute(&html, data); err != nil {
		return "", "", err
	}
	return text.String(), html.String(), nil
}
