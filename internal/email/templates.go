package email

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

// TemplateData is the context every notification template renders with.
type TemplateData struct {
	AppName       string
	RecipientName string
	DocumentName  string
	Link          string
}

type notification struct {
	subject string
	intro   string
	button  string
}

var notifications = map[string]notification{
	"feedback.sent": {
		subject: "{{.AppName}}: feedback requested on {{.DocumentName}}",
		intro:   "You have been asked to share your feedback on {{.DocumentName}}.",
		button:  "Give feedback",
	},
	"receipt.sent": {
		subject: "{{.AppName}}: receipt {{.DocumentName}}",
		intro:   "A receipt for {{.DocumentName}} is ready for you.",
		button:  "View receipt",
	},
	"path.shared": {
		subject: "{{.AppName}}: {{.DocumentName}} was shared with you",
		intro:   "The path {{.DocumentName}} has been shared with you.",
		button:  "Open path",
	},
	"wall.shared": {
		subject: "{{.AppName}}: {{.DocumentName}} was shared with you",
		intro:   "The wall {{.DocumentName}} has been shared with you.",
		button:  "Open wall",
	},
}

// Templates lists the known notification template ids.
func Templates() []string {
	out := make([]string, 0, len(notifications))
	for id := range notifications {
		out = append(out, id)
	}
	return out
}

// Render builds the subject and bodies of a notification.
func Render(templateID, to, toName string, data TemplateData) (Message, error) {
	n, ok := notifications[templateID]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", templateID)
	}
	if data.AppName == "" {
		data.AppName = "Folio"
	}
	if data.RecipientName == "" {
		data.RecipientName = toName
	}
	subject, err := renderText(n.subject, data)
	if err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", templateID, err)
	}
	intro, err := renderText(n.intro, data)
	if err != nil {
		return Message{}, fmt.Errorf("render %s intro: %w", templateID, err)
	}
	html, err := renderTemplate(documentEmailTemplate, struct {
		TemplateData
		Intro  string
		Button string
	}{data, intro, n.button})
	if err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", templateID, err)
	}
	text := fmt.Sprintf("%s\r\n\r\n%s: %s\r\n", intro, n.button, data.Link)
	return Message{To: to, ToName: toName, Subject: subject, Text: text, HTML: html}, nil
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderText(tmpl string, data interface{}) (string, error) {
	t, err := texttemplate.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.DocumentName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
    {{if .RecipientName}}<p>Hi {{.RecipientName}},</p>{{end}}
    <p>{{.Intro}}</p>
    <p>
        <a href="{{.Link}}" class="button">{{.Button}}</a>
    </p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.Link}}</p>
    <div class="footer">
        <p>Anyone with this link can view the document. Do not forward it.</p>
    </div>
</body>
</html>`
