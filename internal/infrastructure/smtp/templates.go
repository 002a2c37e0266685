package smtp

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/cuchu-notify/internal/domain"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(`<html><body>
<h2>Welcome to Cuchu, {{.Name}}!</h2>
<p>Your account is ready. Alerts from your building will show up in the app and here.</p>
</body></html>`))

	notificationTmpl = template.Must(template.New("notification").Parse(`<html><body>
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
<p style="color:#888">Priority: {{.Priority}}</p>
</body></html>`))
)

// WelcomeEmail renders the registration greeting.
func WelcomeEmail(name string) (subject, html string, err error) {
	if name == "" {
		name = "there"
	}
	var buf bytes.Buffer
	if err := welcomeTmpl.Execute(&buf, struct{ Name string }{name}); err != nil {
		return "", "", fmt.Errorf("render welcome email: %w", err)
	}
	return "Welcome to Cuchu", buf.String(), nil
}

// NotificationEmail renders n as an email.
func NotificationEmail(n *domain.Notification) (subject, html string, err error) {
	var buf bytes.Buffer
	if err := notificationTmpl.Execute(&buf, n); err != nil {
		return "", "", fmt.Errorf("render notification email: %w", err)
	}
	return n.Title, buf.String(), nil
}
