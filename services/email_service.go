package services

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"stratix/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// convertHTMLToText converts HTML content to plain text for email sending
func convertHTMLToText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	var text strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "p", "div", "br", "h1", "h2", "h3", "table", "tr":
				text.WriteString("\n")
			case "li":
				text.WriteString("- ")
			case "td", "th":
				text.WriteString(" | ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			extractText(child)
		}
	}
	extractText(doc)

	result := text.String()
	result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	return strings.TrimSpace(result)
}

// EmailService sends import notifications over SMTP. Configuration comes
// from SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASSWORD and SMTP_FROM.
type EmailService struct {
	log *logrus.Logger
}

func NewEmailService(log *logrus.Logger) *EmailService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EmailService{log: log}
}

// Enabled reports whether SMTP is configured at all.
func (es *EmailService) Enabled() bool {
	return os.Getenv("SMTP_HOST") != ""
}

// SendJobCompletionEmail mails the uploader a summary of a finished import
// job. Errors are logged, never propagated: a broken mailer must not affect
// job status.
func (es *EmailService) SendJobCompletionEmail(job *models.ImportJob) {
	if !es.Enabled() || job.UploadedBy == "" {
		return
	}

	subject := fmt.Sprintf("Import job #%d %s", job.ID, job.Status)
	body := fmt.Sprintf(`<div>
<h3>Your import finished with status: %s</h3>
<table>
<tr><td>Total rows</td><td>%d</td></tr>
<tr><td>Processed</td><td>%d</td></tr>
<tr><td>Succeeded</td><td>%d</td></tr>
<tr><td>Failed</td><td>%d</td></tr>
<tr><td>Skipped</td><td>%d</td></tr>
</table>
<p>%s</p>
</div>`, job.Status, job.TotalRows, job.ProcessedRows, job.SuccessRows, job.ErrorRows, job.SkippedRows, job.Summary)

	if err := es.sendEmail(job.UploadedBy, subject, convertHTMLToText(body)); err != nil {
		es.log.WithError(err).WithField("job_id", job.ID).Warn("could not send completion email")
	}
}

func (es *EmailService) sendEmail(to, subject, body string) error {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	user := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = user
	}

	auth := smtp.PlainAuth("", user, password, host)

	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n")

	return smtp.SendMail(host+":"+port, auth, from, []string{to}, msg)
}
