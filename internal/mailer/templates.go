package mailer

import (
	"fmt"
	"html"
)

func page(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2 style="color: #2563eb;">%s</h2>
  %s
  <p style="color: #6b7280; font-size: 12px;">NexusHub · this is an automated message, please do not reply.</p>
</body>
</html>`, html.EscapeString(title), body)
}

// NewApplicationEmail notifies a project owner of a fresh application.
func NewApplicationEmail(ownerName, applicantName, projectTitle string) (subject, body string) {
	subject = fmt.Sprintf("New application for %s", projectTitle)
	body = page("New application received", fmt.Sprintf(
		`<p>Hi %s,</p>
  <p><strong>%s</strong> has applied to your project <strong>%s</strong>.</p>
  <p>Review the application in your NexusHub dashboard.</p>`,
		html.EscapeString(ownerName), html.EscapeString(applicantName), html.EscapeString(projectTitle)))
	return subject, body
}

// ApplicationStatusEmail notifies an applicant that their application
// moved to a new status.
func ApplicationStatusEmail(applicantName, projectTitle, status string) (subject, body string) {
	subject = fmt.Sprintf("Your application for %s is now %s", projectTitle, status)
	body = page("Application update", fmt.Sprintf(
		`<p>Hi %s,</p>
  <p>Your application for <strong>%s</strong> has been updated to <strong>%s</strong>.</p>
  <p>Open NexusHub to see the details.</p>`,
		html.EscapeString(applicantName), html.EscapeString(projectTitle), html.EscapeString(status)))
	return subject, body
}

// SubmissionEmail notifies a project owner that work was submitted for
// review.
func SubmissionEmail(ownerName, applicantName, projectTitle string) (subject, body string) {
	subject = fmt.Sprintf("Work submitted for %s", projectTitle)
	body = page("Work submitted for review", fmt.Sprintf(
		`<p>Hi %s,</p>
  <p><strong>%s</strong> has submitted work on <strong>%s</strong> for your review.</p>
  <p>Approve it or request a revision from your NexusHub dashboard.</p>`,
		html.EscapeString(ownerName), html.EscapeString(applicantName), html.EscapeString(projectTitle)))
	return subject, body
}

// ChatMessageEmail notifies a participant about a new chat message.
func ChatMessageEmail(recipientName, senderName, projectTitle, preview string) (subject, body string) {
	subject = fmt.Sprintf("New message from %s", senderName)
	body = page("New chat message", fmt.Sprintf(
		`<p>Hi %s,</p>
  <p><strong>%s</strong> sent you a message about <strong>%s</strong>:</p>
  <blockquote style="border-left: 3px solid #2563eb; padding-left: 12px; color: #4b5563;">%s</blockquote>
  <p>Reply from your NexusHub inbox.</p>`,
		html.EscapeString(recipientName), html.EscapeString(senderName),
		html.EscapeString(projectTitle), html.EscapeString(preview)))
	return subject, body
}
