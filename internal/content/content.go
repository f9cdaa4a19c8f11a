package content

import (
	"bytes"
	"html"
	"html/template"
	"strings"

	"connectifyr/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
	md     = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// Sanitize removes unsafe HTML from the input string using the UGC policy.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Plain strips every tag and returns plain text, entities decoded. The UI
// renders names as text nodes, so "&" stays "&".
func Plain(input string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}

// Escape escapes special characters like "<" to become "&lt;".
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// RenderMarkdown turns AI replies into safe HTML.
func RenderMarkdown(input string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(input), &buf); err != nil {
		return Escape(input)
	}
	return Sanitize(buf.String())
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateLogin checks the login form. Errors carry the text shown to the user.
func ValidateLogin(name, email string, agreedToTerms bool) error {
	if strings.TrimSpace(name) == "" {
		return &models.ValidationError{Field: "name", Message: "Name is required!"}
	}
	if !strings.Contains(email, "@") {
		return &models.ValidationError{Field: "email", Message: "Valid email required!"}
	}
	if !agreedToTerms {
		return &models.ValidationError{Field: "agreedToTerms", Message: "Must agree to terms!"}
	}
	return nil
}

// ValidateContact checks the add-contact form.
func ValidateContact(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return &models.ValidationError{Field: "name", Message: "Name is required!"}
	}
	if !strings.Contains(email, "@") {
		return &models.ValidationError{Field: "email", Message: "Valid email required!"}
	}
	return nil
}
