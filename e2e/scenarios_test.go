//go:build e2e

package e2e

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestE2EMainFlow(t *testing.T) {
	server := startServer(t)
	defer server.Stop()

	pw, browser := setupPlaywright(t)
	defer func() { _ = pw.Stop() }()
	defer func() { _ = browser.Close() }()

	page, err := createBrowserContext(t, browser).NewPage()
	require.NoError(t, err)

	// 1. Unauthenticated visitors land on the login page
	_, err = page.Goto(server.BaseURL + "/")
	require.NoError(t, err)
	require.Contains(t, page.URL(), "login.html")

	// 2. Form validation is shown inline
	require.NoError(t, page.Locator("#name").Fill("Taro"))
	require.NoError(t, page.Locator("#email").Fill("taro@example.com"))
	require.NoError(t, page.Locator("#login-submit").Click())
	visible(t, page.Locator("#login-error"))
	text, err := page.Locator("#login-error").InnerText()
	require.NoError(t, err)
	require.Contains(t, text, "Must agree to terms!")

	// 3. Login
	require.NoError(t, page.Locator("#agreedToTerms").Check())
	require.NoError(t, page.Locator("#login-submit").Click())
	visible(t, page.Locator("#contact-list"))
	visible(t, page.Locator(".contact:has-text(\"Gemini-chan\")"))

	// 4. A contact added from the CLI shows up and comes online
	t.Log("Adding contact via CLI...")
	server.AddContact(t, "Hanako", "hanako@example.com")

	hanako := page.Locator(".contact:has-text(\"Hanako\")")
	visible(t, hanako)
	require.Eventually(t, func() bool {
		n, _ := hanako.Locator(".presence.online").Count()
		return n == 1
	}, 5*time.Second, 200*time.Millisecond)

	// 5. Search filters the sidebar
	require.NoError(t, page.Locator("#search").Fill("hana"))
	require.Eventually(t, func() bool {
		n, _ := page.Locator(".contact").Count()
		return n == 1
	}, 5*time.Second, 200*time.Millisecond)
	require.NoError(t, page.Locator("#search").Fill(""))

	// 6. Send a message and wait for the read receipt
	require.NoError(t, hanako.Click())
	require.Eventually(t, func() bool {
		content, _ := page.Locator("#chat-name").InnerText()
		return strings.Contains(content, "Hanako")
	}, 5*time.Second, 200*time.Millisecond)

	msg := "Hello Hanako, ready for the festival?"
	require.NoError(t, page.Locator("#draft").Fill(msg))
	require.NoError(t, page.Locator("#send-btn").Click())

	require.Eventually(t, func() bool {
		content, _ := page.Locator("#messages").InnerHTML()
		return strings.Contains(content, msg)
	}, 5*time.Second, 200*time.Millisecond)

	require.Eventually(t, func() bool {
		n, _ := page.Locator(".message.mine .status.read").Count()
		return n == 1
	}, 5*time.Second, 200*time.Millisecond)

	// 7. Logout returns to the login page and wipes the contact list
	require.NoError(t, page.Locator("#logout-btn").Click())
	require.Eventually(t, func() bool {
		return strings.Contains(page.URL(), "login.html")
	}, 5*time.Second, 200*time.Millisecond)

	require.NoError(t, page.Locator("#name").Fill("Taro"))
	require.NoError(t, page.Locator("#email").Fill("taro@example.com"))
	require.NoError(t, page.Locator("#agreedToTerms").Check())
	require.NoError(t, page.Locator("#login-submit").Click())
	visible(t, page.Locator(".contact:has-text(\"Gemini-chan\")"))

	n, err := page.Locator(".contact").Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
