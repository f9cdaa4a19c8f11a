//go:build e2e

package e2e

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	APIAddr   string
	AdminAddr string
	BaseURL   string
	Dir       string
	Cmd       *exec.Cmd
}

func getFreePort(t *testing.T) int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	require.NoError(t, err)

	l, err := net.ListenTCP("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func (s *TestServer) env() []string {
	return append(os.Environ(),
		"ADMIN_PASSWORD=1337chat",
		"GEMINI_API_KEY=",
		"READ_RECEIPT_DELAY=300ms",
		"ACCEPT_DELAY=500ms",
		fmt.Sprintf("API_ADDR=%s", s.APIAddr),
		fmt.Sprintf("ADMIN_ADDR=%s", s.AdminAddr),
		fmt.Sprintf("BASE_URL=%s", s.BaseURL),
		fmt.Sprintf("CONNECTIFYR_DB=%s", filepath.Join(s.Dir, "e2e.db")),
		fmt.Sprintf("UPLOADS_PATH=%s", filepath.Join(s.Dir, "uploads")),
	)
}

func startServer(t *testing.T) *TestServer {
	apiAddr := fmt.Sprintf("localhost:%d", getFreePort(t))
	s := &TestServer{
		APIAddr:   apiAddr,
		AdminAddr: fmt.Sprintf("localhost:%d", getFreePort(t)),
		BaseURL:   fmt.Sprintf("http://%s", apiAddr),
		Dir:       t.TempDir(),
	}

	s.Cmd = exec.Command(serverBinPath, "serve")
	s.Cmd.Env = s.env()

	// Redirect output to stdout/stderr for debugging if needed
	// s.Cmd.Stdout = os.Stdout
	// s.Cmd.Stderr = os.Stderr

	require.NoError(t, s.Cmd.Start())

	// Wait for server to be ready
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", apiAddr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return true
		}
		return false
	}, 5*time.Second, 200*time.Millisecond, "Server failed to start")

	return s
}

func (s *TestServer) Stop() {
	if s.Cmd != nil && s.Cmd.Process != nil {
		_ = s.Cmd.Process.Kill()
		_ = s.Cmd.Wait()
	}
}

// AddContact runs the add-contact CLI against the running server.
func (s *TestServer) AddContact(t *testing.T, name, email string) {
	cmd := exec.Command(serverBinPath, "add-contact", name, email)
	cmd.Env = s.env()

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to add contact via CLI: %s", string(output))
	require.Contains(t, string(output), "Contact Added!")
}

func setupPlaywright(t *testing.T) (*playwright.Playwright, playwright.Browser) {
	pw, err := playwright.Run()
	require.NoError(t, err)

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	require.NoError(t, err)

	return pw, browser
}

func createBrowserContext(t *testing.T, browser playwright.Browser) playwright.BrowserContext {
	context, err := browser.NewContext()
	require.NoError(t, err)
	return context
}

func visible(t *testing.T, locator playwright.Locator) {
	t.Helper()
	err := locator.WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
	require.NoError(t, err)
}
