package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"connectifyr/internal/api"
	"connectifyr/internal/config"
)

// AddContact asks the running server to add a contact through the admin API.
func AddContact(out io.Writer, name, email string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddContactRequest{Name: name, Email: email})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/contacts", cfg.AdminAddr)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(cfg.AdminUser, cfg.AdminPassword)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("failed to add contact (Status: %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result api.AddContactResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Contact == nil {
		return fmt.Errorf("admin API returned no contact")
	}

	_, _ = fmt.Fprintf(out, "\nContact Added!\n")
	_, _ = fmt.Fprintf(out, "ID:     %s\n", result.Contact.ID)
	_, _ = fmt.Fprintf(out, "Name:   %s\n", result.Contact.Name)
	_, _ = fmt.Fprintf(out, "Email:  %s\n", result.Contact.Email)
	_, _ = fmt.Fprintf(out, "Status: %s (accepts shortly)\n\n", result.Contact.Status)
	return nil
}
