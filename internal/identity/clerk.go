// Package identity resolves registrants against the Clerk identity
// provider: profile lookups by external id and verification of the
// svix-signed user lifecycle webhooks.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the provider has no such user.
var ErrNotFound = errors.New("identity: user not found")

// ErrNotConfigured is returned when no secret key is set.
var ErrNotConfigured = errors.New("identity: clerk secret key not configured")

// Profile is the subset of a Clerk user the registry stores.
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
}

// FullName joins first and last names.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the user object shared by the REST API and webhook payloads.
type UserData struct {
	ID                    string         `json:"id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              string         `json:"image_url"`
}

// Profile flattens the user, preferring the primary email address.
func (u UserData) Profile() Profile {
	p := Profile{ID: u.ID, ImageURL: u.ImageURL}
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			p.Email = e.EmailAddress
			break
		}
	}
	if p.Email == "" && len(u.EmailAddresses) > 0 {
		p.Email = u.EmailAddresses[0].EmailAddress
	}
	return p
}

// Client fetches users from the Clerk backend API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *slog.Logger
}

// NewClient builds a Client.  baseURL defaults to the public Clerk API.
func NewClient(baseURL, secretKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.clerk.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
		log:       logger,
	}
}

// GetUser returns the profile for a Clerk user id.
func (c *Client) GetUser(ctx context.Context, externalID string) (Profile, error) {
	if c.secretKey == "" {
		return Profile{}, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/users/"+url.PathEscape(externalID), nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("clerk get user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.log.Error("clerk lookup failed", "user_id", externalID, "status", resp.StatusCode)
		return Profile{}, fmt.Errorf("clerk get user: status %d", resp.StatusCode)
	}
	var u UserData
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return Profile{}, fmt.Errorf("clerk get user: decode: %w", err)
	}
	return u.Profile(), nil
}
