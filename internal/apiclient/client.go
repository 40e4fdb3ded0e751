// Package apiclient talks to the remote hiring API's authentication endpoints.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	loginPath           = "/auth/login"
	registerPath        = "/auth/register"
	registerCompanyPath = "/auth/register/company"
	federatedPath       = "/auth/federated"

	maxResponseBytes = 1 << 20
)

// Error is a failed API call. Status is 0 when no response was received.
type Error struct {
	Status  int
	Message string
	Data    map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api request failed: %s", e.Message)
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Profile struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Phone     string `json:"phone,omitempty"`
}

type CompanyProfile struct {
	CompanyName string `json:"companyName" validate:"required"`
	ContactName string `json:"contactName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Industry    string `json:"industry,omitempty"`
	CompanySize string `json:"companySize,omitempty"`
	Website     string `json:"website,omitempty" validate:"omitempty,url"`
	Phone       string `json:"phone,omitempty"`
}

type FederatedPayload struct {
	Provider string `json:"provider" validate:"required"`
	IDToken  string `json:"idToken" validate:"required"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// FlexibleID accepts a JSON number or string.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// User is the user record as returned by the API. Role is left as a string;
// the session layer decides what to do with unrecognized values.
type User struct {
	ID               FlexibleID `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	DisplayName      string     `json:"displayName"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	OrganizationName string     `json:"organizationName"`
	CompanyName      string     `json:"companyName"`
	Role             string     `json:"role"`
	EmailVerified    bool       `json:"emailVerified"`
	AvatarURL        string     `json:"avatarUrl"`
	Avatar           string     `json:"avatar"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type envelope struct {
	AuthResponse
	Success *bool         `json:"success"`
	Message string        `json:"message"`
	Data    *AuthResponse `json:"data"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each authentication call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			// copy so a shared client (http.DefaultClient) is left alone
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	return c.post(ctx, loginPath, creds)
}

func (c *Client) Register(ctx context.Context, profile Profile) (*AuthResponse, error) {
	return c.post(ctx, registerPath, profile)
}

func (c *Client) RegisterCompany(ctx context.Context, profile CompanyProfile) (*AuthResponse, error) {
	return c.post(ctx, registerCompanyPath, profile)
}

func (c *Client) AuthenticateWithFederatedProvider(ctx context.Context, payload FederatedPayload) (*AuthResponse, error) {
	return c.post(ctx, federatedPath, payload)
}

func (c *Client) post(ctx context.Context, path string, body any) (*AuthResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	if env.Data != nil && env.Data.Token != "" {
		return env.Data, nil
	}
	return &env.AuthResponse, nil
}

func errorFromResponse(status int, raw []byte) *Error {
	apiErr := &Error{Status: status}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err == nil {
		apiErr.Data = data
		for _, field := range []string{"message", "error"} {
			if s, ok := data[field].(string); ok && strings.TrimSpace(s) != "" {
				apiErr.Message = s
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = "status " + strconv.Itoa(status)
	}
	return apiErr
}
