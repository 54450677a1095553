// Package backend is the JSON-over-HTTPS client for the dinner-hopping
// platform. Every call carries the chat session's bearer token and a
// request id; non-2xx answers are mapped onto apperrors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/models"
)

const maxBody = 1 << 20

type Client struct {
	baseURL string
	hc      *http.Client
}

// New builds a client authenticated with a session bearer token.
func New(baseURL, token string, timeout time.Duration) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.Background(), ts)
	hc.Timeout = timeout
	return NewWithHTTPClient(baseURL, hc)
}

func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

// ---------- Reads ----------

func (c *Client) ActiveRegistrations(ctx context.Context) ([]models.Registration, error) {
	var out registrationList
	if err := c.do(ctx, http.MethodGet, "/registrations/events/active", nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegistrationStatus(ctx context.Context) ([]models.Registration, error) {
	var out registrationList
	if err := c.do(ctx, http.MethodGet, "/registrations/registration-status", nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Invitations(ctx context.Context) ([]models.Invitation, error) {
	var out invitationList
	if err := c.do(ctx, http.MethodGet, "/invitations/", nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Event(ctx context.Context, eventID string) (models.Event, error) {
	var ev models.Event
	err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID), nil, &ev, nil)
	return ev, err
}

func (c *Client) Profile(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	err := c.do(ctx, http.MethodGet, "/profile", nil, &p, nil)
	return p, err
}

func (c *Client) Team(ctx context.Context, teamID string) (models.Team, error) {
	var t models.Team
	err := c.do(ctx, http.MethodGet, "/registrations/teams/"+url.PathEscape(teamID), nil, &t, nil)
	return t, err
}

func (c *Client) Providers(ctx context.Context) (models.ProviderCatalog, error) {
	var cat models.ProviderCatalog
	err := c.do(ctx, http.MethodGet, "/payments/providers", nil, &cat, nil)
	return cat, err
}

// ---------- Registration ----------

func (c *Client) RegisterSolo(ctx context.Context, req SoloRequest, idempotencyKey string) (RegistrationResponse, error) {
	var out RegistrationResponse
	err := c.do(ctx, http.MethodPost, "/registrations/solo", req, &out, idempotency(idempotencyKey))
	return out, err
}

func (c *Client) RegisterTeam(ctx context.Context, req TeamRequest, idempotencyKey string) (RegistrationResponse, error) {
	var out RegistrationResponse
	err := c.do(ctx, http.MethodPost, "/registrations/team", req, &out, idempotency(idempotencyKey))
	return out, err
}

// ---------- Payments ----------

// CreatePayment posts to endpoint, or to /payments/create when endpoint is
// empty. endpoint may be a path or an absolute URL handed out by the server.
func (c *Client) CreatePayment(ctx context.Context, endpoint string, req PaymentRequest) (PaymentResponse, error) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = "/payments/create"
	}
	var out PaymentResponse
	err := c.do(ctx, http.MethodPost, endpoint, req, &out, nil)
	return out, err
}

// ---------- Cancellation ----------

func (c *Client) CancelRegistration(ctx context.Context, registrationID string) error {
	return c.do(ctx, http.MethodDelete, "/registrations/"+url.PathEscape(registrationID), nil, nil, nil)
}

func (c *Client) CancelTeam(ctx context.Context, teamID string) error {
	return c.do(ctx, http.MethodPost, "/registrations/teams/"+url.PathEscape(teamID)+"/cancel", nil, nil, nil)
}

func (c *Client) CancelTeamMember(ctx context.Context, teamID, registrationID string) error {
	path := fmt.Sprintf("/registrations/teams/%s/members/%s/cancel", url.PathEscape(teamID), url.PathEscape(registrationID))
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// ---------- Invitations ----------

func (c *Client) AcceptInvitationByRegistration(ctx context.Context, registrationID string) (InvitationResponse, error) {
	var out InvitationResponse
	err := c.do(ctx, http.MethodPost, "/invitations/by-registration/"+url.PathEscape(registrationID)+"/accept", nil, &out, nil)
	return out, err
}

func (c *Client) AcceptInvitationByID(ctx context.Context, invitationID string) (InvitationResponse, error) {
	var out InvitationResponse
	err := c.do(ctx, http.MethodPost, "/invitations/by-id/"+url.PathEscape(invitationID)+"/accept", nil, &out, nil)
	return out, err
}

func (c *Client) RevokeInvitation(ctx context.Context, invitationID string) (InvitationResponse, error) {
	var out InvitationResponse
	err := c.do(ctx, http.MethodPost, "/invitations/"+url.PathEscape(invitationID)+"/revoke", nil, &out, nil)
	return out, err
}

// ---------- transport ----------

func idempotency(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Idempotency-Key": key}
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeServer, "Could not reach the dinner-hopping server. Please try again.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeServer, "The server response was cut off. Please try again.", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.FromResponse(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.CodeServer, "The server sent an unexpected answer.", fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// registrationList accepts a bare array or an object wrapping one.
type registrationList []models.Registration

func (l *registrationList) UnmarshalJSON(data []byte) error {
	var list []models.Registration
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var wrapped struct {
		Registrations []models.Registration `json:"registrations"`
		Items         []models.Registration `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = append(wrapped.Registrations, wrapped.Items...)
	return nil
}

type invitationList []models.Invitation

func (l *invitationList) UnmarshalJSON(data []byte) error {
	var list []models.Invitation
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var wrapped struct {
		Invitations []models.Invitation `json:"invitations"`
		Items       []models.Invitation `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = append(wrapped.Invitations, wrapped.Items...)
	return nil
}
