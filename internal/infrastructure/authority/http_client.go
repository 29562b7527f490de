package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"
	"streamgate/pkg/errors"
)

// Client is the HTTP side of the token authority boundary. It imposes no
// timeout or retry of its own; the supplied http.Client governs both.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type issueRequest struct {
	Channel        string `json:"channel"`
	UID            uint32 `json:"uid"`
	Role           string `json:"role"`
	ExpirationTime int64  `json:"expirationTime,omitempty"`
}

type issueResponse struct {
	Token     string `json:"token"`
	UID       uint32 `json:"uid"`
	Channel   string `json:"channel"`
	AppID     string `json:"appId"`
	ExpiresAt int64  `json:"expiresAt"`
	Role      string `json:"role"`
	Message   string `json:"message"`

	Error string `json:"error"`
}

// Issue requests a credential from the remote authority.
func (c *Client) Issue(ctx context.Context, req domain.TokenRequest) (*domain.Credential, error) {
	body, err := json.Marshal(issueRequest{
		Channel:        string(req.Channel),
		UID:            uint32(req.Subject),
		Role:           string(req.Role),
		ExpirationTime: req.LifetimeSeconds,
	})
	if err != nil {
		return nil, errors.NewNetworkFailureError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewNetworkFailureError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkFailureError(err)
	}
	defer resp.Body.Close()

	var decoded issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.NewNetworkFailureError(fmt.Errorf("decoding authority response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapAuthorityError(resp.StatusCode, decoded)
	}

	return &domain.Credential{
		Channel:     domain.ChannelID(decoded.Channel),
		Subject:     domain.SubjectID(decoded.UID),
		Role:        domain.Role(decoded.Role),
		AppID:       decoded.AppID,
		SignedValue: decoded.Token,
		ExpiresAt:   decoded.ExpiresAt,
	}, nil
}

// mapAuthorityError reconstructs the typed error the authority reported, so
// validation and configuration failures stay distinguishable from transient
// ones on this side of the wire.
func mapAuthorityError(status int, resp issueResponse) error {
	switch resp.Error {
	case "Missing required parameters":
		return errors.NewMissingParameterError("channel", "uid", "role")
	case "Invalid role":
		return errors.NewInvalidRoleError("")
	case "Server configuration error":
		return errors.NewServerMisconfiguredError(resp.Message)
	default:
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return errors.NewIssuanceFailedError(fmt.Errorf("%s", msg))
	}
}

var _ ports.TokenSource = (*Client)(nil)
