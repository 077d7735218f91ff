package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/wardenkit/warden/lib/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errStatusNotFound is mapped to ErrMemberNotFound or ErrChannelNotFound
// by the calling method
var errStatusNotFound = errors.New("gateway returned 404")

// HTTPGateway talks to the platform bridge service over REST. It is the
// production Gateway implementation; tests use MockGateway instead.
type HTTPGateway struct {
	// baseURL is the bridge service root, without trailing slash
	baseURL string

	// token is sent as a bearer token on every request
	token string

	// httpClient is the underlying HTTP client
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway client from the application config
func NewHTTPGateway(cfg *types.GatewayConfig) *HTTPGateway {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &HTTPGateway{
		baseURL: cfg.URL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// doJSON performs a request with an optional JSON body and decodes the
// response into out when out is non-nil
func (g *HTTPGateway) doJSON(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		// nothing to decode
		return nil
	case http.StatusOK, http.StatusCreated:
		// fall through to decode
	case http.StatusNotFound:
		return errStatusNotFound
	default:
		errorBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(errorBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	return nil
}

// mapNotFound converts the generic 404 sentinel into the error matching
// the resource the caller asked about
func mapNotFound(err, target error) error {
	if errors.Is(err, errStatusNotFound) {
		return target
	}
	return err
}

// ResolveMember looks up a member of a community
func (g *HTTPGateway) ResolveMember(communityID, userID string) (*Member, error) {
	var member Member
	path := fmt.Sprintf("/communities/%s/members/%s", url.PathEscape(communityID), url.PathEscape(userID))
	if err := g.doJSON(http.MethodGet, path, nil, &member); err != nil {
		return nil, mapNotFound(err, ErrMemberNotFound)
	}
	return &member, nil
}

// ApplySanction enforces a mute or ban against a member
func (g *HTTPGateway) ApplySanction(communityID, userID string, kind string) error {
	path := fmt.Sprintf("/communities/%s/members/%s/sanctions/%s",
		url.PathEscape(communityID), url.PathEscape(userID), url.PathEscape(kind))
	return mapNotFound(g.doJSON(http.MethodPut, path, nil, nil), ErrMemberNotFound)
}

// LiftSanction removes a mute or ban from a member
func (g *HTTPGateway) LiftSanction(communityID, userID string, kind string) error {
	path := fmt.Sprintf("/communities/%s/members/%s/sanctions/%s",
		url.PathEscape(communityID), url.PathEscape(userID), url.PathEscape(kind))
	return mapNotFound(g.doJSON(http.MethodDelete, path, nil, nil), ErrMemberNotFound)
}

// HasSanction reports whether the member currently carries the sanction
func (g *HTTPGateway) HasSanction(communityID, userID string, kind string) (bool, error) {
	var result struct {
		Active bool `json:"active"`
	}
	path := fmt.Sprintf("/communities/%s/members/%s/sanctions/%s",
		url.PathEscape(communityID), url.PathEscape(userID), url.PathEscape(kind))
	if err := g.doJSON(http.MethodGet, path, nil, &result); err != nil {
		return false, mapNotFound(err, ErrMemberNotFound)
	}
	return result.Active, nil
}

// KickMember removes a member from the community without banning
func (g *HTTPGateway) KickMember(communityID, userID string) error {
	path := fmt.Sprintf("/communities/%s/members/%s", url.PathEscape(communityID), url.PathEscape(userID))
	return mapNotFound(g.doJSON(http.MethodDelete, path, nil, nil), ErrMemberNotFound)
}

// CreateRestrictedChannel provisions a channel restricted to the allow list
func (g *HTTPGateway) CreateRestrictedChannel(communityID, categoryID, name string, allowList []string) (string, error) {
	request := struct {
		CategoryID string   `json:"category_id"`
		Name       string   `json:"name"`
		AllowList  []string `json:"allow_list"`
	}{
		CategoryID: categoryID,
		Name:       name,
		AllowList:  allowList,
	}

	var result struct {
		ChannelRef string `json:"channel_ref"`
	}

	path := fmt.Sprintf("/communities/%s/channels", url.PathEscape(communityID))
	if err := g.doJSON(http.MethodPost, path, request, &result); err != nil {
		return "", mapNotFound(err, ErrChannelNotFound)
	}
	return result.ChannelRef, nil
}

// DeleteChannel reclaims a provisioned channel
func (g *HTTPGateway) DeleteChannel(channelRef string) error {
	return mapNotFound(g.doJSON(http.MethodDelete, "/channels/"+url.PathEscape(channelRef), nil, nil), ErrChannelNotFound)
}

// SendChannelMessage posts content to a channel
func (g *HTTPGateway) SendChannelMessage(channelRef, content string) error {
	request := struct {
		Content string `json:"content"`
	}{Content: content}
	return mapNotFound(g.doJSON(http.MethodPost, "/channels/"+url.PathEscape(channelRef)+"/messages", request, nil), ErrChannelNotFound)
}

// SendDirectMessage delivers content to a user's direct messages
func (g *HTTPGateway) SendDirectMessage(userID, content string) error {
	request := struct {
		Content string `json:"content"`
	}{Content: content}
	return mapNotFound(g.doJSON(http.MethodPost, "/users/"+url.PathEscape(userID)+"/messages", request, nil), ErrMemberNotFound)
}

// FetchChannelHistory returns one page of channel messages, oldest first
func (g *HTTPGateway) FetchChannelHistory(channelRef string, page int) ([]Message, error) {
	var messages []Message
	path := fmt.Sprintf("/channels/%s/history?page=%d", url.PathEscape(channelRef), page)
	if err := g.doJSON(http.MethodGet, path, nil, &messages); err != nil {
		return nil, mapNotFound(err, ErrChannelNotFound)
	}
	return messages, nil
}
