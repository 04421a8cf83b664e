// Package platform is the REST client for the TripLinked backend. The
// engine consumes every backend capability through it: message fetch/send,
// read receipts, the unread summary and group administration.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Client talks to the platform backend with bearer-token auth.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *zap.Logger
}

// NewClient creates a platform client. baseURL must not end with a slash.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		token:   token,
		logger:  logger,
	}
}

// FetchDirectMessages returns direct messages exchanged with peerID whose id
// is greater than sinceID. sinceID 0 fetches the full history. An empty
// slice means no new messages, never an error.
func (c *Client) FetchDirectMessages(ctx context.Context, peerID string, sinceID int64) ([]Message, error) {
	var msgs []Message
	path := "/messages/direct/" + url.PathEscape(peerID) + sinceQuery(sinceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs, false); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FetchGroupMessages is the group counterpart of FetchDirectMessages. It can
// fail with ErrExcluded.
func (c *Client) FetchGroupMessages(ctx context.Context, groupID string, sinceID int64) ([]Message, error) {
	var msgs []Message
	path := "/messages/group/" + url.PathEscape(groupID) + sinceQuery(sinceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs, true); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendDirectMessage delivers content to peerID and returns the canonical
// record with the server-assigned id and timestamp.
func (c *Client) SendDirectMessage(ctx context.Context, peerID, content string) (*Message, error) {
	var msg Message
	path := "/messages/direct/" + url.PathEscape(peerID)
	if err := c.do(ctx, http.MethodPost, path, sendRequest{Content: content}, &msg, false); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendGroupMessage delivers content to a group chat. It can fail with
// ErrExcluded.
func (c *Client) SendGroupMessage(ctx context.Context, groupID, content string) (*Message, error) {
	var msg Message
	path := "/messages/group/" + url.PathEscape(groupID)
	if err := c.do(ctx, http.MethodPost, path, sendRequest{Content: content}, &msg, true); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkConversationRead flags every message from peerID as viewed. Idempotent.
func (c *Client) MarkConversationRead(ctx context.Context, peerID string) error {
	return c.do(ctx, http.MethodPost, "/messages/direct/"+url.PathEscape(peerID)+"/read", nil, nil, false)
}

// MarkGroupRead advances the local user's read watermark for a group. Idempotent.
func (c *Client) MarkGroupRead(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/messages/group/"+url.PathEscape(groupID)+"/read", nil, nil, true)
}

// ListUnreadSenders powers the global unread summary.
func (c *Client) ListUnreadSenders(ctx context.Context) ([]UnreadSender, error) {
	var senders []UnreadSender
	if err := c.do(ctx, http.MethodGet, "/messages/unread", nil, &senders, false); err != nil {
		return nil, err
	}
	return senders, nil
}

// ListDirectPeers returns the users the local user has direct conversations with.
func (c *Client) ListDirectPeers(ctx context.Context) ([]DirectPeer, error) {
	var peers []DirectPeer
	if err := c.do(ctx, http.MethodGet, "/messages/peers", nil, &peers, false); err != nil {
		return nil, err
	}
	return peers, nil
}

// ListGroups returns the group chats the local user belongs to.
func (c *Client) ListGroups(ctx context.Context) ([]GroupSummary, error) {
	var groups []GroupSummary
	if err := c.do(ctx, http.MethodGet, "/groups", nil, &groups, false); err != nil {
		return nil, err
	}
	return groups, nil
}

// MuteGroup toggles local notification suppression for a group.
func (c *Client) MuteGroup(ctx context.Context, groupID string, mute bool) error {
	return c.do(ctx, http.MethodPut, "/groups/"+url.PathEscape(groupID)+"/mute", muteRequest{Muted: mute}, nil, true)
}

// LeaveGroup removes the local user from a group chat.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/leave", nil, nil, true)
}

// ListGroupParticipants returns the ids of the users currently in a group chat.
func (c *Client) ListGroupParticipants(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/participants", nil, &ids, true); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddParticipant adds userID to a group chat. Owner only.
func (c *Client) AddParticipant(ctx context.Context, groupID, userID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/participants/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodPost, path, nil, nil, true)
}

// RemoveParticipant removes userID from a group chat. Owner only.
func (c *Client) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/participants/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}

// ListTripParticipants returns the authoritative participant list of a trip.
func (c *Client) ListTripParticipants(ctx context.Context, tripID string) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodGet, "/trips/"+url.PathEscape(tripID)+"/participants", nil, &ids, false); err != nil {
		return nil, err
	}
	return ids, nil
}

func sinceQuery(sinceID int64) string {
	if sinceID <= 0 {
		return ""
	}
	return "?since=" + strconv.FormatInt(sinceID, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, groupScoped bool) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := classify(resp, groupScoped)
		if c.logger != nil {
			c.logger.Debug("platform request failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Error(err))
		}
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
