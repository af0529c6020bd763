package chatwork

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatwork-bot/models"
)

// DefaultBaseURL is the Chatwork API v2 endpoint.
const DefaultBaseURL = "https://api.chatwork.com/v2"

// Client is a minimal Chatwork API v2 client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Chatwork client authenticated with the given token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint.
// Used by tests to target an httptest server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// SendMessage posts a message to a room.
func (c *Client) SendMessage(roomID int64, body string) error {
	form := url.Values{}
	form.Set("body", body)

	endpoint := fmt.Sprintf("%s/rooms/%d/messages", c.baseURL, roomID)
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, nil)
}

// SendReply posts a reply to a specific message, addressing the original
// sender with the Chatwork reply markup.
func (c *Client) SendReply(roomID int64, messageID string, accountID int64, body string) error {
	reply := fmt.Sprintf("[rp aid=%d to=%d-%s][pname:%d]さん\n%s", accountID, roomID, messageID, accountID, body)
	return c.SendMessage(roomID, reply)
}

// DeleteMessage removes a single message from a room.
func (c *Client) DeleteMessage(roomID int64, messageID string) error {
	endpoint := fmt.Sprintf("%s/rooms/%d/messages/%s", c.baseURL, roomID, messageID)
	req, err := http.NewRequest(http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, nil)
}

// GetMembers returns the member list of a room with their roles.
func (c *Client) GetMembers(roomID int64) ([]models.Member, error) {
	endpoint := fmt.Sprintf("%s/rooms/%d/members", c.baseURL, roomID)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var members []models.Member
	if err := c.do(req, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// UpdateMemberRoles replaces the three role sets of a room. The API requires
// all sets on every call, so callers recompute them in full.
func (c *Client) UpdateMemberRoles(roomID int64, adminIDs, memberIDs, readonlyIDs []int64) error {
	form := url.Values{}
	form.Set("members_admin_ids", joinIDs(adminIDs))
	form.Set("members_member_ids", joinIDs(memberIDs))
	form.Set("members_readonly_ids", joinIDs(readonlyIDs))

	endpoint := fmt.Sprintf("%s/rooms/%d/members", c.baseURL, roomID)
	req, err := http.NewRequest(http.MethodPut, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, nil)
}

// GetRooms returns every room the bot participates in, in API order.
func (c *Client) GetRooms() ([]models.Room, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/rooms", nil)
	if err != nil {
		return nil, err
	}

	var rooms []models.Room
	if err := c.do(req, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetRoom returns the metadata of a single room.
func (c *Client) GetRoom(roomID int64) (*models.Room, error) {
	endpoint := fmt.Sprintf("%s/rooms/%d", c.baseURL, roomID)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := c.do(req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetMemberCount returns the number of members of a room.
func (c *Client) GetMemberCount(roomID int64) (int, error) {
	members, err := c.GetMembers(roomID)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// do sends the request with the API token and decodes the response body into
// out when out is not nil.
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("X-ChatWorkToken", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatwork API %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chatwork API %s %s: decoding response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
