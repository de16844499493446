package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dmaran/parley/internal/model"
)

// Client talks to the chat backend's REST API: paged message history,
// conversation and group lists, sends, and mark-read acknowledgments. The
// backend is the source of truth; everything here is a read-repair or an
// intent, never local state.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a REST client for the given base URL (e.g. http://host/api).
func New(baseURL, token string) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{},
	}
}

// SendRequest is one message submission. Exactly one of ConversationID and
// GroupID is set. Attachment is optional.
type SendRequest struct {
	Content        string
	ConversationID string
	GroupID        string
	Attachment     *Upload
}

// Upload is a file to attach to a send.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ProgressFunc receives upload progress ticks as (loaded, total) bytes.
type ProgressFunc func(loaded, total int64)

// ListMessages fetches one history page, oldest first within the page.
// A page shorter than pageSize means there are no older pages.
func (c *Client) ListMessages(ctx context.Context, threadID string, isGroup bool, page, pageSize int) ([]model.Message, error) {
	scope := "conversation"
	if isGroup {
		scope = "group"
	}
	url := fmt.Sprintf("%s/messages/%s/%s?page=%d&limit=%d", c.base, scope, threadID, page, pageSize)

	var msgs []model.Message
	if err := c.getJSON(ctx, url, &msgs); err != nil {
		return nil, fmt.Errorf("%w: messages for %s: %v", model.ErrFetchFailed, threadID, err)
	}
	return msgs, nil
}

// ListConversations fetches all direct conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.getJSON(ctx, c.base+"/conversations", &out); err != nil {
		return nil, fmt.Errorf("%w: conversations: %v", model.ErrFetchFailed, err)
	}
	for i := range out {
		out[i].Kind = model.KindDirect
	}
	return out, nil
}

// ListGroups fetches all group summaries.
func (c *Client) ListGroups(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.getJSON(ctx, c.base+"/groups", &out); err != nil {
		return nil, fmt.Errorf("%w: groups: %v", model.ErrFetchFailed, err)
	}
	for i := range out {
		out[i].Kind = model.KindGroup
	}
	return out, nil
}

// Send submits a message and returns the authoritative server record.
// With an attachment the request is multipart and onProgress receives
// upload ticks; text-only sends go as JSON.
func (c *Client) Send(ctx context.Context, req SendRequest, onProgress ProgressFunc) (model.Message, error) {
	var (
		body        io.Reader
		contentType string
	)

	if req.Attachment != nil {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		fw, err := mw.CreateFormFile("file", req.Attachment.Name)
		if err != nil {
			return model.Message{}, fmt.Errorf("%w: %v", model.ErrSendFailed, err)
		}
		if _, err := fw.Write(req.Attachment.Data); err != nil {
			return model.Message{}, fmt.Errorf("%w: %v", model.ErrSendFailed, err)
		}
		_ = mw.WriteField("content", req.Content)
		if req.GroupID != "" {
			_ = mw.WriteField("groupId", req.GroupID)
		} else {
			_ = mw.WriteField("conversationId", req.ConversationID)
		}
		if err := mw.Close(); err != nil {
			return model.Message{}, fmt.Errorf("%w: %v", model.ErrSendFailed, err)
		}
		total := int64(buf.Len())
		body = &progressReader{r: buf, total: total, onProgress: onProgress}
		contentType = mw.FormDataContentType()
	} else {
		payload, err := json.Marshal(map[string]string{
			"content":        req.Content,
			"conversationId": req.ConversationID,
			"groupId":        req.GroupID,
		})
		if err != nil {
			return model.Message{}, fmt.Errorf("%w: %v", model.ErrSendFailed, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/messages", body)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", model.ErrSendFailed, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", model.ErrSendFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Message{}, fmt.Errorf("%w: status %d", model.ErrSendFailed, resp.StatusCode)
	}

	var confirmed model.Message
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return model.Message{}, fmt.Errorf("%w: decode response: %v", model.ErrSendFailed, err)
	}
	if confirmed.Status == "" {
		confirmed.Status = model.StatusConfirmed
	}
	return confirmed, nil
}

// MarkRead acknowledges that the local user read a thread.
func (c *Client) MarkRead(ctx context.Context, threadID string, isGroup bool) error {
	scope := "conversations"
	if isGroup {
		scope = "groups"
	}
	url := fmt.Sprintf("%s/%s/%s/read", c.base, scope, threadID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrFetchFailed, err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: mark read %s: %v", model.ErrFetchFailed, threadID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: mark read %s: status %d", model.ErrFetchFailed, threadID, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// progressReader counts bytes as the HTTP client drains the request body.
type progressReader struct {
	r          io.Reader
	total      int64
	loaded     int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.loaded, p.total)
		}
	}
	return n, err
}
