package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/njoerd114/wpmirror/internal/model"
)

// createResponse is the part of a created post we keep.
type createResponse struct {
	ID      int    `json:"id"`
	Slug    string `json:"slug"`
	Link    string `json:"link"`
	Type    string `json:"type"`
	Author  int    `json:"author"`
	Title   struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Rendered string `json:"rendered"`
	} `json:"content"`
}

// CreatePost POSTs payload to the collection. Success is exactly 201; any
// other status returns a *StatusError wrapping ErrCreateRejected. A 201 whose
// body cannot be decoded returns a *StatusError wrapping ErrMalformedResponse.
func (c *Client) CreatePost(ctx context.Context, collection model.Collection, payload model.PostPayload) (model.PostHandle, error) {
	status, body, err := c.sendJSON(ctx, http.MethodPost, "/"+string(collection), payload)
	if err != nil {
		return model.PostHandle{}, err
	}
	if status != http.StatusCreated {
		return model.PostHandle{}, statusError("create post", status, body, ErrCreateRejected)
	}

	var cr createResponse
	if err := json.Unmarshal(body, &cr); err != nil || cr.ID == 0 {
		if err == nil {
			err = fmt.Errorf("no id in response")
		}
		return model.PostHandle{}, &StatusError{Op: "create post", Status: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	h := model.PostHandle{
		ID:      cr.ID,
		Slug:    cr.Slug,
		Title:   cr.Title.Rendered,
		Content: cr.Content.Rendered,
		Type:    cr.Type,
		Author:  cr.Author,
		Link:    cr.Link,
	}
	c.log.Info("post created", "id", h.ID, "slug", h.Slug, "type", h.Type)
	return h, nil
}

// UpdatePost POSTs a partial update (e.g. meta fields) to an existing post.
func (c *Client) UpdatePost(ctx context.Context, collection model.Collection, id int, fields map[string]any) error {
	status, body, err := c.sendJSON(ctx, http.MethodPost, fmt.Sprintf("/%s/%d", collection, id), fields)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return statusError("update post", status, body, nil)
	}
	return nil
}

// PublishPost sets status=publish. Publishing an already published post is
// a no-op on the server side.
func (c *Client) PublishPost(ctx context.Context, collection model.Collection, id int) error {
	if err := c.UpdatePost(ctx, collection, id, map[string]any{"status": "publish"}); err != nil {
		return fmt.Errorf("publishing post %d: %w", id, err)
	}
	c.log.Info("post published", "id", id)
	return nil
}

// DeletePost moves a post to the trash. A 404 or 410 means it is already
// gone and is not an error.
func (c *Client) DeletePost(ctx context.Context, collection model.Collection, id int) error {
	status, body, err := c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/%s/%d", collection, id), nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		c.log.Warn("post already deleted", "id", id, "status", status)
		return nil
	case status < 200 || status >= 300:
		return statusError("delete post", status, body, nil)
	}
	c.log.Info("post deleted", "id", id)
	return nil
}

// Term is the body of a taxonomy term create.
type Term struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateTerm creates a term in taxonomy t and returns its id. When the term
// already exists WordPress answers 400 term_exists with the existing id,
// which is returned instead of an error.
func (c *Client) CreateTerm(ctx context.Context, t model.Taxonomy, term Term) (int, error) {
	status, body, err := c.sendJSON(ctx, http.MethodPost, "/"+t.ValuesKey(), term)
	if err != nil {
		return 0, err
	}

	if status == http.StatusBadRequest && gjson.GetBytes(body, "code").String() == "term_exists" {
		if id := gjson.GetBytes(body, "data.term_id").Int(); id > 0 {
			c.log.Debug("term exists", "taxonomy", t, "name", term.Name, "id", id)
			return int(id), nil
		}
	}
	if status != http.StatusCreated {
		return 0, statusError("create term", status, body, ErrCreateRejected)
	}

	id := gjson.GetBytes(body, "id")
	if !gjson.ValidBytes(body) || id.Int() == 0 {
		return 0, &StatusError{Op: "create term", Status: status, Err: ErrMalformedResponse}
	}
	c.log.Info("term created", "taxonomy", t, "name", term.Name, "id", id.Int())
	return int(id.Int()), nil
}
