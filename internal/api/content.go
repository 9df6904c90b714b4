package api

import (
	"context"
	"net/http"
	"net/url"

	"yotoup/internal/card"
	"yotoup/internal/services"
)

const (
	contentPath = "/content"
	minePath    = "/content/mine"
)

type cardEnvelope struct {
	Card *card.Card `json:"card"`
}

// GetCard fetches one card document. Reads go through the response cache when
// it is enabled.
func (c *Client) GetCard(ctx context.Context, cardID string) (*card.Card, error) {
	var resp cardEnvelope
	if err := c.doJSON(ctx, http.MethodGet, cardPath(cardID), nil, nil, &resp, true); err != nil {
		return nil, err
	}
	if resp.Card == nil {
		return nil, services.Wrap(services.ErrContentService, "api", "get card", "response has no card", nil)
	}
	return resp.Card, nil
}

// PostCard sends a full card document and returns the service's copy. doc is
// usually a *card.Card; restore may pass a raw document.
func (c *Client) PostCard(ctx context.Context, doc any) (*card.Card, error) {
	var resp cardEnvelope
	if err := c.PostJSON(ctx, contentPath, doc, &resp); err != nil {
		return nil, err
	}
	if resp.Card == nil {
		return nil, services.Wrap(services.ErrContentService, "api", "post card", "response has no card", nil)
	}
	c.invalidate(cardPath(resp.Card.CardID))
	c.invalidate(minePath)
	return resp.Card, nil
}

// DeleteCard removes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID string) error {
	if err := c.Delete(ctx, cardPath(cardID)); err != nil {
		return err
	}
	c.invalidate(cardPath(cardID))
	c.invalidate(minePath)
	return nil
}

// ListCards returns the cards owned by the authenticated user.
func (c *Client) ListCards(ctx context.Context) ([]card.Card, error) {
	var resp struct {
		Cards []card.Card `json:"cards"`
	}
	if err := c.doJSON(ctx, http.MethodGet, minePath, nil, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Cards, nil
}

func cardPath(cardID string) string {
	return contentPath + "/" + url.PathEscape(cardID)
}
