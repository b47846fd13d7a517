package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/availex/twitch-gateway-go/internal/constants"
	"github.com/availex/twitch-gateway-go/internal/model"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
	"github.com/availex/twitch-gateway-go/internal/workerpool"
)

type subscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport struct {
		Method    string `json:"method"`
		SessionID string `json:"session_id"`
	} `json:"transport"`
}

// CreateSubscriptions issues one create-subscription call per
// descriptor, bound to the given session. A Forbidden (missing scope)
// or BadRequest (unsupported type/version) response for one descriptor
// is logged and skipped; any other failure aborts the batch.
func (g *Gateway) CreateSubscriptions(ctx context.Context, broadcasterID, userID, sessionID string, descs []model.Descriptor) error {
	return workerpool.Run(ctx, descs, constants.SubscribeWorkers, func(ctx context.Context, d model.Descriptor) error {
		if err := g.createSubscription(ctx, d, broadcasterID, userID, sessionID); err != nil {
			if twitcherr.IsForbidden(err) || twitcherr.IsBadRequest(err) {
				g.log.Warn("Skipping subscription",
					"type", d.EventType, "version", d.Version, "error", err)
				return nil
			}
			return fmt.Errorf("subscribing to %s: %w", d.EventType, err)
		}
		g.log.Debug("Subscription created", "type", d.EventType, "session", sessionID)
		return nil
	})
}

func (g *Gateway) createSubscription(ctx context.Context, d model.Descriptor, broadcasterID, userID, sessionID string) error {
	body := subscriptionRequest{
		Type:      d.EventType,
		Version:   d.Version,
		Condition: d.Condition(broadcasterID, userID),
	}
	body.Transport.Method = "websocket"
	body.Transport.SessionID = sessionID

	return g.Do(ctx, Route{Method: http.MethodPost, Path: "eventsub/subscriptions"}, body, nil)
}

// DeleteSubscription removes one EventSub subscription by id.
func (g *Gateway) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	route := Route{
		Method: http.MethodDelete,
		Path:   "eventsub/subscriptions",
		Query:  url.Values{"id": {subscriptionID}},
	}
	return g.Do(ctx, route, nil, nil)
}
