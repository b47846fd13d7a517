package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/availex/twitch-gateway-go/internal/model"
)

type listResponse[T any] struct {
	Data       []T `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// GetUsers looks up users by login name. At most 100 logins per call.
func (g *Gateway) GetUsers(ctx context.Context, logins []string) ([]model.User, error) {
	query := url.Values{}
	for _, login := range logins {
		query.Add("login", login)
	}

	var resp listResponse[model.User]
	if err := g.Do(ctx, Route{Method: http.MethodGet, Path: "users", Query: query}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetFollowedChannels returns a paginator over the channels the given
// user follows.
func (g *Gateway) GetFollowedChannels(userID string) *Paginator[model.FollowedChannel] {
	return NewPaginator(func(ctx context.Context, cursor string) (Page[model.FollowedChannel], error) {
		query := url.Values{"user_id": {userID}, "first": {"100"}}
		if cursor != "" {
			query.Set("after", cursor)
		}

		var resp listResponse[model.FollowedChannel]
		route := Route{Method: http.MethodGet, Path: "channels/followed", Query: query}
		if err := g.Do(ctx, route, nil, &resp); err != nil {
			return Page[model.FollowedChannel]{}, err
		}
		return Page[model.FollowedChannel]{Items: resp.Data, Cursor: resp.Pagination.Cursor}, nil
	})
}
