// Package directory resolves approver positions to concrete users through
// the external identity/position directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrPositionNotFound indicates the directory knows no such position.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionVacant indicates the position exists but no user occupies it.
	ErrPositionVacant = errors.New("position has no occupant")
)

// Resolver maps an approver position to the user who will act on a step.
//
// The default strategy picks a single representative occupant of the
// position; it is deliberately not load-balanced across multiple holders.
// Swap in another Resolver to change that.
type Resolver interface {
	Resolve(ctx context.Context, positionID string, authToken string) (userID string, err error)
}

// HTTPResolver calls the position directory service over HTTP.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type occupantsResponse struct {
	UserIDs []string `json:"user_ids"`
}

// Resolve fetches the position occupants and returns the first one.
func (r *HTTPResolver) Resolve(ctx context.Context, positionID string, authToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/positions/%s/occupants", r.baseURL, url.PathEscape(positionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build directory request: %w", err)
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("directory request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("position %s: %w", positionID, ErrPositionNotFound)
	default:
		return "", fmt.Errorf("directory returned status %d for position %s", resp.StatusCode, positionID)
	}

	var payload occupantsResponse

	err = json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil {
		return "", fmt.Errorf("failed to decode directory response: %w", err)
	}

	if len(payload.UserIDs) == 0 {
		return "", fmt.Errorf("position %s: %w", positionID, ErrPositionVacant)
	}

	return payload.UserIDs[0], nil
}

// StaticResolver serves a fixed position-to-user mapping; used in tests and
// local development.
type StaticResolver struct {
	occupants map[string]string
}

func NewStaticResolver(occupants map[string]string) *StaticResolver {
	return &StaticResolver{occupants: occupants}
}

func (r *StaticResolver) Resolve(ctx context.Context, positionID string, authToken string) (string, error) {
	userID, ok := r.occupants[positionID]
	if !ok {
		return "", fmt.Errorf("position %s: %w", positionID, ErrPositionNotFound)
	}

	return userID, nil
}
