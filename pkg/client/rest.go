// Package client implements the authenticated Cubo cloud API client:
// login, token lifecycle and the read endpoints the sensors poll.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/cubohome/cubod/pkg/session"
	"github.com/cubohome/cubod/pkg/utils"
)

// errTokenRejected - internal marker for a 401 response, never escapes the package
var errTokenRejected = errors.New("access token rejected")

// CuboClient - client context
type CuboClient struct {
	APIBase       string
	MobileAPIBase string
	SessionStore  *session.Store
	HTTPClient    *http.Client

	refreshGroup singleflight.Group
}

// NewCuboClient - constructor
func NewCuboClient(store *session.Store) *CuboClient {
	return &CuboClient{
		APIBase:       DefaultAPIBase,
		MobileAPIBase: DefaultMobileAPIBase,
		SessionStore:  store,
		HTTPClient:    &http.Client{Timeout: RequestTimeout},
	}
}

// FetchCameras - fetches camera/profile/report-settings arrays
func (c *CuboClient) FetchCameras(ctx context.Context) (*CamerasResponse, error) {
	log.Debug().Msg("Fetching cameras list")

	data := new(CamerasResponse)
	if err := c.fetchAuthorized(ctx, http.MethodGet, c.APIBase+"/user/cameras", "cameras", data); err != nil {
		return nil, err
	}

	return data, nil
}

// FetchCameraState - fetches online/offline state for a single camera
func (c *CuboClient) FetchCameraState(ctx context.Context, deviceID string) (*CameraState, error) {
	endpoint := fmt.Sprintf("%s/camera/state?device_id=%s", c.APIBase, url.QueryEscape(deviceID))

	data := new(CameraState)
	if err := c.fetchAuthorized(ctx, http.MethodGet, endpoint, "camera state", data); err != nil {
		return nil, err
	}

	return data, nil
}

// FetchAlertsPage - fetches one page of the timeline feed starting at since.
// The device_id parameter is passed along but the upstream feed does not
// actually filter on it; filtering happens client side (see pkg/alert).
func (c *CuboClient) FetchAlertsPage(ctx context.Context, since int64, deviceID string) ([]Alert, error) {
	endpoint := fmt.Sprintf("%s/timeline/alerts?since=%d", c.APIBase, since)
	if deviceID != "" {
		endpoint += "&device_id=" + url.QueryEscape(deviceID)
	}

	data := new(alertsResponsePayload)
	if err := c.fetchAuthorized(ctx, http.MethodGet, endpoint, "alerts", data); err != nil {
		return nil, err
	}

	return data.Data, nil
}

// FetchSubscriptions - fetches per-camera subscription records
func (c *CuboClient) FetchSubscriptions(ctx context.Context) ([]Subscription, error) {
	data := new(subscriptionsResponsePayload)
	if err := c.fetchAuthorized(ctx, http.MethodGet, c.APIBase+"/services/v1/subscribed", "subscriptions", data); err != nil {
		return nil, err
	}

	return data.Result, nil
}

// FetchLullabies - fetches the static song catalog
func (c *CuboClient) FetchLullabies(ctx context.Context) ([]Lullaby, error) {
	data := new(lullabiesResponsePayload)
	if err := c.fetchAuthorized(ctx, http.MethodGet, c.APIBase+"/lullaby/songs", "lullabies", data); err != nil {
		return nil, err
	}

	return data.Data, nil
}

// DownloadImage - fetches an alert image with the bearer header
func (c *CuboClient) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	const op = "image download"

	var body []byte
	err := c.withToken(ctx, op, func(token string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return &ProtocolError{Op: op, Err: err}
		}
		c.setHeaders(req, token)

		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return &TransientError{Op: op, Err: err}
		}
		defer res.Body.Close()

		if err := classifyStatus(op, res.StatusCode); err != nil {
			return err
		}

		body, err = io.ReadAll(res.Body)
		if err != nil {
			return &TransientError{Op: op, Err: err}
		}
		return nil
	})

	return body, err
}

// RefreshTokens - exchanges the refresh token for a fresh credential pair and
// persists it. Concurrent callers share a single in-flight refresh so parallel
// pollers never race each other on the token files.
func (c *CuboClient) RefreshTokens(ctx context.Context) (session.Pair, error) {
	v, err, shared := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		return c.refreshTokens(ctx)
	})
	if err != nil {
		return session.Pair{}, err
	}

	if shared {
		log.Debug().Msg("Joined in-flight token refresh")
	}

	return v.(session.Pair), nil
}

func (c *CuboClient) refreshTokens(ctx context.Context) (session.Pair, error) {
	const op = "token refresh"

	// Always start from the latest persisted pair; another process may have
	// rotated the refresh token since we loaded ours.
	pair := c.SessionStore.Pair()
	if pair.RefreshToken == "" {
		return session.Pair{}, &AuthError{Op: op, Err: errors.New("no refresh token")}
	}

	log.Info().Str("refresh_token", utils.AnonymizeToken(pair.RefreshToken, 4)).Msg("Refreshing access token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MobileAPIBase+"/v1/oauth/token", nil)
	if err != nil {
		return session.Pair{}, &ProtocolError{Op: op, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("x-cb-authorization", "")
	req.Header.Set("x-cspp-authorization", "")
	req.Header.Set("x-refresh-authorization", "Bearer "+pair.RefreshToken)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return session.Pair{}, &TransientError{Op: op, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		// The refresh token itself was rejected; only a full re-login helps
		return session.Pair{}, &AuthError{Op: op}
	case res.StatusCode >= 500:
		return session.Pair{}, &TransientError{Op: op, StatusCode: res.StatusCode}
	case res.StatusCode != http.StatusOK:
		return session.Pair{}, &ProtocolError{Op: op, StatusCode: res.StatusCode}
	}

	payload := new(tokenResponsePayload)
	if err := json.NewDecoder(res.Body).Decode(payload); err != nil {
		return session.Pair{}, &ProtocolError{Op: op, Err: err}
	}

	access, refresh := payload.AccessToken, payload.RefreshToken
	if payload.Data != nil {
		access, refresh = payload.Data.AccessToken, payload.Data.RefreshToken
	}

	if access == "" {
		return session.Pair{}, &ProtocolError{Op: op, Err: errors.New("response carries no access token")}
	}

	if refresh == "" {
		// The vendor does not always rotate the refresh token
		refresh = pair.RefreshToken
	}

	fresh := session.Pair{AccessToken: access, RefreshToken: refresh}

	// Persist before any retried call so independent pollers observe the
	// refreshed pair without doing their own refresh
	if err := c.SessionStore.SavePair(fresh); err != nil {
		log.Warn().Err(err).Msg("Unable to persist refreshed credential pair")
	}

	log.Info().Str("access_token", utils.AnonymizeToken(access, 4)).Msg("Access token refreshed")
	return fresh, nil
}

// fetchAuthorized - issues one authorized request, decoding the JSON body into data.
// On a 401 it refreshes the credential pair exactly once and re-issues the
// original call; a second 401 after the refresh surfaces as AuthError.
func (c *CuboClient) fetchAuthorized(ctx context.Context, method string, endpoint string, op string, data interface{}) error {
	return c.withToken(ctx, op, func(token string) error {
		return c.doOnce(ctx, method, endpoint, op, token, data)
	})
}

// withToken - runs call with the current access token, applying the
// single-retry-on-401 policy
func (c *CuboClient) withToken(ctx context.Context, op string, call func(token string) error) error {
	err := call(c.SessionStore.Pair().AccessToken)
	if !errors.Is(err, errTokenRejected) {
		return err
	}

	log.Info().Str("op", op).Msg("Access token might be expired, refreshing")

	fresh, refreshErr := c.RefreshTokens(ctx)
	if refreshErr != nil {
		return refreshErr
	}

	err = call(fresh.AccessToken)
	if errors.Is(err, errTokenRejected) {
		return &AuthError{Op: op, Err: errors.New("fresh access token rejected")}
	}

	return err
}

func (c *CuboClient) doOnce(ctx context.Context, method string, endpoint string, op string, token string, data interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}

	c.setHeaders(req, token)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		// Covers timeouts, connection failures and context expiry
		return &TransientError{Op: op, Err: err}
	}
	defer res.Body.Close()

	if err := classifyStatus(op, res.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(res.Body).Decode(data); err != nil {
		return &ProtocolError{Op: op, Err: err}
	}

	return nil
}

func classifyStatus(op string, code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return errTokenRejected
	case code >= 500:
		return &TransientError{Op: op, StatusCode: code}
	case code != http.StatusOK:
		return &ProtocolError{Op: op, StatusCode: code}
	}

	return nil
}

func (c *CuboClient) setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-cspp-authorization", "Bearer "+token)
}

func (c *CuboClient) userAgent() string {
	if ua := c.SessionStore.Session().UserAgent; ua != "" {
		return ua
	}

	return defaultUserAgent
}
