package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxProfileBytes = 1 << 20

// Yandex talks to the Yandex OAuth endpoints.
type Yandex struct {
	cfg         *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// YandexConfig holds the configuration for the Yandex OAuth provider
type YandexConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Timeout      time.Duration
}

type profileResponse struct {
	Email string `json:"email"`
}

// NewYandex creates a new Yandex OAuth provider with the given configuration
func NewYandex(cfg YandexConfig) *Yandex {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Yandex{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		client:      &http.Client{Timeout: timeout},
	}
}

// AuthorizationURL is the consent page URL. It carries no state parameter.
func (y *Yandex) AuthorizationURL() string {
	return y.cfg.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for the upstream access token.
func (y *Yandex) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, y.client)

	tok, err := y.cfg.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return "", fmt.Errorf("token endpoint returned %d", rerr.Response.StatusCode)
		}

		return "", fmt.Errorf("exchange: %w", err)
	}

	if tok.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}

	return tok.AccessToken, nil
}

// FetchProfile reads the email of the upstream account.
func (y *Yandex) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return Profile{}, fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}

	var pr profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&pr); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	email := strings.TrimSpace(pr.Email)
	if email == "" {
		return Profile{}, errors.New("profile has no email")
	}

	return Profile{Email: email}, nil
}
