package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kirill483/auth-notify/internal/model"
	"github.com/kirill483/auth-notify/internal/pkg/httpx"
	"github.com/kirill483/auth-notify/internal/pkg/middleware"
	"github.com/kirill483/auth-notify/internal/pkg/router"
	"github.com/kirill483/auth-notify/internal/pkg/serr"
	"github.com/kirill483/auth-notify/internal/service"
	"github.com/kirill483/auth-notify/internal/token"
)

const tokenTypeBearer = "bearer"

var errBadRequest = errors.New("bad request")

type authService interface {
	Register(ctx context.Context, r service.RegisterRequest) error
	Login(ctx context.Context, r service.LoginRequest) (token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Authenticate(raw string) (token.Claims, error)
	MyLoginHistory(ctx context.Context, caller token.Claims) ([]model.LoginEvent, error)
	UsersLoginHistory(ctx context.Context, caller token.Claims, rawUserID string) ([]model.LoginEvent, error)
	LoginURL() string
	AuthCallback(ctx context.Context, code string) (token.Pair, error)
	LinkTelegram(ctx context.Context, caller token.Claims, r service.LinkTelegramRequest) error
}

type API struct {
	srv    authService
	router *router.Router
}

func NewAPI(srv authService) *API {
	api := &API{
		srv:    srv,
		router: router.New(),
	}
	api.mount()
	return api
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) mount() {
	a.router.HandleFunc("POST /register", a.handleRegister)
	a.router.HandleFunc("POST /login", a.handleLogin)
	a.router.HandleFunc("POST /refresh", a.handleRefresh)
	a.router.HandleFunc("GET /yandex/{$}", a.handleYandexLogin)
	a.router.HandleFunc("GET /yandex/callback", a.handleYandexCallback)

	authed := a.router.With(middleware.Auth[token.Claims](a.srv.Authenticate))
	authed.HandleFunc("GET /my_loginHistory", a.handleMyLoginHistory)
	authed.HandleFunc("GET /users_loginHistory", a.handleUsersLoginHistory)
	authed.HandleFunc("POST /add_telegram", a.handleAddTelegram)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type loginEventResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, serr.NewServiceError(fmt.Errorf("read request json: %w", err), http.StatusBadRequest, "invalid request body"))
		return
	}

	err := a.srv.Register(r.Context(), service.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	// registration does not log in, so no token is handed out
	writeJSON(w, r, http.StatusOK, tokenResponse{TokenType: tokenTypeBearer})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.HandleErr(w, r, serr.NewServiceError(fmt.Errorf("parse form: %w", err), http.StatusBadRequest, "invalid form"))
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		httpx.HandleErr(w, r, serr.NewServiceError(errBadRequest, http.StatusBadRequest, "username and password are required"))
		return
	}

	pair, err := a.srv.Login(r.Context(), service.LoginRequest{
		Email:    username,
		Password: password,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    tokenTypeBearer,
		RefreshToken: pair.RefreshToken,
	})
}

type refreshRequest struct {
	Token string `json:"token"`
}

// handleRefresh takes the refresh token from ?token= or from a {"token": ...} body.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.HandleErr(w, r, serr.NewServiceError(fmt.Errorf("read request json: %w", err), http.StatusBadRequest, "invalid request body"))
			return
		}
		raw = req.Token
	}

	if raw == "" {
		httpx.HandleErr(w, r, serr.NewServiceError(errBadRequest, http.StatusBadRequest, "token is required"))
		return
	}

	accessToken, err := a.srv.Refresh(r.Context(), raw)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   tokenTypeBearer,
	})
}

func (a *API) handleMyLoginHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext[token.Claims](r.Context())
	if !ok {
		httpx.HandleErr(w, r, errors.New("claims missing from context"))
		return
	}

	events, err := a.srv.MyLoginHistory(r.Context(), claims)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toLoginEvents(events))
}

func (a *API) handleUsersLoginHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext[token.Claims](r.Context())
	if !ok {
		httpx.HandleErr(w, r, errors.New("claims missing from context"))
		return
	}

	events, err := a.srv.UsersLoginHistory(r.Context(), claims, r.URL.Query().Get("q"))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toLoginEvents(events))
}

func (a *API) handleYandexLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, a.srv.LoginURL(), http.StatusTemporaryRedirect)
}

func (a *API) handleYandexCallback(w http.ResponseWriter, r *http.Request) {
	pair, err := a.srv.AuthCallback(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    tokenTypeBearer,
		RefreshToken: pair.RefreshToken,
	})
}

type addTelegramRequest struct {
	TelegramUsername string `json:"telegram_username"`
}

func (a *API) handleAddTelegram(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext[token.Claims](r.Context())
	if !ok {
		httpx.HandleErr(w, r, errors.New("claims missing from context"))
		return
	}

	var req addTelegramRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, serr.NewServiceError(fmt.Errorf("read request json: %w", err), http.StatusBadRequest, "invalid request body"))
		return
	}

	err := a.srv.LinkTelegram(r.Context(), claims, service.LinkTelegramRequest{
		TelegramUsername: req.TelegramUsername,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, messageResponse{Message: "Telegram username updated"})
}

func toLoginEvents(events []model.LoginEvent) []loginEventResponse {
	resp := make([]loginEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, loginEventResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			Timestamp: e.Timestamp,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp any) {
	if err := httpx.WriteJSON(w, status, resp); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
	}
}
