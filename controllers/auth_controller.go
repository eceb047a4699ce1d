package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/ledger"
	"github.com/cppla/bharatinvest/middleware"
	"github.com/cppla/bharatinvest/models"
	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
	"github.com/cppla/bharatinvest/wallet"
)

const (
	minNameLength = 2
	maxNameLength = 64
)

// AuthController handles authentication related endpoints including local and third-party providers.
type AuthController struct {
	users  store.UserStore
	wallet *wallet.Service
}

// NewAuthController creates an AuthController.
func NewAuthController(users store.UserStore, w *wallet.Service) *AuthController {
	return &AuthController{users: users, wallet: w}
}

// Register creates a local user, opens the account with its signup bonus and issues a JWT.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Name          string `json:"name" binding:"required"`
		Email         string `json:"email" binding:"required,email"`
		Password      string `json:"password" binding:"required"`
		Confirm       string `json:"confirm" binding:"required"`
		ReferralCode  string `json:"referral_code"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	name := utils.PlainText(req.Name, maxNameLength)
	if utf8.RuneCountInString(name) < minNameLength {
		utils.Error(ctx, http.StatusBadRequest, 40002, "name must be at least 2 characters")
		return
	}
	if req.Password != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40002, "passwords do not match")
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}

	if config.Get().RegisterCaptchaEnabled {
		if !utils.VerifyCaptcha(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
			utils.Error(ctx, http.StatusBadRequest, 40042, "captcha is wrong or expired")
			return
		}
	}

	reqCtx := ctx.Request.Context()
	referral := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
	if err := a.wallet.CheckReferral(reqCtx, referral); err != nil {
		if ledger.IsReason(err, ledger.ReasonInvalid) {
			utils.Error(ctx, http.StatusBadRequest, 40003, "invalid referral code")
			return
		}
		respondError(ctx, err)
		return
	}

	taken, err := a.users.UsernameTaken(reqCtx, name)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if taken {
		utils.Error(ctx, http.StatusConflict, 40901, "name already registered")
		return
	}
	if _, err := a.users.UserByEmail(reqCtx, req.Email); err == nil {
		utils.Error(ctx, http.StatusConflict, 40902, "email already registered")
		return
	} else if !errors.Is(err, store.ErrUserNotFound) {
		respondError(ctx, err)
		return
	}

	// Anti-abuse: cooldown, per-IP daily limit, ban check
	ip := ctx.ClientIP()
	if utils.RegistrationIsBanned(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42920, "this IP is temporarily blocked, try again later")
		return
	}
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many requests, try again later")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "daily registration limit reached")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Username:     name,
		Email:        req.Email,
		PasswordHash: hash,
		Provider:     "local",
		RegisterIP:   ip,
	}
	if err := a.users.CreateUser(reqCtx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			utils.Error(ctx, http.StatusConflict, 40901, "name or email already registered")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		if fails := utils.RegistrationFailRecord(ip); fails >= max(config.Get().RegisterFailedMaxPerIPPerHour, 1) {
			utils.RegistrationBan(ip)
		}
		return
	}
	utils.RegistrationDailyIncrement(ip)

	acct, err := a.wallet.Signup(reqCtx, user.ID, user.Username, user.Email, referral)
	if err != nil {
		utils.Sugar.Errorf("open account user=%d err=%v", user.ID, err)
		respondError(ctx, err)
		return
	}

	a.issueToken(ctx, user, &acct)
}

// Captcha returns a fresh captcha id and base64 image (data URI)
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "image": b64, "enabled": config.Get().RegisterCaptchaEnabled})
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	user, err := a.users.UserByEmail(ctx.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
			return
		}
		respondError(ctx, err)
		return
	}
	if user.PasswordHash == "" || !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}

	acct, err := a.ensureAccount(ctx.Request.Context(), user)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if acct.IsBanned {
		utils.Error(ctx, http.StatusForbidden, 40320, "account is banned")
		return
	}
	a.issueToken(ctx, user, &acct)
}

// ensureAccount returns the derived account of user, opening one when a previous signup stopped
// between creating the user and the account.
func (a *AuthController) ensureAccount(ctx context.Context, user models.User) (models.Account, error) {
	acct, err := a.wallet.View(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return a.wallet.Signup(ctx, user.ID, user.Username, user.Email, "")
	}
	return acct, err
}

func (a *AuthController) issueToken(ctx *gin.Context, user models.User, acct *models.Account) {
	token, err := utils.GenerateToken(user.ID, user.Username, utils.TokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	out := gin.H{
		"token": token,
		"user":  userResponseWithAdmin(user),
	}
	if acct != nil {
		out["referral_code"] = acct.ReferralCode
		out["balance"] = acct.Balance
	}
	utils.Success(ctx, out)
}

// Logout revokes the presented token until its expiry.
func (a *AuthController) Logout(ctx *gin.Context) {
	token, ok := middleware.BearerToken(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	utils.RevokeToken(claims)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	user, err := a.users.UserByID(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, userResponseWithAdmin(user))
}

// UpdatePassword changes the password of a local user.
func (a *AuthController) UpdatePassword(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password" binding:"required"`
		Confirm string `json:"confirm" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	if req.New != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40032, "passwords do not match")
		return
	}
	if err := utils.ValidatePassword(req.New); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, err.Error())
		return
	}

	reqCtx := ctx.Request.Context()
	user, err := a.users.UserByID(reqCtx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		respondError(ctx, err)
		return
	}
	// OAuth users without a password may set one without the current password.
	if user.PasswordHash != "" && !utils.CheckPassword(user.PasswordHash, req.Current) {
		utils.Error(ctx, http.StatusUnauthorized, 40109, "current password is incorrect")
		return
	}
	hash, err := utils.HashPassword(req.New)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}
	if err := a.users.UpdatePassword(reqCtx, userID, hash); err != nil {
		respondError(ctx, err)
		return
	}
	// Every other session ends with the old password; the caller gets a fresh token.
	utils.RevokeSessions(userID)
	token, err := utils.GenerateToken(user.ID, user.Username, utils.TokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	utils.Success(ctx, gin.H{"message": "password updated", "token": token})
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, provider, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}

	if !utils.ConsumeState(state, provider) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()
	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}

	info, err := fetchOAuthUser(reqCtx, provider, cfg.Client(reqCtx, token))
	if err != nil {
		utils.Sugar.Warnf("oauth user info provider=%s err=%v", provider, err)
		utils.Error(ctx, http.StatusBadGateway, 50205, "failed to load provider profile")
		return
	}

	user, err := a.findOrCreateOAuthUser(reqCtx, provider, info)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			utils.Error(ctx, http.StatusConflict, 40902, "email already registered with a password")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	acct, err := a.ensureAccount(reqCtx, user)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if acct.IsBanned {
		utils.Error(ctx, http.StatusForbidden, 40320, "account is banned")
		return
	}
	a.issueToken(ctx, user, &acct)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
}

func fetchOAuthUser(ctx context.Context, provider string, client *http.Client) (*oauthUser, error) {
	switch provider {
	case "github":
		return fetchGitHubUser(ctx, client)
	case "google":
		return fetchGoogleUser(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// findOrCreateOAuthUser links a provider identity to a user, creating the user on first sign-in.
func (a *AuthController) findOrCreateOAuthUser(ctx context.Context, provider string, data *oauthUser) (models.User, error) {
	user, err := a.users.UserByProvider(ctx, provider, data.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return models.User{}, err
	}

	email := strings.TrimSpace(data.Email)
	if email != "" {
		if _, err := a.users.UserByEmail(ctx, email); err == nil {
			return models.User{}, store.ErrConflict
		}
	}
	name, err := a.uniqueName(ctx, fallback(data.DisplayName, data.Username), provider, data.ID)
	if err != nil {
		return models.User{}, err
	}
	user = models.User{
		Username:   name,
		Email:      email,
		Provider:   provider,
		ProviderID: data.ID,
		AvatarURL:  data.AvatarURL,
		RegisterIP: "oauth",
	}
	if err := a.users.CreateUser(ctx, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := fetchJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	email := ""
	if err := fetchJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	return &oauthUser{
		ID:          fmt.Sprintf("%d", payload.ID),
		Username:    payload.Login,
		DisplayName: fallback(payload.Name, payload.Login),
		Email:       email,
		AvatarURL:   payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := fetchJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return nil, err
	}
	email := ""
	if payload.VerifiedEmail {
		email = payload.Email
	}
	return &oauthUser{
		ID:          payload.ID,
		Username:    strings.Split(payload.Email, "@")[0],
		DisplayName: payload.Name,
		Email:       email,
		AvatarURL:   payload.Picture,
	}, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// uniqueName derives a free display name, suffixing a counter on collisions.
func (a *AuthController) uniqueName(ctx context.Context, base, provider, id string) (string, error) {
	base = utils.PlainText(base, maxNameLength-4)
	if utf8.RuneCountInString(base) < minNameLength {
		base = fmt.Sprintf("%s_%s", provider, id)
		if len(base) > maxNameLength-4 {
			base = base[:maxNameLength-4]
		}
	}

	candidate := base
	for suffix := 1; suffix < 1000; suffix++ {
		taken, err := a.users.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
	return base + "_" + uuid.NewString()[:8], nil
}

func userResponse(user models.User) gin.H {
	return gin.H{
		"id":          user.ID,
		"name":        user.Username,
		"email":       user.Email,
		"register_ip": user.RegisterIP,
		"provider":    user.Provider,
		"avatar_url":  user.AvatarURL,
		"created_at":  user.CreatedAt,
	}
}

// userResponseWithAdmin includes is_admin for authenticated responses
func userResponseWithAdmin(user models.User) gin.H {
	m := userResponse(user)
	m["is_admin"] = middleware.IsAdminUsername(user.Username)
	return m
}
