package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/middleware"
	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/utils"
)

// AuthController handles authentication endpoints including local accounts
// and third-party providers.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

const tokenLifetime = 24 * time.Hour

// Register creates a local account after captcha, email-code and abuse checks.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username      string `json:"username" binding:"required,min=3,max=32"`
		Email         string `json:"email" binding:"required,email"`
		Password      string `json:"password" binding:"required,min=8"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
		EmailCode     string `json:"email_code"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	ip := ctx.ClientIP()
	if utils.RegistrationIsBanned(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "registration temporarily blocked")
		return
	}
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42911, "please wait before retrying")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42912, "registration limit reached for today")
		return
	}

	cfg := config.Get()
	if cfg.RegisterCaptchaEnabled && !utils.VerifyCaptcha(req.CaptchaID, req.CaptchaAnswer) {
		a.recordRegisterFailure(ip)
		utils.Error(ctx, http.StatusBadRequest, 40002, "captcha verification failed")
		return
	}

	if req.EmailCode != "" || cfg.SMTPHost != "" {
		if !utils.VerifyAndConsumeCode(req.Email, req.EmailCode) {
			a.recordRegisterFailure(ip)
			utils.Error(ctx, http.StatusBadRequest, 40003, "email verification failed")
			return
		}
	}

	username := strings.TrimSpace(req.Username)
	var existing models.User
	if err := a.db.Where("username = ? OR email = ?", username, req.Email).First(&existing).Error; err == nil {
		a.recordRegisterFailure(ip)
		utils.Error(ctx, http.StatusConflict, 40901, "username or email already taken")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to process password")
		return
	}

	user := models.User{
		Username:     username,
		Email:        req.Email,
		PasswordHash: hash,
		Provider:     "local",
		RegisterIP:   ip,
	}
	if err := a.db.Create(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	utils.RegistrationDailyIncrement(ip)

	token, err := utils.GenerateToken(user.ID, user.Username, tokenLifetime)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to issue token")
		return
	}

	utils.Success(ctx, gin.H{"token": token, "user": publicUser(user)})
}

func (a *AuthController) recordRegisterFailure(ip string) {
	cfg := config.Get()
	if n := utils.RegistrationFailRecord(ip); cfg.RegisterFailedMaxPerIPPerHour > 0 && n >= cfg.RegisterFailedMaxPerIPPerHour {
		utils.RegistrationBan(ip)
	}
}

// Login authenticates by username or email plus password.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid credentials")
		return
	}

	if user.PasswordHash == "" || !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid credentials")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, tokenLifetime)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to issue token")
		return
	}

	utils.Success(ctx, gin.H{"token": token, "user": publicUser(user)})
}

// Logout blacklists the presented token until its natural expiry.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing bearer token")
		return
	}
	tokenStr := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(tokenStr)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}
	utils.BlacklistToken(tokenStr, claims.ExpiresAt.Time)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		return
	}
	utils.Success(ctx, gin.H{"user": publicUser(user), "email": user.Email})
}

// UpdateProfile updates avatar and bio. Bio HTML is sanitized.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		AvatarURL *string `json:"avatar_url"`
		Bio       *string `json:"bio"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid request payload")
		return
	}

	updates := map[string]interface{}{}
	if req.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Bio != nil {
		updates["bio"] = utils.Sanitize(*req.Bio)
	}
	if len(updates) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40007, "nothing to update")
		return
	}

	if err := a.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to update profile")
		return
	}

	utils.InvalidateByPrefix("cache:user:public:")

	var user models.User
	if err := a.db.First(&user, userID).Error; err == nil {
		utils.Success(ctx, gin.H{"user": publicUser(user)})
		return
	}
	utils.Success(ctx, gin.H{"message": "profile updated"})
}

// Captcha issues a new captcha image as a base64 data URI.
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"captcha_id": id, "captcha_image": b64})
}

// SendEmailCode emails a verification code with a per-address cooldown.
func (a *AuthController) SendEmailCode(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40008, "invalid request payload")
		return
	}

	if !utils.EmailCooldownTrySet(req.Email, time.Minute) {
		utils.Error(ctx, http.StatusTooManyRequests, 42913, "verification code already sent, try later")
		return
	}

	code := utils.GenerateVerificationCode(6)
	utils.SaveCode(req.Email, code, 10*time.Minute)

	body := fmt.Sprintf("Your Plant ID Community verification code is %s. It expires in 10 minutes.", code)
	if err := utils.SendMail(req.Email, "Verification Code", body); err != nil {
		utils.Sugar.Warnf("send email code failed to=%s err=%v", req.Email, err)
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to send verification email")
		return
	}

	utils.Success(ctx, gin.H{"message": "verification code sent"})
}

// GetUserPublic returns public user info by ID, cached.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	idStr := strings.TrimSpace(ctx.Param("id"))
	if idStr == "" {
		utils.Error(ctx, http.StatusBadRequest, 40050, "missing user id")
		return
	}
	if b, ok := utils.CacheGetBytes("cache:user:public:" + idStr); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}
	var user models.User
	if err := a.db.First(&user, idStr).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to get user")
		return
	}
	payload := publicUser(user)
	utils.CacheSetJSON("cache:user:public:"+idStr, wrapForCache(payload), time.Hour)
	utils.Success(ctx, payload)
}

// GetUserPublicByUsername returns public user info by username, cached.
func (a *AuthController) GetUserPublicByUsername(ctx *gin.Context) {
	uname := strings.TrimSpace(ctx.Param("username"))
	if uname == "" {
		utils.Error(ctx, http.StatusBadRequest, 40051, "missing username")
		return
	}
	if b, ok := utils.CacheGetBytes("cache:user:public:uname:" + uname); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}
	var user models.User
	if err := a.db.Where("username = ?", uname).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40411, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to get user")
		return
	}
	payload := publicUser(user)
	utils.CacheSetJSON("cache:user:public:uname:"+uname, wrapForCache(payload), time.Hour)
	utils.Success(ctx, payload)
}

func publicUser(user models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"avatar_url": user.AvatarURL,
		"bio":        user.Bio,
		"is_admin":   middleware.IsAdmin(user.Username),
		"created_at": user.CreatedAt,
	}
}

// --- OAuth ---

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	redirect := strings.TrimRight(cfg.OAuthRedirectBase, "/") + "/api/v1/auth/oauth/" + provider + "/callback"
	switch provider {
	case "github":
		if cfg.GitHubClientID == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  redirect,
			Scopes:       []string{"read:user", "user:email"},
		}, nil
	case "google":
		if cfg.GoogleClientID == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirect,
			Scopes:       []string{"openid", "email", "profile"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown oauth provider %q", provider)
	}
}

// OAuthRedirect sends the user to the provider's consent page with a
// single-use state token.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	conf, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)
	ctx.Redirect(http.StatusFound, conf.AuthCodeURL(state))
}

// OAuthCallback exchanges the code, resolves the remote identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	conf, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, err.Error())
		return
	}

	state := ctx.Query("state")
	if state == "" || !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid oauth state")
		return
	}

	code := ctx.Query("code")
	if code == "" {
		utils.Error(ctx, http.StatusBadRequest, 40062, "missing oauth code")
		return
	}

	exCtx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()
	token, err := conf.Exchange(exCtx, code)
	if err != nil {
		utils.Error(ctx, http.StatusBadGateway, 50260, "oauth code exchange failed")
		return
	}

	identity, err := fetchOAuthIdentity(exCtx, conf, provider, token)
	if err != nil {
		utils.Error(ctx, http.StatusBadGateway, 50261, "failed to fetch oauth identity")
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, identity, ctx.ClientIP())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to resolve user")
		return
	}

	jwtToken, err := utils.GenerateToken(user.ID, user.Username, tokenLifetime)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to issue token")
		return
	}

	utils.Success(ctx, gin.H{"token": jwtToken, "user": publicUser(*user)})
}

type oauthIdentity struct {
	ID        string
	Login     string
	Email     string
	AvatarURL string
}

func fetchOAuthIdentity(ctx context.Context, conf *oauth2.Config, provider string, token *oauth2.Token) (*oauthIdentity, error) {
	client := conf.Client(ctx, token)

	var endpoint string
	switch provider {
	case "github":
		endpoint = "https://api.github.com/user"
	case "google":
		endpoint = "https://openidconnect.googleapis.com/v1/userinfo"
	default:
		return nil, fmt.Errorf("unknown oauth provider %q", provider)
	}

	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity endpoint returned %d", resp.StatusCode)
	}

	switch provider {
	case "github":
		var raw struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, err
		}
		return &oauthIdentity{
			ID:        fmt.Sprintf("%d", raw.ID),
			Login:     raw.Login,
			Email:     raw.Email,
			AvatarURL: raw.AvatarURL,
		}, nil
	default: // google
		var raw struct {
			Sub     string `json:"sub"`
			Name    string `json:"name"`
			Email   string `json:"email"`
			Picture string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, err
		}
		return &oauthIdentity{
			ID:        raw.Sub,
			Login:     raw.Name,
			Email:     raw.Email,
			AvatarURL: raw.Picture,
		}, nil
	}
}

func (a *AuthController) findOrCreateOAuthUser(provider string, identity *oauthIdentity, ip string) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, identity.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	username := strings.TrimSpace(identity.Login)
	if username == "" {
		username = provider + "-" + identity.ID
	}
	// Disambiguate on collision with an existing local account.
	var clash models.User
	if err := a.db.Where("username = ?", username).First(&clash).Error; err == nil {
		username = fmt.Sprintf("%s-%s", username, identity.ID)
	}

	user = models.User{
		Username:   username,
		Email:      identity.Email,
		Provider:   provider,
		ProviderID: identity.ID,
		AvatarURL:  identity.AvatarURL,
		RegisterIP: ip,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
