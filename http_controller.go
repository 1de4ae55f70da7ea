package accounts

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultSessionCookie is the cookie holding the serialized session
const DefaultSessionCookie = "accounts_session"

// RegisterAccountRoutes mounts the account endpoints on app.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) *AccountsController {
	controller := NewAccountsController(opts...)

	app.Post(controller.Routes.Register, controller.Register).
		SetName("accounts.register")
	app.Get(controller.Routes.Activate, controller.Activate).
		SetName("accounts.activate")
	app.Post(controller.Routes.ResendActivation, controller.ResendActivation).
		SetName("accounts.activate.resend")

	app.Post(controller.Routes.SendResetEmail, controller.SendResetEmail).
		SetName("accounts.pwd-reset.request")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).
		SetName("accounts.pwd-reset.execute")

	app.Post(controller.Routes.SignIn, controller.SignIn).
		SetName("accounts.sign-in")
	app.Get(controller.Routes.SignOut, controller.SignOut).
		SetName("accounts.sign-out")

	app.Get(controller.Routes.User, controller.CurrentUser).
		SetName("accounts.user.get")
	app.Post(controller.Routes.User, controller.UpdateUser).
		SetName("accounts.user.update")

	return controller
}

// AccountsControllerRoutes holds the paths of each endpoint
type AccountsControllerRoutes struct {
	Register         string
	Activate         string
	ResendActivation string
	SendResetEmail   string
	ResetPassword    string
	SignIn           string
	SignOut          string
	User             string
}

// AccountsController exposes the account services as JSON endpoints.
type AccountsController struct {
	Debug         bool
	Logger        Logger
	Routes        *AccountsControllerRoutes
	Registration  *RegistrationService
	Activation    *ActivationService
	PasswordReset *PasswordResetService
	Sessions      *SessionAuthenticator
	Settings      SettingsStore
	Defaults      Settings
	CookieName    string
	SecureCookie  bool
}

type AccountsControllerOption func(*AccountsController) *AccountsController

// NewAccountsController builds a controller. It panics when a service is missing.
func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:       defLogger{},
		Defaults:     DefaultSettings(),
		CookieName:   DefaultSessionCookie,
		SecureCookie: true,
		Routes: &AccountsControllerRoutes{
			Register:         "/register",
			Activate:         "/activate",
			ResendActivation: "/resend-activation",
			SendResetEmail:   "/send-reset-email",
			ResetPassword:    "/reset-password",
			SignIn:           "/signin",
			SignOut:          "/signout",
			User:             "/user",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Registration == nil || c.Activation == nil || c.PasswordReset == nil {
		panic("Missing account services in accounts controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionAuthenticator in accounts controller...")
	}

	return c
}

// WithLogger overrides the controller logger.
func (a *AccountsController) WithLogger(logger Logger) *AccountsController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// Register handles POST /register
func (a *AccountsController) Register(ctx router.Context) error {
	payload := new(RegistrationInput)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	settings, err := a.settings(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	profile, err := a.Registration.Register(ctx.Context(), *payload, settings)
	if err != nil {
		return a.respondError(ctx, err)
	}

	// accounts that need no activation are signed in right away
	if profile.Status == StatusActive {
		session := a.Sessions.Tokens().NewSession(profile.ID, false)
		if token, err := a.Sessions.Tokens().Issue(session); err != nil {
			a.Logger.Warn("failed to open session for registered account %s: %v", profile.ID, err)
		} else {
			a.setSessionCookie(ctx, token, session.ExpiresAt)
		}
	}

	return ctx.JSON(http.StatusOK, profile)
}

// Activate handles GET /activate?code=
func (a *AccountsController) Activate(ctx router.Context) error {
	settings, err := a.settings(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	result, err := a.Activation.Activate(ctx.Context(), ctx.Query("code"), settings)
	if err != nil {
		return a.respondError(ctx, err)
	}

	if result.Redirect != "" {
		return ctx.Redirect(result.Redirect, http.StatusFound)
	}

	return ctx.JSON(http.StatusOK, Success())
}

// EmailPayload carries an email for resend and reset requests
type EmailPayload struct {
	Email string `form:"email" json:"email"`
}

// ResendActivation handles POST /resend-activation
func (a *AccountsController) ResendActivation(ctx router.Context) error {
	payload := new(EmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := a.Activation.ResendActivation(ctx.Context(), payload.Email); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Success())
}

// SendResetEmail handles POST /send-reset-email
func (a *AccountsController) SendResetEmail(ctx router.Context) error {
	payload := new(EmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	settings, err := a.settings(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	if err := a.PasswordReset.RequestReset(ctx.Context(), payload.Email, settings); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Success())
}

// ResetPasswordPayload is the body of POST /reset-password
type ResetPasswordPayload struct {
	Code     string `form:"code" json:"code"`
	Password string `form:"password" json:"password"`
}

// ResetPassword handles POST /reset-password
func (a *AccountsController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	settings, err := a.settings(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	if err := a.PasswordReset.ResetPassword(ctx.Context(), payload.Code, payload.Password, settings); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Success())
}

// SignIn handles POST /signin and sets the session cookie
func (a *AccountsController) SignIn(ctx router.Context) error {
	payload := new(Credentials)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	session, profile, err := a.Sessions.SignIn(ctx.Context(), *payload)
	if err != nil {
		return a.respondError(ctx, err)
	}

	token, err := a.Sessions.Tokens().Issue(session)
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookie(ctx, token, session.ExpiresAt)

	return ctx.JSON(http.StatusOK, profile)
}

// SignOut handles GET /signout and clears the session cookie
func (a *AccountsController) SignOut(ctx router.Context) error {
	if err := a.Sessions.SignOut(ctx.Context(), a.session(ctx)); err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookie(ctx, "", time.Now().Add(-time.Hour*(24*365)))

	return ctx.JSON(http.StatusOK, Success())
}

// CurrentUser handles GET /user
func (a *AccountsController) CurrentUser(ctx router.Context) error {
	profile, err := a.Sessions.CurrentUser(ctx.Context(), a.session(ctx))
	if err != nil {
		return a.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, profile)
}

// UpdateUser handles POST /user
func (a *AccountsController) UpdateUser(ctx router.Context) error {
	session := a.session(ctx)
	if !session.Authenticated() {
		return a.respondError(ctx, ErrAuthenticationFailed)
	}

	payload := new(ProfileUpdateInput)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	settings, err := a.settings(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	profile, err := a.Sessions.UpdateProfile(ctx.Context(), session, *payload, settings)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, profile)
}

func (a *AccountsController) settings(ctx router.Context) (Settings, error) {
	return ResolveSettings(ctx.Context(), a.Settings, a.Defaults)
}

// session reads the bearer token first and the cookie second. A missing or
// invalid token yields a nil session.
func (a *AccountsController) session(ctx router.Context) *Session {
	token := bearerToken(ctx.Header("Authorization"))
	if token == "" {
		token = ctx.Cookies(a.CookieName)
	}

	if token == "" {
		return nil
	}

	session, err := a.Sessions.Tokens().Parse(token)
	if err != nil {
		return nil
	}
	return session
}

func (a *AccountsController) setSessionCookie(ctx router.Context, val string, expires time.Time) {
	ctx.Cookie(&router.Cookie{
		Name:     a.CookieName,
		Value:    val,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.SecureCookie,
		SameSite: "Lax",
	})
}

func (a *AccountsController) badPayload(ctx router.Context, err error) error {
	a.Logger.Debug("failed to parse payload: %v", err)
	return a.respondError(ctx, NewValidationError("failed to parse request body", nil))
}

func (a *AccountsController) respondError(ctx router.Context, err error) error {
	code, result := ResultFromError(err)

	if code >= http.StatusInternalServerError {
		a.Logger.Error("accounts request failed: %s", print.MaybePrettyJSON(err))
	} else if a.Debug {
		a.Logger.Debug("accounts request rejected: %s", print.MaybePrettyJSON(result))
	}

	return ctx.JSON(code, result)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
