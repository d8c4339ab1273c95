package controller

import (
	"fmt"
	"net/url"
	"time"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

const oauthStateCookie = "oauth_state"

type IOAuthController interface {
	RegisterRoutes(r fiber.Router)
	Login(ctx *fiber.Ctx) error
	Callback(ctx *fiber.Ctx) error
}

type oauthController struct {
	service   service.IOAuthService
	clientURL string
	logger    logger.ILogger
}

func NewOAuthController(service service.IOAuthService, clientURL string, logger logger.ILogger) IOAuthController {
	return &oauthController{service: service, clientURL: clientURL, logger: logger}
}

func (c *oauthController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/auth")
	h.Get("/:provider", c.Login)
	h.Get("/:provider/callback", c.Callback)
}

func (c *oauthController) Login(ctx *fiber.Ctx) error {
	loginURL, state, err := c.service.GetLoginURL(ctx.Params("provider"))
	if err != nil {
		return err
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return ctx.Redirect(loginURL, fiber.StatusTemporaryRedirect)
}

// Callback finishes sign-in and sends the browser back to the client with the token.
func (c *oauthController) Callback(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")
	code := ctx.Query("code")
	if code == "" {
		return c.redirectError(ctx, "Missing authorization code")
	}

	state := ctx.Cookies(oauthStateCookie)
	if state == "" || state != ctx.Query("state") {
		c.logger.Warn("OAUTH", "State mismatch on callback", map[string]interface{}{"provider": provider})
		return c.redirectError(ctx, "Sign-in expired, please try again")
	}
	ctx.ClearCookie(oauthStateCookie)

	res, err := c.service.HandleCallback(ctx.UserContext(), provider, code)
	if err != nil {
		c.logger.Error("OAUTH", "Callback failed", map[string]interface{}{"provider": provider, "error": err.Error()})
		return c.redirectError(ctx, "Sign-in failed, please try again")
	}

	return ctx.Redirect(fmt.Sprintf("%s/app?token=%s", c.clientURL, url.QueryEscape(res.AccessToken)), fiber.StatusTemporaryRedirect)
}

func (c *oauthController) redirectError(ctx *fiber.Ctx, message string) error {
	return ctx.Redirect(fmt.Sprintf("%s/login?error=%s", c.clientURL, url.QueryEscape(message)), fiber.StatusTemporaryRedirect)
}
