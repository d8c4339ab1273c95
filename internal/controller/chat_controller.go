package controller

import (
	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/internal/pkg/serverutils"
	"ai-chatflow-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	ListConversations(ctx *fiber.Ctx) error
	CreateConversation(ctx *fiber.Ctx) error
	GetMessages(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	ListExamples(ctx *fiber.Ctx) error
	SendExample(ctx *fiber.Ctx) error
	Improve(ctx *fiber.Ctx) error
	RecentActivity(ctx *fiber.Ctx) error
}

type chatController struct {
	service  service.IChatService
	activity service.IActivityService
	jwt      fiber.Handler
}

func NewChatController(service service.IChatService, activity service.IActivityService, jwt fiber.Handler) IChatController {
	return &chatController{service: service, activity: activity, jwt: jwt}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1", c.jwt)
	h.Get("/conversations", c.ListConversations)
	h.Post("/conversations", c.CreateConversation)
	h.Get("/conversations/:id/messages", c.GetMessages)
	h.Post("/conversations/:id/messages", c.SendMessage)
	h.Get("/examples", c.ListExamples)
	h.Post("/examples", c.SendExample)
	h.Post("/improve", c.Improve)
	h.Get("/activity", c.RecentActivity)
}

func (c *chatController) ListConversations(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ListConversations(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success", res))
}

func (c *chatController) CreateConversation(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.CreateConversation(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Conversation created", res))
}

// GetMessages opens the conversation: it becomes active and its messages load on first visit.
func (c *chatController) GetMessages(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	conversationId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid conversation id")
	}

	res, err := c.service.OpenConversation(ctx.UserContext(), userId, conversationId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success", res))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	conversationId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid conversation id")
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), userId, conversationId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Message sent", res))
}

func (c *chatController) ListExamples(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success", c.service.ExamplePrompts()))
}

func (c *chatController) SendExample(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ExamplePromptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	res, err := c.service.SendExamplePrompt(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Message sent", res))
}

func (c *chatController) Improve(ctx *fiber.Ctx) error {
	var req dto.ImproveMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	res, err := c.service.Improve(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success", res))
}

func (c *chatController) RecentActivity(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.activity.Recent(ctx.UserContext(), userId, ctx.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success", res))
}
