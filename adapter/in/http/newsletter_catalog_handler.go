package http

import (
	"newsletter_server/core/domain"
	"newsletter_server/core/port/in"
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CatalogHandler serves newsletters, subscriptions, emails, interactions,
// search, and stats.
type CatalogHandler struct {
	catalogUC in.CatalogUseCase
	statsUC   in.StatsUseCase
}

func NewCatalogHandler(catalogUC in.CatalogUseCase, statsUC in.StatsUseCase) *CatalogHandler {
	return &CatalogHandler{catalogUC: catalogUC, statsUC: statsUC}
}

func (h *CatalogHandler) Register(router fiber.Router) {
	mail := router.Group("/mail")
	mail.Get("/search", h.Search)
	mail.Get("/stats", h.Stats)

	newsletters := mail.Group("/newsletters")
	newsletters.Get("/", h.ListSubscriptions)
	newsletters.Post("/:id/subscribe", h.Subscribe)
	newsletters.Post("/:id/unsubscribe", h.Unsubscribe)
	newsletters.Get("/:id/emails", h.ListNewsletterEmails)

	emails := mail.Group("/emails")
	emails.Get("/", h.ListEmails)
	emails.Post("/:id/interaction", h.TrackInteraction)
}

func (h *CatalogHandler) ListSubscriptions(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	p := Paginate(c)
	subs, err := h.catalogUC.ListSubscriptions(c.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return err
	}

	return response.OKWithMeta(c, subs, &response.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  len(subs) == p.Limit,
	})
}

func (h *CatalogHandler) Search(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}

	results, err := h.catalogUC.Search(c.Context(), c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return response.OK(c, results)
}

func (h *CatalogHandler) Subscribe(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	newsletterID, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	created, err := h.catalogUC.Subscribe(c.Context(), userID, newsletterID)
	if err != nil {
		return err
	}

	body := fiber.Map{"newsletter_id": newsletterID, "subscribed": true}
	if created {
		return response.Created(c, body)
	}
	return response.OK(c, body)
}

func (h *CatalogHandler) Unsubscribe(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	newsletterID, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.catalogUC.Unsubscribe(c.Context(), userID, newsletterID); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"newsletter_id": newsletterID, "subscribed": false})
}

func (h *CatalogHandler) ListNewsletterEmails(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	newsletterID, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	p := Paginate(c)
	emails, err := h.catalogUC.ListEmails(c.Context(), userID, &newsletterID, p.Limit, p.Offset)
	if err != nil {
		return err
	}

	return response.OKWithMeta(c, emails, &response.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  len(emails) == p.Limit,
	})
}

func (h *CatalogHandler) ListEmails(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	p := Paginate(c)
	emails, err := h.catalogUC.ListEmails(c.Context(), userID, nil, p.Limit, p.Offset)
	if err != nil {
		return err
	}

	return response.OKWithMeta(c, emails, &response.Meta{
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  len(emails) == p.Limit,
	})
}

func (h *CatalogHandler) TrackInteraction(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	emailID, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	var interaction domain.Interaction
	if err := c.BodyParser(&interaction); err != nil {
		return apperr.BadRequest("invalid interaction body")
	}

	if err := h.catalogUC.TrackInteraction(c.Context(), userID, emailID, interaction); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"email_id": emailID, "tracked": true})
}

func (h *CatalogHandler) Stats(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	stats, err := h.statsUC.Stats(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.OK(c, stats)
}
