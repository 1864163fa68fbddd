// Package http implements the inbound HTTP adapter on Fiber.
package http

import (
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetUserID reads the authenticated user id placed by the JWT middleware.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals("user_id").(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, apperr.Unauthorized("missing user identity")
	}
	return id, nil
}

// ParseID reads an int64 path parameter.
func ParseID(c *fiber.Ctx, name string) (int64, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(name, "must be a positive integer")
	}
	return int64(id), nil
}

// Paginate reads page/page_size (or limit/offset) query parameters.
func Paginate(c *fiber.Ctx) *response.PaginationParams {
	return response.GetPagination(c, defaultPageSize, maxPageSize)
}
