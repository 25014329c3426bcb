package server

import (
	"plume/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ServeUpload handles GET /uploads/:name
// @Summary Serve a stored attachment
// @Tags uploads
// @Param name path string true "Stored file name"
// @Success 200 {file} binary
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /uploads/{name} [get]
func (s *Server) ServeUpload(c *fiber.Ctx) error {
	name := c.Params("name")

	path, err := s.mediaStore.Path(name)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	if err := c.SendFile(path); err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Attachment", name))
	}
	return nil
}
