package httpapi

import "github.com/gofiber/fiber/v2"

const landingPage = `<!DOCTYPE html>
<html>
<head><title>icvsb-gateway</title></head>
<body>
<h1>icvsb-gateway</h1>
<p>Benchmarked request client engine for computer-vision labeling APIs.</p>
</body>
</html>`

// Root serves a minimal landing page in place of a full static front end,
// which is out of scope for this service.
func (h *Handler) Root(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

	return c.SendString(landingPage)
}
