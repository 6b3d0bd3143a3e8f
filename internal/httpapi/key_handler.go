package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/validation"
)

// responseView is the encoded-response shape embedded in a keyView.
type responseView struct {
	RequestID int64              `json:"request_id"`
	URI       string             `json:"uri"`
	Success   bool               `json:"success"`
	Labels    map[string]float64 `json:"labels"`
}

type keyView struct {
	ID              int64               `json:"id"`
	ServiceID       int64               `json:"service_id"`
	BatchRequestID  int64               `json:"batch_request_id"`
	SeverityID      int64               `json:"severity_id"`
	CreatedAt       string              `json:"created_at"`
	Expired         bool                `json:"expired"`
	DeltaLabels     int                 `json:"delta_labels"`
	DeltaConfidence float64             `json:"delta_confidence"`
	MaxLabels       int                 `json:"max_labels"`
	MinConfidence   float64             `json:"min_confidence"`
	ExpectedLabels  []string            `json:"expected_labels"`
	Responses       []responseView      `json:"responses"`
}

// GetKey handles GET /key/:id: key introspection with config and the
// encoded responses of its minting batch.
func (h *Handler) GetKey(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := validation.Integer(c.Params("id"))
	if err != nil {
		return WithError(c, apperr.Translate(err, "BenchmarkKey"))
	}

	key, err := h.deps.KeyRepo.GetByID(ctx, id)
	if err != nil {
		return WithError(c, apperr.Translate(err, "BenchmarkKey"))
	}

	pairs, err := h.deps.ResponseRepo.ListByBatch(ctx, key.BatchRequestID)
	if err != nil {
		return internalServerError(c, err.Error())
	}

	responses := make([]responseView, 0, len(pairs))
	for _, p := range pairs {
		responses = append(responses, responseView{
			RequestID: p.Request.ID,
			URI:       p.Request.URI,
			Success:   p.Response.Success,
			Labels:    p.Response.Labels(),
		})
	}

	view := keyView{
		ID:              key.ID,
		ServiceID:       key.ServiceID,
		BatchRequestID:  key.BatchRequestID,
		SeverityID:      key.SeverityID,
		CreatedAt:       validation.FormatHTTPDate(key.CreatedAt),
		Expired:         key.Expired,
		DeltaLabels:     key.DeltaLabels,
		DeltaConfidence: key.DeltaConfidence,
		MaxLabels:       key.MaxLabels,
		MinConfidence:   key.MinConfidence,
		ExpectedLabels:  key.ExpectedLabels,
		Responses:       responses,
	}

	return c.JSON(view)
}
