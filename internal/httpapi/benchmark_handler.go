package httpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/brc"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/validation"
)

// createBRCRequest is the JSON body of POST /benchmark.
type createBRCRequest struct {
	Service              string   `json:"service" validate:"required"`
	Dataset              []string `json:"dataset" validate:"required,min=1,dive,required"`
	MaxLabels            *int     `json:"max_labels"`
	MinConfidence        *float64 `json:"min_confidence"`
	DeltaLabels          *int     `json:"delta_labels"`
	DeltaConfidence      *float64 `json:"delta_confidence"`
	Severity             string   `json:"severity"`
	ExpectedLabels       []string `json:"expected_labels"`
	TriggerOnSchedule    string   `json:"trigger_on_schedule"`
	TriggerOnFailcount   *int     `json:"trigger_on_failcount"`
	BenchmarkCallbackURI string   `json:"benchmark_callback_uri"`
	WarningCallbackURI   string   `json:"warning_callback_uri"`
	Autobenchmark        *bool    `json:"autobenchmark"`
}

// CreateBRC handles POST /benchmark: creates a new BRC, registers it
// synchronously, then kicks off its first benchmark on a detached task if
// autobenchmark is set.
func (h *Handler) CreateBRC(c *fiber.Ctx) error {
	var body createBRCRequest

	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "ERR_MALFORMED_BODY", "Malformed Body", err.Error())
	}

	if err := h.deps.Validate.Struct(body); err != nil {
		return badRequest(c, "ERR_VALIDATION", "Validation Error", err.Error())
	}

	if !model.ValidServiceName(body.Service) {
		return badRequest(c, "ERR_UNKNOWN_SERVICE", "Unknown Service", fmt.Sprintf("unknown service %q", body.Service))
	}

	severityName := model.SeverityName(body.Severity)
	if severityName == "" {
		severityName = model.SeverityInfo
	}

	if !model.ValidSeverityName(string(severityName)) {
		return badRequest(c, "ERR_UNKNOWN_SEVERITY", "Unknown Severity", fmt.Sprintf("unknown severity %q", body.Severity))
	}

	ctx := c.UserContext()

	service, err := h.deps.ServiceRepo.GetByName(ctx, model.ServiceName(body.Service))
	if err != nil {
		return WithError(c, apperr.Translate(err, "Service"))
	}

	severity, err := h.deps.SeverityRepo.GetByName(ctx, severityName)
	if err != nil {
		return WithError(c, apperr.Translate(err, "Severity"))
	}

	cfg := brc.DefaultConfig()
	cfg.ServiceName = service.Name
	cfg.Dataset = body.Dataset
	cfg.Severity = severityName
	for _, label := range body.ExpectedLabels {
		cfg.ExpectedLabels = append(cfg.ExpectedLabels, strings.ToLower(label))
	}

	cfg.BenchmarkCallbackURI = body.BenchmarkCallbackURI
	cfg.WarningCallbackURI = body.WarningCallbackURI

	if body.MaxLabels != nil {
		cfg.MaxLabels = *body.MaxLabels
	}

	if body.MinConfidence != nil {
		cfg.MinConfidence = *body.MinConfidence
	}

	if body.DeltaLabels != nil {
		cfg.DeltaLabels = *body.DeltaLabels
	}

	if body.DeltaConfidence != nil {
		cfg.DeltaConfidence = *body.DeltaConfidence
	}

	if body.TriggerOnSchedule != "" {
		cfg.TriggerOnSchedule = body.TriggerOnSchedule
	}

	if body.TriggerOnFailcount != nil {
		cfg.TriggerOnFailcount = *body.TriggerOnFailcount
	}

	if body.Autobenchmark != nil {
		cfg.Autobenchmark = *body.Autobenchmark
	} else {
		cfg.Autobenchmark = true
	}

	if _, err := validation.CronLine(cfg.TriggerOnSchedule); err != nil {
		return WithError(c, apperr.Translate(err, "BenchmarkedRequestClient"))
	}

	lp, ok := h.providerFor(service.Name)
	if !ok {
		return internalServerError(c, fmt.Sprintf("no LabelProvider wired for service %q", service.Name))
	}

	rc := h.newRequestClient(lp, service.ID, cfg.MaxLabels, cfg.MinConfidence)

	client, err := brc.New(cfg, service.ID, severity.ID, rc, h.deps.KeyRepo, h.deps.ResponseRepo, h.deps.WebhookPub, h.deps.Logger)
	if err != nil {
		return WithError(c, apperr.Translate(err, "BenchmarkedRequestClient"))
	}

	id := h.deps.Registry.Register(client)

	if cfg.Autobenchmark {
		go client.Benchmark(context.Background())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// brcView is the GET /benchmark/:id introspection shape.
type brcView struct {
	ID                int64       `json:"id"`
	Service           string      `json:"service"`
	CreatedAt         string      `json:"created_at"`
	CurrentKeyID      *int64      `json:"current_key_id"`
	IsBenchmarking    bool        `json:"is_benchmarking"`
	InvalidStateCount int64       `json:"invalid_state_count"`
	LastBenchmarkTime *string     `json:"last_benchmark_time"`
	BenchmarkCount    int64       `json:"benchmark_count"`
	Config            brc.Config  `json:"config"`
	BenchmarkDataset  []string    `json:"benchmark_dataset"`
}

// GetBRC handles GET /benchmark/:id.
func (h *Handler) GetBRC(c *fiber.Ctx) error {
	client, err := h.resolveBRC(c)
	if err != nil {
		return WithError(c, err)
	}

	service, err := h.deps.ServiceRepo.GetByID(c.UserContext(), client.ServiceID())
	if err != nil {
		return WithError(c, apperr.Translate(err, "Service"))
	}

	view := brcView{
		ID:                client.ID,
		Service:           string(service.Name),
		CreatedAt:         validation.FormatHTTPDate(client.CreatedAt()),
		IsBenchmarking:    client.Benchmarking(),
		InvalidStateCount: client.InvalidStateCount(),
		BenchmarkCount:    client.BenchmarkCount(),
		Config:            client.Config(),
		BenchmarkDataset:  client.Config().Dataset,
	}

	if current := client.CurrentKey(); current != nil {
		view.CurrentKeyID = &current.Model.ID
	}

	if lbt := client.LastBenchmarkTime(); !lbt.IsZero() {
		s := validation.FormatHTTPDate(lbt)
		view.LastBenchmarkTime = &s
	}

	return c.JSON(view)
}

// GetBRCKey handles GET /benchmark/:id/key: a 302 redirect to the BRC's
// current key, or 422 while still first-benchmarking.
func (h *Handler) GetBRCKey(c *fiber.Ctx) error {
	client, err := h.resolveBRC(c)
	if err != nil {
		return WithError(c, err)
	}

	current := client.CurrentKey()
	if current == nil {
		return unprocessable(c, "ERR_NO_KEY_YET", "No Key Yet", "BRC has not completed its first benchmark")
	}

	return c.Redirect(fmt.Sprintf("/key/%d", current.Model.ID), fiber.StatusFound)
}

// GetBRCLog handles GET /benchmark/:id/log: the BRC's mirrored log
// as plain text.
func (h *Handler) GetBRCLog(c *fiber.Ctx) error {
	client, err := h.resolveBRC(c)
	if err != nil {
		return WithError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	return c.SendString(client.Log())
}

// resolveBRC parses the :id path parameter and looks it up in the
// registry.
func (h *Handler) resolveBRC(c *fiber.Ctx) (*brc.Client, error) {
	id, err := validation.Integer(c.Params("id"))
	if err != nil {
		return nil, apperr.Translate(err, "BenchmarkedRequestClient")
	}

	client, err := h.deps.Registry.Get(id)
	if err != nil {
		return nil, apperr.Translate(err, "BenchmarkedRequestClient")
	}

	return client, nil
}
