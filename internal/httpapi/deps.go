package httpapi

import (
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/lerian-labs/icvsb-gateway/internal/cache"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/provider"
	"github.com/lerian-labs/icvsb-gateway/internal/registry"
	"github.com/lerian-labs/icvsb-gateway/internal/requestclient"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
	"github.com/lerian-labs/icvsb-gateway/internal/webhook"
)

// Deps wires every collaborator the HTTP surface needs. Constructed once
// in internal/bootstrap and shared by every handler.
type Deps struct {
	Store        *store.Store
	Registry     *registry.Registry
	ServiceRepo  *store.ServiceRepository
	SeverityRepo *store.SeverityRepository
	BatchRepo    *store.BatchRequestRepository
	RequestRepo  *store.RequestRepository
	ResponseRepo *store.ResponseRepository
	KeyRepo      *store.BenchmarkKeyRepository
	Providers    map[model.ServiceName]provider.LabelProvider
	Cache        *cache.Cache
	WebhookPub   *webhook.Publisher
	Logger       mlog.Logger
	Validate     *validator.Validate

	// RequestClientConcurrency overrides requestclient.DefaultConcurrency
	// for freshly constructed BRCs; zero keeps the package default.
	RequestClientConcurrency int
}

// Handler groups the Deps every handler method closes over.
type Handler struct {
	deps *Deps
}

// NewHandler returns a Handler bound to deps.
func NewHandler(deps *Deps) *Handler {
	if deps.Validate == nil {
		deps.Validate = validator.New()
	}

	return &Handler{deps: deps}
}

// providerFor resolves the LabelProvider for a Service name.
func (h *Handler) providerFor(name model.ServiceName) (provider.LabelProvider, bool) {
	lp, ok := h.deps.Providers[name]
	return lp, ok
}

// newRequestClient builds a per-BRC RequestClient scoped to serviceID with
// the BRC's own max_labels/min_confidence.
func (h *Handler) newRequestClient(lp provider.LabelProvider, serviceID int64, maxLabels int, minConfidence float64) *requestclient.Client {
	rc := requestclient.New(h.deps.Store, lp, serviceID, maxLabels, minConfidence)
	if h.deps.RequestClientConcurrency > 0 {
		rc = rc.WithConcurrency(h.deps.RequestClientConcurrency)
	}

	return rc
}
