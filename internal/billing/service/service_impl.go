package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	"github.com/smallbiznis/waitlist/internal/billing/domain"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultOrigin = "http://localhost:3000"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Gateway  domain.Gateway
	Projects projectdomain.Service
	Plans    *config.PlanConfigHolder
	Metrics  *metrics.Metrics    `optional:"true"`
	Audit    auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	baseURL  string
	repo     domain.Repository
	gateway  domain.Gateway
	projects projectdomain.Service
	plans    *config.PlanConfigHolder
	metrics  *metrics.Metrics
	audit    auditdomain.Service
}

func New(p Params) domain.Service {
	m := p.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		baseURL:  p.Config.BaseURL,
		repo:     p.Repo,
		gateway:  p.Gateway,
		projects: p.Projects,
		plans:    p.Plans,
		metrics:  m,
		audit:    p.Audit,
	}
}

func (s *Service) Plans() config.PlanConfig {
	return s.plans.Get()
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Session, error) {
	req.PriceID = strings.TrimSpace(req.PriceID)
	if req.PriceID == "" {
		return domain.Session{}, domain.ErrPriceRequired
	}
	plan, ok := s.plans.Get().FindByPriceID(req.PriceID)
	if !ok {
		return domain.Session{}, domain.ErrUnknownPrice
	}
	req.Email = strings.TrimSpace(req.Email)
	req.ProjectID = strings.TrimSpace(req.ProjectID)

	origin := s.origin(req.Origin)
	session, err := s.gateway.CreateCheckoutSession(ctx, req,
		origin+"/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		origin+"/checkout/cancel",
	)
	if err != nil {
		s.log.Error("checkout session failed", zap.String("plan", plan.ID), zap.Error(err))
		return domain.Session{}, err
	}

	s.log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("plan", plan.ID),
		zap.String("project_id", req.ProjectID),
	)
	return session, nil
}

func (s *Service) Portal(ctx context.Context, req domain.PortalRequest) (domain.Session, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.Session{}, domain.ErrCustomerRequired
	}
	session, err := s.gateway.CreatePortalSession(ctx, customerID, s.origin(req.Origin)+"/admin")
	if err != nil {
		s.log.Error("portal session failed", zap.Error(err))
		return domain.Session{}, err
	}
	return session, nil
}

// HandleWebhook verifies and applies one provider delivery. A delivery that
// was already applied is acknowledged without side effects; one that failed
// halfway is applied again on redelivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if err := s.gateway.Verify(payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.Error(err))
		return err
	}

	event, err := s.gateway.Parse(payload)
	if err != nil && !errors.Is(err, domain.ErrEventIgnored) {
		return err
	}
	provider := s.gateway.Provider()
	s.metrics.RecordBillingEvent(ctx, provider, event.Type)

	record, err := s.record(ctx, provider, event)
	if err != nil {
		return err
	}
	if record.ProcessedAt != nil {
		s.log.Info("webhook already processed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	if err := s.apply(ctx, event); err != nil {
		s.log.Error("webhook handler failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}
	return s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now().UTC())
}

func (s *Service) record(ctx context.Context, provider string, event *domain.Event) (*domain.EventRecord, error) {
	record := &domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now().UTC(),
	}
	if id, err := snowflake.ParseString(event.ProjectID); err == nil && id != 0 {
		record.ProjectID = &id
	}

	if _, err := s.repo.InsertEvent(ctx, s.db, record); err != nil {
		return nil, err
	}
	stored, err := s.repo.FindEvent(ctx, s.db, provider, event.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("billing_event_not_recorded")
	}
	return stored, nil
}

func (s *Service) apply(ctx context.Context, event *domain.Event) error {
	switch event.Type {
	case domain.EventCheckoutCompleted:
		return s.applyCheckout(ctx, event)
	case domain.EventSubscriptionUpdated:
		return s.applySubscriptionUpdate(ctx, event)
	case domain.EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, event)
	case domain.EventInvoicePaid:
		s.log.Info("invoice payment succeeded",
			zap.String("invoice_id", event.InvoiceID),
			zap.String("customer_id", event.CustomerID),
			zap.Int64("amount_paid", event.AmountPaid),
		)
	case domain.EventInvoiceFailed:
		s.log.Warn("invoice payment failed",
			zap.String("invoice_id", event.InvoiceID),
			zap.String("customer_id", event.CustomerID),
		)
	default:
		s.log.Info("unhandled webhook event", zap.String("event_type", event.Type))
	}
	return nil
}

func (s *Service) applyCheckout(ctx context.Context, event *domain.Event) error {
	projectID, err := snowflake.ParseString(event.ProjectID)
	if err != nil || projectID == 0 {
		s.log.Warn("checkout completed without project",
			zap.String("event_id", event.ID),
			zap.String("customer_id", event.CustomerID),
		)
		return nil
	}

	update := projectdomain.BillingUpdate{
		ProjectID:        projectID,
		StripeCustomerID: event.CustomerID,
		SubscriptionID:   event.SubscriptionID,
		PriceID:          event.PriceID,
	}
	if plan, ok := s.plans.Get().FindByPriceID(event.PriceID); ok {
		update.Plan = plan.ID
		update.Tier = plan.ID
	}
	if err := s.projects.ApplyBilling(ctx, update); err != nil {
		return s.ignoreMissingProject(event, err)
	}
	s.auditPlanChange(ctx, event, projectID, update.Plan)
	return nil
}

func (s *Service) applySubscriptionUpdate(ctx context.Context, event *domain.Event) error {
	project, err := s.findProject(ctx, event)
	if err != nil || project == nil {
		return err
	}

	update := projectdomain.BillingUpdate{
		ProjectID:        project.ID,
		StripeCustomerID: event.CustomerID,
		SubscriptionID:   event.SubscriptionID,
		PriceID:          event.PriceID,
		PlanExpiresAt:    event.PeriodEnd,
	}
	switch event.Status {
	case "canceled", "unpaid", "incomplete_expired":
		update.Plan = config.PlanFree
		update.Tier = projectdomain.TierFree
		update.PlanExpiresAt = nil
		update.ClearExpiry = true
	default:
		if plan, ok := s.plans.Get().FindByPriceID(event.PriceID); ok {
			update.Plan = plan.ID
			update.Tier = plan.ID
		}
	}
	if err := s.projects.ApplyBilling(ctx, update); err != nil {
		return s.ignoreMissingProject(event, err)
	}
	s.auditPlanChange(ctx, event, project.ID, update.Plan)
	return nil
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event *domain.Event) error {
	project, err := s.findProject(ctx, event)
	if err != nil || project == nil {
		return err
	}
	err = s.projects.ApplyBilling(ctx, projectdomain.BillingUpdate{
		ProjectID:   project.ID,
		Plan:        config.PlanFree,
		Tier:        projectdomain.TierFree,
		ClearExpiry: true,
	})
	if err == nil {
		s.log.Info("subscription cancelled, project downgraded",
			zap.String("project_id", project.ID.String()),
			zap.String("subscription_id", event.SubscriptionID),
		)
		s.auditPlanChange(ctx, event, project.ID, config.PlanFree)
	}
	return s.ignoreMissingProject(event, err)
}

func (s *Service) auditPlanChange(ctx context.Context, event *domain.Event, projectID snowflake.ID, plan string) {
	if s.audit == nil {
		return
	}
	metadata := map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	}
	if plan != "" {
		metadata["plan"] = plan
	}
	if event.CustomerID != "" {
		metadata["customer_id"] = event.CustomerID
	}
	if event.SubscriptionID != "" {
		metadata["subscription_id"] = event.SubscriptionID
	}
	err := s.audit.Record(ctx, auditdomain.Entry{
		ProjectID:  &projectID,
		ActorType:  auditdomain.ActorTypeBilling,
		ActorID:    "stripe",
		Action:     auditdomain.ActionBillingPlanChanged,
		TargetType: auditdomain.TargetProject,
		TargetID:   projectID.String(),
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Warn("audit record failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// findProject resolves the project by subscription id, falling back to the
// projectId copied into the subscription metadata at checkout.
func (s *Service) findProject(ctx context.Context, event *domain.Event) (*projectdomain.Project, error) {
	if event.SubscriptionID != "" {
		project, err := s.projects.FindBySubscriptionID(ctx, event.SubscriptionID)
		if err == nil {
			return project, nil
		}
		if !errors.Is(err, projectdomain.ErrNotFound) {
			return nil, err
		}
	}
	if id, err := snowflake.ParseString(event.ProjectID); err == nil && id != 0 {
		project, err := s.projects.GetByID(ctx, id)
		if err == nil {
			return project, nil
		}
		if !errors.Is(err, projectdomain.ErrNotFound) {
			return nil, err
		}
	}
	s.log.Warn("webhook for unknown subscription",
		zap.String("event_id", event.ID),
		zap.String("subscription_id", event.SubscriptionID),
	)
	return nil, nil
}

// Deliveries for projects that no longer exist are acknowledged so the
// provider stops retrying them.
func (s *Service) ignoreMissingProject(event *domain.Event, err error) error {
	if errors.Is(err, projectdomain.ErrNotFound) {
		s.log.Warn("webhook for unknown project", zap.String("event_id", event.ID), zap.String("project_id", event.ProjectID))
		return nil
	}
	return err
}

func (s *Service) origin(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin != "" {
		return origin
	}
	if s.baseURL != "" {
		return s.baseURL
	}
	return defaultOrigin
}

