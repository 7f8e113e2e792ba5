package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/waitlist/internal/billing/domain"
	"github.com/smallbiznis/waitlist/internal/config"
)

// SignatureTolerance bounds how old a signed webhook timestamp may be.
const SignatureTolerance = 5 * time.Minute

type Config struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		APIBaseURL:    cfg.Stripe.APIBaseURL,
	}
}

type Adapter struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	client        *http.Client
	now           func() time.Time
}

func New(cfg Config) *Adapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Adapter{
		apiKey:        strings.TrimSpace(cfg.SecretKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 12 * time.Second},
		now:           time.Now,
	}
}

func (a *Adapter) Provider() string {
	return domain.ProviderStripe
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest, successURL, cancelURL string) (domain.Session, error) {
	values := url.Values{}
	values.Set("mode", "subscription")
	values.Set("line_items[0][price]", req.PriceID)
	values.Set("line_items[0][quantity]", "1")
	values.Set("success_url", successURL)
	values.Set("cancel_url", cancelURL)
	values.Set("allow_promotion_codes", "true")
	values.Set("billing_address_collection", "auto")
	if req.Email != "" {
		values.Set("customer_email", req.Email)
	}
	values.Set("metadata[projectId]", req.ProjectID)
	values.Set("metadata[priceId]", req.PriceID)
	values.Set("subscription_data[metadata][projectId]", req.ProjectID)

	return a.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values)
}

func (a *Adapter) CreatePortalSession(ctx context.Context, customerID, returnURL string) (domain.Session, error) {
	values := url.Values{}
	values.Set("customer", customerID)
	values.Set("return_url", returnURL)

	return a.doRequest(ctx, http.MethodPost, "/v1/billing_portal/sessions", values)
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) doRequest(ctx context.Context, method, path string, values url.Values) (domain.Session, error) {
	if a.apiKey == "" {
		return domain.Session{}, domain.ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return domain.Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.Session{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return domain.Session{}, domain.ErrProviderRequest
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			return domain.Session{}, domain.ErrProviderRequest
		}
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrProviderRequest, message)
	}

	var session domain.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return domain.Session{}, err
	}
	if session.ID == "" || session.URL == "" {
		return domain.Session{}, errors.New("stripe_response_invalid")
	}
	return session, nil
}

// Verify checks the Stripe-Signature header: an HMAC-SHA256 of "t.payload"
// under the endpoint secret, signed within SignatureTolerance.
func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrNotConfigured
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return domain.ErrSignatureTooOld
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(payload []byte) (*domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, domain.ErrInvalidEvent
	}

	out := &domain.Event{
		ID:         event.ID,
		Type:       event.Type,
		OccurredAt: timestamp(event.Created),
		RawPayload: payload,
	}

	switch event.Type {
	case domain.EventCheckoutCompleted:
		var session stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.CustomerID = objectID(session.Customer)
		out.CustomerEmail = strings.TrimSpace(session.CustomerEmail)
		out.SubscriptionID = objectID(session.Subscription)
		out.ProjectID = readMetadataValue(session.Metadata, "projectId")
		out.PriceID = readMetadataValue(session.Metadata, "priceId")
	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.SubscriptionID = sub.ID
		out.CustomerID = objectID(sub.Customer)
		out.Status = sub.Status
		out.ProjectID = readMetadataValue(sub.Metadata, "projectId")
		if len(sub.Items.Data) > 0 {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			out.PeriodEnd = &end
		}
	case domain.EventInvoicePaid, domain.EventInvoiceFailed:
		var invoice stripeInvoice
		if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.InvoiceID = invoice.ID
		out.CustomerID = objectID(invoice.Customer)
		out.SubscriptionID = objectID(invoice.Subscription)
		out.AmountPaid = invoice.AmountPaid
	default:
		return out, domain.ErrEventIgnored
	}
	return out, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string          `json:"id"`
	Customer      json.RawMessage `json:"customer"`
	CustomerEmail string          `json:"customer_email"`
	Subscription  json.RawMessage `json:"subscription"`
	Metadata      map[string]any  `json:"metadata"`
}

type stripeSubscription struct {
	ID               string          `json:"id"`
	Customer         json.RawMessage `json:"customer"`
	Status           string          `json:"status"`
	CurrentPeriodEnd int64           `json:"current_period_end"`
	Metadata         map[string]any  `json:"metadata"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	ID           string          `json:"id"`
	Customer     json.RawMessage `json:"customer"`
	Subscription json.RawMessage `json:"subscription"`
	AmountPaid   int64           `json:"amount_paid"`
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

// objectID reads an id that Stripe sends either as a string or, when
// expanded, as an object with an id field.
func objectID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
