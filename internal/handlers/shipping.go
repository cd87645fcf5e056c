package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/platform/auth"
	"github.com/matcha-bridge/api/internal/platform/httpx"
	"github.com/matcha-bridge/api/internal/services"
)

// ShippingHandlers serves carrier rate estimates.
type ShippingHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService
	limiter  *RateLimiter
}

// NewShippingHandlers constructs the /shipping handlers.
func NewShippingHandlers(authn *auth.Authenticator, shipping services.ShippingService, opts ...HandlerOption) *ShippingHandlers {
	options := applyHandlerOptions(opts)
	return &ShippingHandlers{authn: authn, shipping: shipping, limiter: options.limiter}
}

// Routes wires the /shipping endpoints onto r.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Optional())
	}
	if h.limiter != nil {
		r.Use(h.limiter.Middleware)
	}
	r.Post("/estimate", h.estimate)
	r.Get("/carriers", h.listCarriers)
}

type estimateRequest struct {
	OriginCountry         string  `json:"originCountry"`
	DestinationCountry    string  `json:"destinationCountry"`
	OriginPostalCode      string  `json:"originPostalCode"`
	DestinationPostalCode string  `json:"destinationPostalCode"`
	WeightKg              float64 `json:"weightKg"`
	LengthCm              float64 `json:"lengthCm"`
	WidthCm               float64 `json:"widthCm"`
	HeightCm              float64 `json:"heightCm"`
	DeclaredValueUSD      float64 `json:"declaredValueUsd"`
	ServiceLevel          string  `json:"serviceLevel"`
}

func (req estimateRequest) toParams() services.EstimateParams {
	return services.EstimateParams{
		OriginCountry:         req.OriginCountry,
		DestinationCountry:    req.DestinationCountry,
		OriginPostalCode:      req.OriginPostalCode,
		DestinationPostalCode: req.DestinationPostalCode,
		WeightKg:              req.WeightKg,
		LengthCm:              req.LengthCm,
		WidthCm:               req.WidthCm,
		HeightCm:              req.HeightCm,
		DeclaredValueUSD:      req.DeclaredValueUSD,
		ServiceLevel:          domain.ServiceLevel(req.ServiceLevel),
	}
}

func (h *ShippingHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req estimateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	quote, err := h.shipping.Estimate(ctx, req.toParams())
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newQuotePayload(quote))
}

type carrierPayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	MaxWeightKg float64 `json:"maxWeightKg"`
}

func (h *ShippingHandlers) listCarriers(w http.ResponseWriter, r *http.Request) {
	if h.shipping == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}
	carriers := h.shipping.Carriers()
	items := make([]carrierPayload, 0, len(carriers))
	for _, carrier := range carriers {
		items = append(items, carrierPayload{ID: carrier.ID, Name: carrier.Name, MaxWeightKg: carrier.MaxWeightKg})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"carriers": items})
}

// RFQHandlers derives shipment weight and estimates from stored RFQs.
type RFQHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService
	limiter  *RateLimiter
}

// NewRFQHandlers constructs the /rfqs handlers.
func NewRFQHandlers(authn *auth.Authenticator, shipping services.ShippingService, opts ...HandlerOption) *RFQHandlers {
	options := applyHandlerOptions(opts)
	return &RFQHandlers{authn: authn, shipping: shipping, limiter: options.limiter}
}

// Routes wires the /rfqs endpoints onto r.
func (h *RFQHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireRoles())
	}
	if h.limiter != nil {
		r.Use(h.limiter.Middleware)
	}
	r.Get("/{rfqId}/weight", h.weight)
	r.Post("/{rfqId}/shipping-estimate", h.estimate)
}

func (h *RFQHandlers) weight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}
	weight, err := h.shipping.CalculateRFQWeight(ctx, chi.URLParam(r, "rfqId"))
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newWeightPayload(weight))
}

// rfqEstimateRequest omits weight; it is derived from the RFQ line items.
type rfqEstimateRequest struct {
	OriginCountry         string  `json:"originCountry"`
	DestinationCountry    string  `json:"destinationCountry"`
	OriginPostalCode      string  `json:"originPostalCode"`
	DestinationPostalCode string  `json:"destinationPostalCode"`
	LengthCm              float64 `json:"lengthCm"`
	WidthCm               float64 `json:"widthCm"`
	HeightCm              float64 `json:"heightCm"`
	DeclaredValueUSD      float64 `json:"declaredValueUsd"`
	ServiceLevel          string  `json:"serviceLevel"`
}

func (h *RFQHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req rfqEstimateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	quote, err := h.shipping.EstimateForRFQ(ctx, chi.URLParam(r, "rfqId"), services.EstimateParams{
		OriginCountry:         req.OriginCountry,
		DestinationCountry:    strings.TrimSpace(req.DestinationCountry),
		OriginPostalCode:      req.OriginPostalCode,
		DestinationPostalCode: req.DestinationPostalCode,
		LengthCm:              req.LengthCm,
		WidthCm:               req.WidthCm,
		HeightCm:              req.HeightCm,
		DeclaredValueUSD:      req.DeclaredValueUSD,
		ServiceLevel:          domain.ServiceLevel(req.ServiceLevel),
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newQuotePayload(quote))
}

type estimatePayload struct {
	CarrierID   string  `json:"carrierId"`
	CarrierName string  `json:"carrierName"`
	ServiceName string  `json:"serviceName"`
	CostMin     float64 `json:"costMin"`
	CostMax     float64 `json:"costMax"`
	Currency    string  `json:"currency"`
	EtaDaysMin  int     `json:"etaDaysMin"`
	EtaDaysMax  int     `json:"etaDaysMax"`
	Notes       string  `json:"notes,omitempty"`
}

type quotePayload struct {
	Estimates       []estimatePayload `json:"estimates"`
	WeightKg        float64           `json:"weightKg"`
	Origin          string            `json:"origin"`
	Destination     string            `json:"destination"`
	ServiceLevel    string            `json:"serviceLevel"`
	WeightBreakdown *weightPayload    `json:"weightBreakdown,omitempty"`
	CalculatedAt    string            `json:"calculatedAt"`
}

func newQuotePayload(quote services.ShippingQuote) quotePayload {
	estimates := make([]estimatePayload, 0, len(quote.Estimates))
	for _, estimate := range quote.Estimates {
		estimates = append(estimates, estimatePayload{
			CarrierID:   estimate.CarrierID,
			CarrierName: estimate.CarrierName,
			ServiceName: estimate.ServiceName,
			CostMin:     estimate.CostMin,
			CostMax:     estimate.CostMax,
			Currency:    estimate.Currency,
			EtaDaysMin:  estimate.EtaDaysMin,
			EtaDaysMax:  estimate.EtaDaysMax,
			Notes:       estimate.Notes,
		})
	}
	payload := quotePayload{
		Estimates:    estimates,
		WeightKg:     quote.WeightKg,
		Origin:       quote.Origin,
		Destination:  quote.Destination,
		ServiceLevel: string(quote.ServiceLevel),
		CalculatedAt: formatTime(quote.CalculatedAt),
	}
	if quote.WeightBreakdown != nil {
		breakdown := newWeightPayload(*quote.WeightBreakdown)
		payload.WeightBreakdown = &breakdown
	}
	return payload
}

type lineItemWeightPayload struct {
	LineItemID string  `json:"lineItemId"`
	SKUID      string  `json:"skuId"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	WeightKg   float64 `json:"weightKg"`
}

type weightPayload struct {
	RFQID              string                  `json:"rfqId"`
	ItemsWeightKg      float64                 `json:"itemsWeightKg"`
	PackingAllowanceKg float64                 `json:"packingAllowanceKg"`
	TotalWeightKg      float64                 `json:"totalWeightKg"`
	Items              []lineItemWeightPayload `json:"items"`
	SkippedItems       int                     `json:"skippedItems"`
}

func newWeightPayload(weight services.RFQWeight) weightPayload {
	items := make([]lineItemWeightPayload, 0, len(weight.Items))
	for _, item := range weight.Items {
		items = append(items, lineItemWeightPayload{
			LineItemID: item.LineItemID,
			SKUID:      item.SKUID,
			Quantity:   item.Quantity,
			Unit:       item.Unit,
			WeightKg:   item.WeightKg,
		})
	}
	return weightPayload{
		RFQID:              weight.RFQID,
		ItemsWeightKg:      weight.ItemsWeightKg,
		PackingAllowanceKg: weight.PackingAllowanceKg,
		TotalWeightKg:      weight.TotalWeightKg,
		Items:              items,
		SkippedItems:       weight.SkippedItems,
	}
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, invalidInputError(err))
	case errors.Is(err, services.ErrShippingRFQNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("rfq_not_found", "rfq not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping data unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "shipping estimate failed", http.StatusInternalServerError))
	}
}
