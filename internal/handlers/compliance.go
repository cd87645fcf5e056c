package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/platform/auth"
	"github.com/matcha-bridge/api/internal/platform/httpx"
	"github.com/matcha-bridge/api/internal/platform/pagination"
	"github.com/matcha-bridge/api/internal/services"
)

// ComplianceHandlers serves shipment evaluation and the evaluation audit trail.
type ComplianceHandlers struct {
	authn      *auth.Authenticator
	compliance services.ComplianceService
	limiter    *RateLimiter
}

// NewComplianceHandlers constructs the /compliance handlers. A nil authenticator leaves the
// routes unauthenticated, which tests rely on.
func NewComplianceHandlers(authn *auth.Authenticator, compliance services.ComplianceService, opts ...HandlerOption) *ComplianceHandlers {
	options := applyHandlerOptions(opts)
	return &ComplianceHandlers{authn: authn, compliance: compliance, limiter: options.limiter}
}

// Routes wires the /compliance endpoints onto r.
func (h *ComplianceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireRoles())
	}
	if h.limiter != nil {
		r.Use(h.limiter.Middleware)
	}
	r.Post("/evaluate", h.evaluate)
	r.Post("/evaluations", h.saveEvaluation)
	r.Get("/evaluations", h.listEvaluations)
}

func (h *ComplianceHandlers) evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req evaluationInputPayload
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.compliance.Evaluate(ctx, req.toInput())
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newEvaluationResultPayload(result))
}

type saveEvaluationRequest struct {
	RFQID   string                   `json:"rfqId"`
	QuoteID string                   `json:"quoteId"`
	OrderID string                   `json:"orderId"`
	Input   evaluationInputPayload   `json:"input"`
	Result  *evaluationResultPayload `json:"result"`
}

func (h *ComplianceHandlers) saveEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req saveEvaluationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.SaveEvaluationCommand{
		RFQID:       strings.TrimSpace(req.RFQID),
		QuoteID:     strings.TrimSpace(req.QuoteID),
		OrderID:     strings.TrimSpace(req.OrderID),
		Input:       req.Input.toInput(),
		EvaluatedBy: auth.ActorID(ctx),
	}
	if req.Result != nil {
		result := req.Result.toResult()
		cmd.Result = &result
	}

	evaluation, err := h.compliance.SaveEvaluation(ctx, cmd)
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newEvaluationPayload(evaluation))
}

func (h *ComplianceHandlers) listEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	offset, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writeInvalidInput(w, r, err)
		return
	}

	query := r.URL.Query()
	refs := map[string]string{
		"rfqId":   strings.TrimSpace(query.Get("rfqId")),
		"quoteId": strings.TrimSpace(query.Get("quoteId")),
		"orderId": strings.TrimSpace(query.Get("orderId")),
	}
	provided := 0
	for _, value := range refs {
		if value != "" {
			provided++
		}
	}
	if provided != 1 {
		writeInvalidInput(w, r, errors.New("exactly one of rfqId, quoteId or orderId is required"))
		return
	}

	var page domain.Page[services.ComplianceEvaluation]
	switch {
	case refs["rfqId"] != "":
		page, err = h.compliance.ListEvaluationsByRFQ(ctx, refs["rfqId"], offset)
	case refs["quoteId"] != "":
		page, err = h.compliance.ListEvaluationsByQuote(ctx, refs["quoteId"], offset)
	default:
		page, err = h.compliance.ListEvaluationsByOrder(ctx, refs["orderId"], offset)
	}
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}

	items := make([]evaluationPayload, 0, len(page.Data))
	for _, evaluation := range page.Data {
		items = append(items, newEvaluationPayload(evaluation))
	}
	writeJSONResponse(w, http.StatusOK, newPagePayload(page, items))
}

// AdminComplianceHandlers exposes rule CRUD to administrators.
type AdminComplianceHandlers struct {
	authn      *auth.Authenticator
	compliance services.ComplianceService
}

// NewAdminComplianceHandlers constructs the /admin/compliance handlers.
func NewAdminComplianceHandlers(authn *auth.Authenticator, compliance services.ComplianceService) *AdminComplianceHandlers {
	return &AdminComplianceHandlers{authn: authn, compliance: compliance}
}

// Routes wires the rule endpoints onto r, which is expected to be mounted at /admin.
func (h *AdminComplianceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/compliance/rules", func(rules chi.Router) {
		if h.authn != nil {
			rules.Use(h.authn.RequireRoles(auth.RoleAdmin))
		}
		rules.Get("/", h.listRules)
		rules.Post("/", h.createRule)
		rules.Get("/{ruleId}", h.getRule)
		rules.Patch("/{ruleId}", h.updateRule)
		rules.Delete("/{ruleId}", h.deleteRule)
	})
}

func (h *AdminComplianceHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	offset, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writeInvalidInput(w, r, err)
		return
	}
	query := r.URL.Query()
	activeOnly, _, err := parseBoolQuery(query.Get("active"))
	if err != nil {
		writeInvalidInput(w, r, err)
		return
	}

	page, err := h.compliance.ListRules(ctx, services.ComplianceRuleFilter{
		Offset:             offset,
		DestinationCountry: query.Get("country"),
		ProductCategory:    query.Get("category"),
		ActiveOnly:         activeOnly,
	})
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}

	items := make([]rulePayload, 0, len(page.Data))
	for _, rule := range page.Data {
		items = append(items, newRulePayload(rule))
	}
	writeJSONResponse(w, http.StatusOK, newPagePayload(page, items))
}

type createRuleRequest struct {
	DestinationCountry     string   `json:"destinationCountry"`
	ProductCategory        string   `json:"productCategory"`
	MinDeclaredValueUSD    *float64 `json:"minDeclaredValueUsd"`
	MinWeightKg            *float64 `json:"minWeightKg"`
	MaxWeightKg            *float64 `json:"maxWeightKg"`
	RequiredCertifications []string `json:"requiredCertifications"`
	RequiredDocs           []string `json:"requiredDocs"`
	Warnings               []string `json:"warnings"`
	DisclaimerText         string   `json:"disclaimerText"`
	IsActive               *bool    `json:"isActive"`
}

func (h *AdminComplianceHandlers) createRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createRuleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	rule, err := h.compliance.CreateRule(ctx, services.CreateComplianceRuleCommand{
		DestinationCountry:     req.DestinationCountry,
		ProductCategory:        req.ProductCategory,
		MinDeclaredValueUSD:    req.MinDeclaredValueUSD,
		MinWeightKg:            req.MinWeightKg,
		MaxWeightKg:            req.MaxWeightKg,
		RequiredCertifications: req.RequiredCertifications,
		RequiredDocs:           req.RequiredDocs,
		Warnings:               req.Warnings,
		DisclaimerText:         req.DisclaimerText,
		IsActive:               req.IsActive,
		ActorID:                auth.ActorID(ctx),
	})
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/compliance/rules/"+rule.ID)
	writeJSONResponse(w, http.StatusCreated, newRulePayload(rule))
}

func (h *AdminComplianceHandlers) getRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}
	rule, err := h.compliance.GetRule(ctx, chi.URLParam(r, "ruleId"))
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newRulePayload(rule))
}

// updateRuleRequest keeps thresholds raw so an explicit null can clear them.
type updateRuleRequest struct {
	DestinationCountry     *string         `json:"destinationCountry"`
	ProductCategory        *string         `json:"productCategory"`
	MinDeclaredValueUSD    json.RawMessage `json:"minDeclaredValueUsd"`
	MinWeightKg            json.RawMessage `json:"minWeightKg"`
	MaxWeightKg            json.RawMessage `json:"maxWeightKg"`
	RequiredCertifications *[]string       `json:"requiredCertifications"`
	RequiredDocs           *[]string       `json:"requiredDocs"`
	Warnings               *[]string       `json:"warnings"`
	DisclaimerText         *string         `json:"disclaimerText"`
	IsActive               *bool           `json:"isActive"`
}

func (h *AdminComplianceHandlers) updateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateRuleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.UpdateComplianceRuleCommand{
		RuleID:                 chi.URLParam(r, "ruleId"),
		DestinationCountry:     req.DestinationCountry,
		ProductCategory:        req.ProductCategory,
		RequiredCertifications: req.RequiredCertifications,
		RequiredDocs:           req.RequiredDocs,
		Warnings:               req.Warnings,
		DisclaimerText:         req.DisclaimerText,
		IsActive:               req.IsActive,
		ActorID:                auth.ActorID(ctx),
	}
	thresholds := []struct {
		name  string
		raw   json.RawMessage
		value **float64
		clear *bool
	}{
		{"minDeclaredValueUsd", req.MinDeclaredValueUSD, &cmd.MinDeclaredValueUSD, &cmd.ClearMinDeclaredValue},
		{"minWeightKg", req.MinWeightKg, &cmd.MinWeightKg, &cmd.ClearMinWeight},
		{"maxWeightKg", req.MaxWeightKg, &cmd.MaxWeightKg, &cmd.ClearMaxWeight},
	}
	for _, threshold := range thresholds {
		value, clear, err := parseThreshold(threshold.raw)
		if err != nil {
			apiErr := httpx.NewError("invalid_input", fmt.Sprintf("%s: %v", threshold.name, err), http.StatusBadRequest)
			httpx.WriteError(ctx, w, apiErr.WithField(threshold.name))
			return
		}
		*threshold.value = value
		*threshold.clear = clear
	}

	rule, err := h.compliance.UpdateRule(ctx, cmd)
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newRulePayload(rule))
}

func (h *AdminComplianceHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.compliance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("compliance_service_unavailable", "compliance service is unavailable", http.StatusServiceUnavailable))
		return
	}
	rule, err := h.compliance.DeleteRule(ctx, services.DeleteComplianceRuleCommand{
		RuleID:  chi.URLParam(r, "ruleId"),
		ActorID: auth.ActorID(ctx),
	})
	if err != nil {
		writeComplianceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newRulePayload(rule))
}

// parseThreshold distinguishes an absent field (no change) from null (clear) and a number.
func parseThreshold(raw json.RawMessage) (*float64, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, true, nil
	}
	var value float64
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, false, errors.New("must be a number or null")
	}
	return &value, false, nil
}

type evaluationInputPayload struct {
	DestinationCountry string   `json:"destinationCountry"`
	ProductCategory    string   `json:"productCategory"`
	DeclaredValueUSD   float64  `json:"declaredValueUsd"`
	WeightKg           float64  `json:"weightKg"`
	Certifications     []string `json:"certifications"`
}

func (p evaluationInputPayload) toInput() services.ComplianceEvaluationInput {
	return services.ComplianceEvaluationInput{
		DestinationCountry: p.DestinationCountry,
		ProductCategory:    p.ProductCategory,
		DeclaredValueUSD:   p.DeclaredValueUSD,
		WeightKg:           p.WeightKg,
		Certifications:     p.Certifications,
	}
}

func newEvaluationInputPayload(input services.ComplianceEvaluationInput) evaluationInputPayload {
	return evaluationInputPayload{
		DestinationCountry: input.DestinationCountry,
		ProductCategory:    input.ProductCategory,
		DeclaredValueUSD:   input.DeclaredValueUSD,
		WeightKg:           input.WeightKg,
		Certifications:     nonNilStrings(input.Certifications),
	}
}

type evaluationResultPayload struct {
	RequiredDocs          []string `json:"requiredDocs"`
	Warnings              []string `json:"warnings"`
	Flags                 []string `json:"flags"`
	DisclaimerText        string   `json:"disclaimerText"`
	AppliedRuleIDs        []string `json:"appliedRuleIds"`
	MissingCertifications []string `json:"missingCertifications"`
	ComplianceLevel       string   `json:"complianceLevel"`
}

func (p evaluationResultPayload) toResult() services.ComplianceEvaluationResult {
	return services.ComplianceEvaluationResult{
		RequiredDocs:          p.RequiredDocs,
		Warnings:              p.Warnings,
		Flags:                 p.Flags,
		DisclaimerText:        p.DisclaimerText,
		AppliedRuleIDs:        p.AppliedRuleIDs,
		MissingCertifications: p.MissingCertifications,
		ComplianceLevel:       domain.ComplianceLevel(strings.ToUpper(strings.TrimSpace(p.ComplianceLevel))),
	}
}

func newEvaluationResultPayload(result services.ComplianceEvaluationResult) evaluationResultPayload {
	return evaluationResultPayload{
		RequiredDocs:          nonNilStrings(result.RequiredDocs),
		Warnings:              nonNilStrings(result.Warnings),
		Flags:                 nonNilStrings(result.Flags),
		DisclaimerText:        result.DisclaimerText,
		AppliedRuleIDs:        nonNilStrings(result.AppliedRuleIDs),
		MissingCertifications: nonNilStrings(result.MissingCertifications),
		ComplianceLevel:       string(result.ComplianceLevel),
	}
}

type evaluationPayload struct {
	ID          string                  `json:"id"`
	RFQID       string                  `json:"rfqId,omitempty"`
	QuoteID     string                  `json:"quoteId,omitempty"`
	OrderID     string                  `json:"orderId,omitempty"`
	Input       evaluationInputPayload  `json:"input"`
	Result      evaluationResultPayload `json:"result"`
	EvaluatedBy string                  `json:"evaluatedBy,omitempty"`
	CreatedAt   string                  `json:"createdAt"`
}

func newEvaluationPayload(evaluation services.ComplianceEvaluation) evaluationPayload {
	return evaluationPayload{
		ID:          evaluation.ID,
		RFQID:       evaluation.RFQID,
		QuoteID:     evaluation.QuoteID,
		OrderID:     evaluation.OrderID,
		Input:       newEvaluationInputPayload(evaluation.Input),
		Result:      newEvaluationResultPayload(evaluation.Result),
		EvaluatedBy: evaluation.EvaluatedBy,
		CreatedAt:   formatTime(evaluation.CreatedAt),
	}
}

type rulePayload struct {
	ID                     string   `json:"id"`
	DestinationCountry     string   `json:"destinationCountry"`
	ProductCategory        string   `json:"productCategory"`
	MinDeclaredValueUSD    *float64 `json:"minDeclaredValueUsd"`
	MinWeightKg            *float64 `json:"minWeightKg"`
	MaxWeightKg            *float64 `json:"maxWeightKg"`
	RequiredCertifications []string `json:"requiredCertifications"`
	RequiredDocs           []string `json:"requiredDocs"`
	Warnings               []string `json:"warnings"`
	DisclaimerText         string   `json:"disclaimerText"`
	IsActive               bool     `json:"isActive"`
	CreatedBy              string   `json:"createdBy,omitempty"`
	CreatedAt              string   `json:"createdAt"`
	UpdatedAt              string   `json:"updatedAt"`
}

func newRulePayload(rule services.ComplianceRule) rulePayload {
	return rulePayload{
		ID:                     rule.ID,
		DestinationCountry:     rule.DestinationCountry,
		ProductCategory:        rule.ProductCategory,
		MinDeclaredValueUSD:    rule.MinDeclaredValueUSD,
		MinWeightKg:            rule.MinWeightKg,
		MaxWeightKg:            rule.MaxWeightKg,
		RequiredCertifications: nonNilStrings(rule.RequiredCertifications),
		RequiredDocs:           nonNilStrings(rule.RequiredDocs),
		Warnings:               nonNilStrings(rule.Warnings),
		DisclaimerText:         rule.DisclaimerText,
		IsActive:               rule.IsActive,
		CreatedBy:              rule.CreatedBy,
		CreatedAt:              formatTime(rule.CreatedAt),
		UpdatedAt:              formatTime(rule.UpdatedAt),
	}
}

type pagePayload[T any] struct {
	Data      []T `json:"data"`
	Total     int `json:"total"`
	Page      int `json:"page"`
	PageCount int `json:"pageCount"`
	Skip      int `json:"skip"`
	Take      int `json:"take"`
}

func newPagePayload[S, T any](page domain.Page[S], items []T) pagePayload[T] {
	if items == nil {
		items = []T{}
	}
	return pagePayload[T]{
		Data:      items,
		Total:     page.Total,
		Page:      page.Page,
		PageCount: page.PageCount,
		Skip:      page.Skip,
		Take:      page.Take,
	}
}

func writeComplianceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrComplianceInvalidInput):
		httpx.WriteError(ctx, w, invalidInputError(err))
	case errors.Is(err, services.ErrComplianceRuleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("rule_not_found", "compliance rule not found", http.StatusNotFound))
	case errors.Is(err, services.ErrComplianceConflict):
		httpx.WriteError(ctx, w, httpx.NewError("rule_conflict", "compliance rule was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrComplianceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("compliance_unavailable", "compliance storage unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("compliance_error", "compliance request failed", http.StatusInternalServerError))
	}
}
