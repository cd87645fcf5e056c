package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/matcha-bridge/api/internal/platform/auth"
	"github.com/matcha-bridge/api/internal/repositories/memory"
	"github.com/matcha-bridge/api/internal/services"
)

func newTestComplianceService(t *testing.T) services.ComplianceService {
	t.Helper()
	registry := memory.NewRegistry()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	svc, err := services.NewComplianceService(services.ComplianceServiceDeps{
		Rules:       registry.ComplianceRules(),
		Evaluations: registry.ComplianceEvaluations(),
		Clock: func() time.Time {
			now = now.Add(time.Second)
			return now
		},
		IDGenerator: func() string {
			n++
			return fmt.Sprintf("ID%03d", n)
		},
	})
	if err != nil {
		t.Fatalf("new compliance service: %v", err)
	}
	return svc
}

func newComplianceRouter(svc services.ComplianceService) http.Handler {
	return NewRouter(
		WithComplianceRoutes(NewComplianceHandlers(nil, svc).Routes),
		WithAdminRoutes(NewAdminComplianceHandlers(nil, svc).Routes),
	)
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func createRule(t *testing.T, handler http.Handler, body string) rulePayload {
	t.Helper()
	rr := doJSON(t, handler, http.MethodPost, "/api/v1/admin/compliance/rules", body, &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	return decodeBody[rulePayload](t, rr)
}

func TestComplianceHandlersEvaluateAggregatesRules(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))

	first := createRule(t, router, `{"destinationCountry":"us","productCategory":"matcha","requiredDocs":["FDA Prior Notice","Invoice"],"requiredCertifications":["Organic"],"disclaimerText":"<b>Check FDA</b><script>alert(1)</script>"}`)
	second := createRule(t, router, `{"destinationCountry":"US","productCategory":"matcha","minDeclaredValueUsd":2500,"requiredDocs":["Invoice","Formal Entry"],"warnings":["Formal entry above $2,500"]}`)
	createRule(t, router, `{"destinationCountry":"US","productCategory":"matcha","maxWeightKg":1,"requiredDocs":["Never"]}`)

	if first.DestinationCountry != "US" {
		t.Fatalf("expected country normalised to US, got %s", first.DestinationCountry)
	}
	if first.DisclaimerText != "<b>Check FDA</b>" {
		t.Fatalf("expected sanitised disclaimer, got %q", first.DisclaimerText)
	}

	rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluate",
		`{"destinationCountry":"US","productCategory":"matcha","declaredValueUsd":3000,"weightKg":5}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	result := decodeBody[evaluationResultPayload](t, rr)

	wantDocs := []string{"FDA Prior Notice", "Invoice", "Formal Entry"}
	if fmt.Sprint(result.RequiredDocs) != fmt.Sprint(wantDocs) {
		t.Fatalf("expected docs %v, got %v", wantDocs, result.RequiredDocs)
	}
	if fmt.Sprint(result.AppliedRuleIDs) != fmt.Sprint([]string{first.ID, second.ID}) {
		t.Fatalf("expected applied rules in creation order, got %v", result.AppliedRuleIDs)
	}
	if fmt.Sprint(result.MissingCertifications) != "[Organic]" {
		t.Fatalf("expected missing Organic, got %v", result.MissingCertifications)
	}
	if result.ComplianceLevel != "HIGH" {
		t.Fatalf("expected HIGH level with missing certifications, got %s", result.ComplianceLevel)
	}
	if result.DisclaimerText != "<b>Check FDA</b>" {
		t.Fatalf("expected first matched rule's disclaimer, got %q", result.DisclaimerText)
	}
}

func TestComplianceHandlersEvaluateNoRules(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))

	rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluate",
		`{"destinationCountry":"DE","productCategory":"matcha","declaredValueUsd":10,"weightKg":1}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	result := decodeBody[evaluationResultPayload](t, rr)
	if result.ComplianceLevel != "LOW" {
		t.Fatalf("expected LOW, got %s", result.ComplianceLevel)
	}
	if result.RequiredDocs == nil || len(result.RequiredDocs) != 0 {
		t.Fatalf("expected empty docs array, got %v", result.RequiredDocs)
	}
	if result.DisclaimerText != services.DefaultComplianceDisclaimer {
		t.Fatalf("expected default disclaimer, got %q", result.DisclaimerText)
	}
}

func TestComplianceHandlersEvaluateValidation(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown country", `{"destinationCountry":"ZZ","productCategory":"matcha","weightKg":1}`, http.StatusBadRequest, "invalid_input"},
		{"zero weight", `{"destinationCountry":"US","productCategory":"matcha","weightKg":0}`, http.StatusBadRequest, "invalid_input"},
		{"unknown field", `{"destinationCountry":"US","productCategory":"matcha","weightKg":1,"extra":true}`, http.StatusBadRequest, "invalid_request"},
		{"empty body", ``, http.StatusBadRequest, "invalid_request"},
		{"trailing data", `{"destinationCountry":"US","productCategory":"matcha","weightKg":1} {}`, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluate", tc.body, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			body := decodeBody[map[string]any](t, rr)
			if body["error"] != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestComplianceHandlersEvaluateRejectsOversizedBody(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))
	huge := `{"destinationCountry":"US","productCategory":"` + string(bytes.Repeat([]byte("a"), maxJSONBodySize)) + `"}`

	rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluate", huge, nil)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
}

func TestComplianceHandlersSaveAndListEvaluations(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))
	createRule(t, router, `{"destinationCountry":"JP","productCategory":"matcha","requiredDocs":["Phytosanitary"]}`)
	buyer := &auth.Identity{UID: "buyer-7", Roles: []string{auth.RoleBuyer}}

	for i := 0; i < 3; i++ {
		rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluations",
			`{"rfqId":" rfq-1 ","input":{"destinationCountry":"jp","productCategory":"matcha","declaredValueUsd":100,"weightKg":2}}`, buyer)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		saved := decodeBody[evaluationPayload](t, rr)
		if saved.RFQID != "rfq-1" {
			t.Fatalf("expected trimmed rfq id, got %q", saved.RFQID)
		}
		if saved.EvaluatedBy != "buyer-7" {
			t.Fatalf("expected evaluator from identity, got %q", saved.EvaluatedBy)
		}
		if saved.Input.DestinationCountry != "JP" {
			t.Fatalf("expected normalised input country, got %s", saved.Input.DestinationCountry)
		}
		if fmt.Sprint(saved.Result.RequiredDocs) != "[Phytosanitary]" {
			t.Fatalf("expected evaluated docs, got %v", saved.Result.RequiredDocs)
		}
	}

	rr := doJSON(t, router, http.MethodGet, "/api/v1/compliance/evaluations?rfqId=rfq-1&take=2", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	page := decodeBody[pagePayload[evaluationPayload]](t, rr)
	if page.Total != 3 || len(page.Data) != 2 || page.PageCount != 2 || page.Take != 2 {
		t.Fatalf("unexpected page metadata %+v", page)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/compliance/evaluations?quoteId=quote-1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if empty := decodeBody[pagePayload[evaluationPayload]](t, rr); empty.Total != 0 || empty.Data == nil {
		t.Fatalf("expected empty non-nil page, got %+v", empty)
	}
}

func TestComplianceHandlersSaveEvaluationWithSuppliedResult(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))

	rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluations",
		`{"orderId":"order-9","input":{"destinationCountry":"GB","productCategory":"matcha","weightKg":1},"result":{"requiredDocs":["Invoice"],"appliedRuleIds":["rule_a","rule_b"],"complianceLevel":""}}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	saved := decodeBody[evaluationPayload](t, rr)
	if saved.Result.ComplianceLevel != "MEDIUM" {
		t.Fatalf("expected derived MEDIUM level, got %s", saved.Result.ComplianceLevel)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluations",
		`{"orderId":"order-9","input":{"destinationCountry":"GB","productCategory":"matcha","weightKg":1},"result":{"complianceLevel":"extreme"}}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown level, got %d", rr.Code)
	}
}

func TestComplianceHandlersListEvaluationsRequiresSingleReference(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))

	for _, target := range []string{
		"/api/v1/compliance/evaluations",
		"/api/v1/compliance/evaluations?rfqId=a&orderId=b",
		"/api/v1/compliance/evaluations?rfqId=a&take=-1",
	} {
		rr := doJSON(t, router, http.MethodGet, target, "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
	}
}

func TestAdminComplianceHandlersRuleLifecycle(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))
	admin := &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}

	rule := createRule(t, router, `{"destinationCountry":"SG","productCategory":"matcha","minWeightKg":1,"maxWeightKg":20,"requiredDocs":["Import permit"]}`)
	if rule.CreatedBy != "admin-1" || !rule.IsActive {
		t.Fatalf("unexpected created rule %+v", rule)
	}

	rr := doJSON(t, router, http.MethodGet, "/api/v1/admin/compliance/rules/"+rule.ID, "", admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPatch, "/api/v1/admin/compliance/rules/"+rule.ID,
		`{"minWeightKg":null,"maxWeightKg":50,"warnings":["Cold chain"]}`, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	updated := decodeBody[rulePayload](t, rr)
	if updated.MinWeightKg != nil {
		t.Fatalf("expected minWeightKg cleared, got %v", *updated.MinWeightKg)
	}
	if updated.MaxWeightKg == nil || *updated.MaxWeightKg != 50 {
		t.Fatalf("expected maxWeightKg 50, got %v", updated.MaxWeightKg)
	}
	if fmt.Sprint(updated.RequiredDocs) != "[Import permit]" {
		t.Fatalf("expected untouched docs, got %v", updated.RequiredDocs)
	}

	rr = doJSON(t, router, http.MethodPatch, "/api/v1/admin/compliance/rules/"+rule.ID, `{"maxWeightKg":"heavy"}`, admin)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for non-numeric threshold, got %d", rr.Code)
	}
	if body := decodeBody[map[string]any](t, rr); body["field"] != "maxWeightKg" {
		t.Fatalf("expected offending threshold named, got %v", body["field"])
	}

	rr = doJSON(t, router, http.MethodPatch, "/api/v1/admin/compliance/rules/"+rule.ID, `{"minWeightKg":80}`, admin)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for inverted weight band, got %d", rr.Code)
	}
	if body := decodeBody[map[string]any](t, rr); body["field"] != "minWeightKg" {
		t.Fatalf("expected minWeightKg named, got %v", body["field"])
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/admin/compliance/rules/"+rule.ID, "", admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if deleted := decodeBody[rulePayload](t, rr); deleted.IsActive {
		t.Fatalf("expected rule deactivated")
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/admin/compliance/rules?country=sg&active=true", "", admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if page := decodeBody[pagePayload[rulePayload]](t, rr); page.Total != 0 {
		t.Fatalf("expected no active rules, got %d", page.Total)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/admin/compliance/rules?country=SG", "", admin)
	if page := decodeBody[pagePayload[rulePayload]](t, rr); page.Total != 1 {
		t.Fatalf("expected inactive rule still listed, got %d", page.Total)
	}
}

func TestAdminComplianceHandlersErrors(t *testing.T) {
	router := newComplianceRouter(newTestComplianceService(t))

	rr := doJSON(t, router, http.MethodGet, "/api/v1/admin/compliance/rules/rule_missing", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if body := decodeBody[map[string]any](t, rr); body["error"] != "rule_not_found" {
		t.Fatalf("expected rule_not_found, got %v", body["error"])
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/admin/compliance/rules", `{"destinationCountry":"US","productCategory":"matcha","minWeightKg":5,"maxWeightKg":1}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for inverted bounds, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/admin/compliance/rules?active=maybe", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad boolean, got %d", rr.Code)
	}
}

type stubComplianceService struct {
	services.ComplianceService
	err error
}

func (s stubComplianceService) Evaluate(context.Context, services.ComplianceEvaluationInput) (services.ComplianceEvaluationResult, error) {
	return services.ComplianceEvaluationResult{}, s.err
}

func TestWriteComplianceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrComplianceConflict, http.StatusConflict},
		{fmt.Errorf("%w: firestore down", services.ErrComplianceUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		router := NewRouter(WithComplianceRoutes(NewComplianceHandlers(nil, stubComplianceService{err: tc.err}).Routes))
		rr := doJSON(t, router, http.MethodPost, "/api/v1/compliance/evaluate", `{"destinationCountry":"US","productCategory":"matcha","weightKg":1}`, nil)
		if rr.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}

type stubTokenVerifier struct {
	tokens map[string]*firebaseauth.Token
}

func (s stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	token, ok := s.tokens[idToken]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return token, nil
}

func TestAdminComplianceHandlersRequireAdminRole(t *testing.T) {
	authn := auth.NewAuthenticator(stubTokenVerifier{tokens: map[string]*firebaseauth.Token{
		"buyer": {UID: "buyer-1", Claims: map[string]any{"role": "buyer"}},
		"admin": {UID: "admin-1", Claims: map[string]any{"role": "admin"}},
	}})
	svc := newTestComplianceService(t)
	router := NewRouter(WithAdminRoutes(NewAdminComplianceHandlers(authn, svc).Routes))

	tests := []struct {
		token  string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"buyer", http.StatusForbidden},
		{"admin", http.StatusOK},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/compliance/rules", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("token %q: expected status %d, got %d", tc.token, tc.status, rr.Code)
		}
	}
}
