package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vendora/paycore/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminSecret = "test-secret"

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		DefaultCurrency:    "USD",
		MinWithdrawal:      "10.00",
		RecentTransactions: 10,
		AdminSecret:        testAdminSecret,
	}
}

// newTestServer creates a server with in-memory stores and the fake rail
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.router.ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Secret": testAdminSecret}
}

func parseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return resp
}

// seedWallet creates a wallet with an initial credit through the services.
func seedWallet(t *testing.T, s *Server, accountID, amount string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.wallets.EnsureWallet(ctx, accountID, "USD"); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}
	if amount != "" {
		if _, err := s.wallets.Credit(ctx, accountID, amount, "ord_seed", "seed"); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	resp := parseBody(t, w)
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	checks, _ := resp["checks"].(map[string]interface{})
	if checks["database"] != "in-memory" {
		t.Errorf("Expected in-memory database check, got %v", checks["database"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health/live", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Not ready until Run has started the listener.
	w := doJSON(s, "GET", "/health/ready", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before startup, got %d", w.Code)
	}

	s.ready.Store(true)
	w = doJSON(s, "GET", "/health/ready", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 after startup, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Wallet routes
// ---------------------------------------------------------------------------

func TestGetWalletEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedWallet(t, s, "acct_1", "100.00")

	w := doJSON(s, "GET", "/v1/accounts/acct_1/wallet", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := parseBody(t, w)
	if resp["availableBalance"] != "100.00" {
		t.Errorf("availableBalance = %v, want 100.00", resp["availableBalance"])
	}
}

func TestGetWalletNotFound(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/v1/accounts/missing/wallet", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Admin guard
// ---------------------------------------------------------------------------

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/v1/withdrawals", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without secret, got %d", w.Code)
	}

	w = doJSON(s, "GET", "/v1/withdrawals", "", map[string]string{"X-Admin-Secret": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong secret, got %d", w.Code)
	}

	w = doJSON(s, "GET", "/v1/withdrawals", "", adminHeaders())
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with secret, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// End-to-end withdrawal flow over HTTP
// ---------------------------------------------------------------------------

func TestWithdrawalFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	seedWallet(t, s, "acct_1", "100.00")

	// Seller must be onboarded to the payout rail first.
	w := doJSON(s, "POST", "/v1/payout-rail/accounts",
		`{"accountId":"acct_1","email":"seller@example.com"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Onboard: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// The fake rail enables payouts immediately; refresh pulls that in.
	w = doJSON(s, "POST", "/v1/payout-rail/accounts/acct_1/refresh", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Refresh: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Request a payout.
	w = doJSON(s, "POST", "/v1/accounts/acct_1/wallet/payout", `{"amount":"50.00"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Payout request: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseBody(t, w)
	wd, _ := resp["withdrawal"].(map[string]interface{})
	requestID, _ := wd["id"].(string)
	if requestID == "" {
		t.Fatal("No withdrawal ID in response")
	}

	// The hold reduces the available balance immediately.
	w = doJSON(s, "GET", "/v1/accounts/acct_1/wallet", "", nil)
	resp = parseBody(t, w)
	if resp["availableBalance"] != "50.00" {
		t.Errorf("availableBalance after request = %v, want 50.00", resp["availableBalance"])
	}

	// The request shows up in the admin review queue.
	w = doJSON(s, "GET", "/v1/withdrawals?status=pending", "", adminHeaders())
	resp = parseBody(t, w)
	if resp["count"] != float64(1) {
		t.Errorf("Pending queue count = %v, want 1", resp["count"])
	}

	// Approve settles the hold through the fake rail.
	w = doJSON(s, "POST", "/v1/withdrawals/"+requestID+"/approve", "", adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = parseBody(t, w)
	wd, _ = resp["withdrawal"].(map[string]interface{})
	if wd["status"] != "completed" {
		t.Errorf("Status after approve = %v, want completed", wd["status"])
	}

	// The balance drops by the settled amount and the hold is gone.
	w = doJSON(s, "GET", "/v1/accounts/acct_1/wallet", "", nil)
	resp = parseBody(t, w)
	if resp["availableBalance"] != "50.00" {
		t.Errorf("availableBalance after settle = %v, want 50.00", resp["availableBalance"])
	}
	wallet, _ := resp["wallet"].(map[string]interface{})
	if wallet["balance"] != "50.00" {
		t.Errorf("balance after settle = %v, want 50.00", wallet["balance"])
	}
	if wallet["pendingBalance"] != "0.00" {
		t.Errorf("pendingBalance after settle = %v, want 0.00", wallet["pendingBalance"])
	}
}

func TestRejectFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	seedWallet(t, s, "acct_1", "100.00")
	doJSON(s, "POST", "/v1/payout-rail/accounts", `{"accountId":"acct_1"}`, nil)
	doJSON(s, "POST", "/v1/payout-rail/accounts/acct_1/refresh", "", nil)

	w := doJSON(s, "POST", "/v1/accounts/acct_1/wallet/payout", `{"amount":"30.00"}`, nil)
	resp := parseBody(t, w)
	wd, _ := resp["withdrawal"].(map[string]interface{})
	requestID, _ := wd["id"].(string)

	// Rejecting without a reason is a 400.
	w = doJSON(s, "POST", "/v1/withdrawals/"+requestID+"/reject", `{}`, adminHeaders())
	if w.Code != http.StatusBadRequest {
		t.Errorf("Reject without reason: expected 400, got %d", w.Code)
	}

	w = doJSON(s, "POST", "/v1/withdrawals/"+requestID+"/reject",
		`{"reason":"insufficient documentation"}`, adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Reject: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The hold is released, the balance untouched.
	w = doJSON(s, "GET", "/v1/accounts/acct_1/wallet", "", nil)
	resp = parseBody(t, w)
	if resp["availableBalance"] != "100.00" {
		t.Errorf("availableBalance after reject = %v, want 100.00", resp["availableBalance"])
	}
}

// ---------------------------------------------------------------------------
// Credit terms over HTTP
// ---------------------------------------------------------------------------

func TestCreditTermFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/credit-terms",
		`{"grantorId":"supplier_1","recipientId":"buyer_1","paymentMethod":"credit","creditDays":30,"creditLimit":"1000.00"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Enable: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseBody(t, w)
	term, _ := resp["creditTerm"].(map[string]interface{})
	termID, _ := term["id"].(string)
	if termID == "" {
		t.Fatal("No credit term ID in response")
	}

	// Authorize an order inside the limit.
	w = doJSON(s, "POST", "/v1/credit-terms/"+termID+"/authorize",
		`{"orderId":"ord_1","total":"800.00"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Authorize: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// An order pushing past the limit is rejected.
	w = doJSON(s, "POST", "/v1/credit-terms/"+termID+"/authorize",
		`{"orderId":"ord_2","total":"300.00"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Over-limit authorize: expected 400, got %d", w.Code)
	}
	resp = parseBody(t, w)
	if resp["error"] != "credit_limit_exceeded" {
		t.Errorf("error = %v, want credit_limit_exceeded", resp["error"])
	}

	// Paying the first order releases the credit for the second.
	w = doJSON(s, "POST", "/v1/wholesale-orders/ord_1/mark-paid", `{"paidAmount":"800.00"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Mark-paid: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(s, "POST", "/v1/credit-terms/"+termID+"/authorize",
		`{"orderId":"ord_2","total":"300.00"}`, nil)
	if w.Code != http.StatusCreated {
		t.Errorf("Authorize after release: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Webhook signature
// ---------------------------------------------------------------------------

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "POST", "/v1/webhooks/stripe", `{"type":"transfer.created"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsigned payload, got %d", w.Code)
	}
	resp := parseBody(t, w)
	if resp["error"] != "invalid_signature" {
		t.Errorf("error = %v, want invalid_signature", resp["error"])
	}
}

// ---------------------------------------------------------------------------
// Request ID propagation
// ---------------------------------------------------------------------------

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, "GET", "/health", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header to be set")
	}

	w = doJSON(s, "GET", "/health", "", map[string]string{"X-Request-ID": "req-abc"})
	if got := w.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want req-abc (honored)", got)
	}
}
