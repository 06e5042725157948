package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/riteshkumar/savings-ledger/internal/auth"
	"github.com/riteshkumar/savings-ledger/internal/middleware"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/repository"
	"github.com/riteshkumar/savings-ledger/internal/service"
)

type testAPI struct {
	server *httptest.Server
	issuer *auth.TokenIssuer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	svc := service.NewSavingService(store, store.Savings(), store.Transactions(), store.Audit(), logger)
	issuer := auth.NewTokenIssuer("handler-test-secret", time.Hour)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(issuer))
	NewSavingHandler(svc, logger).RegisterRoutes(api)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testAPI{server: ts, issuer: issuer}
}

func (a *testAPI) token(t *testing.T, customerID string) string {
	t.Helper()
	tok, err := a.issuer.GenerateToken(customerID)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func doJSON(t *testing.T, method, url, token string, body any, wantCode int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		t.Fatalf("%s %s code=%d want=%d", method, url, resp.StatusCode, wantCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func TestHTTPFlow(t *testing.T) {
	api := newTestAPI(t)
	base := api.server.URL + "/api/savings"
	tok := api.token(t, "customer-1")

	var main, second models.Saving
	doJSON(t, http.MethodPost, base, tok, map[string]any{
		"accountName": "Main", "accountType": "hysa", "balance": 1000.00, "interestRate": 12,
	}, http.StatusCreated, &main)
	if main.ID == "" || main.Name != "Main" || main.Balance.String() != "1000.00" {
		t.Fatalf("created saving unexpected: %+v", main)
	}
	doJSON(t, http.MethodPost, base, tok, map[string]any{
		"accountName": "Second", "accountType": "hysa", "balance": "500.00",
	}, http.StatusCreated, &second)

	var got models.Saving
	doJSON(t, http.MethodPost, base+"/"+main.ID+"/deposit", tok, map[string]any{"amount": 200}, http.StatusOK, &got)
	if got.Balance.String() != "1200.00" {
		t.Fatalf("after deposit balance=%s", got.Balance)
	}
	doJSON(t, http.MethodPost, base+"/"+main.ID+"/withdraw", tok, map[string]any{"amount": 200}, http.StatusOK, &got)
	if got.Balance.String() != "1000.00" {
		t.Fatalf("after withdraw balance=%s", got.Balance)
	}
	doJSON(t, http.MethodPost, base+"/transfer", tok, map[string]any{
		"fromId": main.ID, "toId": second.ID, "amount": 300, "description": "move",
	}, http.StatusNoContent, nil)

	var list []models.Saving
	doJSON(t, http.MethodGet, base, tok, nil, http.StatusOK, &list)
	balances := map[string]string{}
	for _, s := range list {
		balances[s.ID] = s.Balance.String()
	}
	if balances[main.ID] != "700.00" || balances[second.ID] != "800.00" {
		t.Fatalf("balances=%v want 700.00/800.00", balances)
	}

	var entries []models.SavingTransaction
	doJSON(t, http.MethodGet, base+"/"+main.ID+"/transactions", tok, nil, http.StatusOK, &entries)
	if len(entries) != 3 || entries[0].Type != models.TransactionTypeTransferOut {
		t.Fatalf("ledger unexpected: %+v", entries)
	}

	var projection []models.ProjectionEntry
	doJSON(t, http.MethodGet, base+"/"+main.ID+"/projection", tok, nil, http.StatusOK, &projection)
	if len(projection) != 12 {
		t.Fatalf("default projection len=%d want=12", len(projection))
	}
	doJSON(t, http.MethodGet, base+"/"+main.ID+"/projection?months=1", tok, nil, http.StatusOK, &projection)
	if len(projection) != 1 || projection[0].Interest.String() != "7.00" || projection[0].Balance.String() != "707.00" {
		t.Fatalf("projection unexpected: %+v", projection)
	}

	doJSON(t, http.MethodPut, base+"/"+second.ID, tok, map[string]any{
		"accountName": "Renamed", "accountType": "other", "balance": 800,
	}, http.StatusOK, &got)
	if got.Name != "Renamed" {
		t.Fatalf("update name=%q", got.Name)
	}

	doJSON(t, http.MethodDelete, base+"/"+second.ID, tok, nil, http.StatusNoContent, nil)
	doJSON(t, http.MethodGet, base+"/"+second.ID+"/transactions", tok, nil, http.StatusNotFound, nil)
}

func TestHTTPErrors(t *testing.T) {
	api := newTestAPI(t)
	base := api.server.URL + "/api/savings"
	owner := api.token(t, "customer-1")
	other := api.token(t, "customer-2")

	var s models.Saving
	doJSON(t, http.MethodPost, base, owner, map[string]any{
		"accountName": "A", "accountType": "hysa", "balance": 100,
	}, http.StatusCreated, &s)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		code   int
	}{
		{"no token", http.MethodGet, "", "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "", "garbage", nil, http.StatusUnauthorized},
		{"malformed body", http.MethodPost, "", owner, "not an object", http.StatusBadRequest},
		{"missing name", http.MethodPost, "", owner, map[string]any{"accountType": "x", "balance": 1}, http.StatusBadRequest},
		{"zero deposit", http.MethodPost, "/" + s.ID + "/deposit", owner, map[string]any{"amount": 0}, http.StatusBadRequest},
		{"huge exponent deposit", http.MethodPost, "/" + s.ID + "/deposit", owner, json.RawMessage(`{"amount":1e7000000}`), http.StatusBadRequest},
		{"tiny exponent deposit", http.MethodPost, "/" + s.ID + "/deposit", owner, json.RawMessage(`{"amount":1e-7000000}`), http.StatusBadRequest},
		{"rate beyond column", http.MethodPost, "", owner, map[string]any{"accountName": "A", "accountType": "x", "balance": 1, "interestRate": 100000}, http.StatusBadRequest},
		{"overdraw", http.MethodPost, "/" + s.ID + "/withdraw", owner, map[string]any{"amount": 100.01}, http.StatusBadRequest},
		{"unknown saving", http.MethodPost, "/missing/deposit", owner, map[string]any{"amount": 1}, http.StatusNotFound},
		{"foreign deposit", http.MethodPost, "/" + s.ID + "/deposit", other, map[string]any{"amount": 1}, http.StatusForbidden},
		{"foreign delete", http.MethodDelete, "/" + s.ID, other, nil, http.StatusForbidden},
		{"foreign transactions", http.MethodGet, "/" + s.ID + "/transactions", other, nil, http.StatusForbidden},
		{"same account transfer", http.MethodPost, "/transfer", owner, map[string]any{"fromId": s.ID, "toId": s.ID, "amount": 1}, http.StatusBadRequest},
		{"transfer unknown destination", http.MethodPost, "/transfer", owner, map[string]any{"fromId": s.ID, "toId": "missing", "amount": 1}, http.StatusNotFound},
		{"bad months", http.MethodGet, "/" + s.ID + "/projection?months=abc", owner, nil, http.StatusBadRequest},
		{"negative months", http.MethodGet, "/" + s.ID + "/projection?months=-1", owner, nil, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body models.ErrorResponse
			doJSON(t, tc.method, base+tc.path, tc.token, tc.body, tc.code, &body)
			if body.Error == "" {
				t.Fatalf("error body missing: %+v", body)
			}
		})
	}

	var list []models.Saving
	doJSON(t, http.MethodGet, base, owner, nil, http.StatusOK, &list)
	if len(list) != 1 || list[0].Balance.String() != "100.00" {
		t.Fatalf("saving mutated by rejected requests: %+v", list)
	}
}
