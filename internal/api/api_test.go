package api

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/circulation"
	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	db     *sqlx.DB
	tokens *auth.Tokens
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	tokens := auth.NewTokens(testJWTSecret, 0)
	svc := circulation.NewService(database, config.Default().Circulation, nil, nil)

	server := httptest.NewServer(NewRouter(database, tokens, svc))
	t.Cleanup(server.Close)

	return &testEnv{server: server, db: database, tokens: tokens}
}

// user creates a user and returns it with a token.
func (e *testEnv) user(t *testing.T, username, role string) (*model.User, string) {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	class := ""
	if role == model.RoleBorrower {
		class = "student"
	}
	u, err := store.CreateUser(context.Background(), e.db, username, string(hash), role, class)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, _, err := e.tokens.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, token, body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func (e *testEnv) createTitle(t *testing.T, token string, copies int, requiresPickup bool) int64 {
	t.Helper()
	resp, body := e.do(t, "POST", "/api/titles", token, map[string]any{
		"title": "Solaris", "author": "Stanislaw Lem", "total_copies": copies, "requires_pickup": requiresPickup,
	})
	expectStatus(t, resp, http.StatusCreated)
	return int64(body["id"].(float64))
}

func TestLoginAndLogout(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "admin", model.RoleAdmin)

	resp, _ := env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp, body := env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "password"})
	expectStatus(t, resp, http.StatusOK)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("empty token from login")
	}

	resp, _ = env.do(t, "GET", "/api/users", token, nil)
	expectStatus(t, resp, http.StatusOK)

	resp, _ = env.do(t, "POST", "/api/auth/logout", token, nil)
	expectStatus(t, resp, http.StatusOK)

	resp, body = env.do(t, "GET", "/api/users", token, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	if body["error"] != "token revoked" {
		t.Errorf("expected revoked token error, got %v", body["error"])
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{"/api/titles", "/api/loans"} {
		resp, _ := env.do(t, "GET", path, "", nil)
		expectStatus(t, resp, http.StatusUnauthorized)
	}

	resp, _ := env.do(t, "GET", "/api/titles", "not-a-token", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	_, borrower := env.user(t, "reader", model.RoleBorrower)

	resp, _ := env.do(t, "POST", "/api/titles", borrower, map[string]string{"title": "Test"})
	expectStatus(t, resp, http.StatusForbidden)

	resp, _ = env.do(t, "GET", "/api/users", borrower, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp, _ = env.do(t, "GET", "/api/users", librarian, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp, _ = env.do(t, "POST", "/api/reminders/sweep", borrower, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp, _ = env.do(t, "POST", "/api/reminders/sweep", librarian, nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestCirculationFlow(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	reader, readerToken := env.user(t, "reader", model.RoleBorrower)
	_, otherToken := env.user(t, "other", model.RoleBorrower)

	titleID := env.createTitle(t, librarian, 1, false)

	resp, loan := env.do(t, "POST", "/api/loans", readerToken, map[string]any{"title_id": titleID})
	expectStatus(t, resp, http.StatusCreated)
	if loan["status"] != model.LoanStatusBorrowed {
		t.Fatalf("expected borrowed loan, got %v", loan["status"])
	}
	if int64(loan["borrower_id"].(float64)) != reader.ID {
		t.Errorf("expected loan for reader, got %v", loan["borrower_id"])
	}
	loanID := int64(loan["id"].(float64))

	resp, body := env.do(t, "POST", "/api/loans", otherToken, map[string]any{"title_id": titleID})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if body["reason"] != string(circulation.ReasonOutOfStock) {
		t.Errorf("expected out_of_stock, got %v", body["reason"])
	}

	// Another borrower cannot see or renew the loan.
	resp, _ = env.do(t, "GET", fmt.Sprintf("/api/loans/%d", loanID), otherToken, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/loans/%d/return", loanID), readerToken, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp, body = env.do(t, "GET", fmt.Sprintf("/api/loans/%d/fine?as_of=2099-01-01", loanID), readerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if amount, _ := body["amount"].(float64); amount <= 0 {
		t.Errorf("expected a fine far past the due date, got %v", body["amount"])
	}

	resp, body = env.do(t, "POST", fmt.Sprintf("/api/loans/%d/return", loanID), librarian, nil)
	expectStatus(t, resp, http.StatusOK)
	if body["status"] != model.LoanStatusReturned {
		t.Errorf("expected returned, got %v", body["status"])
	}

	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/loans/%d/return", loanID), librarian, nil)
	expectStatus(t, resp, http.StatusConflict)

	resp, body = env.do(t, "GET", fmt.Sprintf("/api/titles/%d", titleID), readerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if body["available_copies"] != float64(1) {
		t.Errorf("expected the copy back on the shelf, got %v", body["available_copies"])
	}
}

func TestPickupFlow(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	reader, _ := env.user(t, "reader", model.RoleBorrower)

	titleID := env.createTitle(t, librarian, 2, true)

	resp, loan := env.do(t, "POST", "/api/loans", librarian, map[string]any{"title_id": titleID, "borrower_id": reader.ID})
	expectStatus(t, resp, http.StatusCreated)
	if loan["status"] != model.LoanStatusWaiting {
		t.Fatalf("expected waiting loan, got %v", loan["status"])
	}
	loanID := int64(loan["id"].(float64))

	for _, step := range []struct{ action, status string }{
		{"ready", model.LoanStatusReadyForPickup},
		{"pickup", model.LoanStatusBorrowed},
	} {
		resp, body := env.do(t, "POST", fmt.Sprintf("/api/loans/%d/%s", loanID, step.action), librarian, nil)
		expectStatus(t, resp, http.StatusOK)
		if body["status"] != step.status {
			t.Errorf("%s: expected %s, got %v", step.action, step.status, body["status"])
		}
	}

	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/loans/%d/reject", loanID), librarian, nil)
	expectStatus(t, resp, http.StatusConflict)

	resp, _ = env.do(t, "POST", "/api/loans/999/ready", librarian, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestBorrowValidation(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	_, reader := env.user(t, "reader", model.RoleBorrower)
	other, _ := env.user(t, "other", model.RoleBorrower)

	titleID := env.createTitle(t, librarian, 1, false)

	resp, body := env.do(t, "POST", "/api/loans", reader, map[string]any{"title_id": titleID, "requested_days": 0})
	expectStatus(t, resp, http.StatusBadRequest)
	if body["field"] != "requested_days" {
		t.Errorf("expected requested_days field error, got %v", body)
	}

	resp, body = env.do(t, "POST", "/api/loans", reader, map[string]any{"title_id": 999})
	expectStatus(t, resp, http.StatusNotFound)
	if body["reason"] != string(circulation.ReasonNotFound) {
		t.Errorf("expected not_found, got %v", body["reason"])
	}

	resp, _ = env.do(t, "POST", "/api/loans", reader, map[string]any{"title_id": titleID, "borrower_id": other.ID})
	expectStatus(t, resp, http.StatusForbidden)

	resp, _ = env.do(t, "POST", "/api/loans", reader, map[string]any{})
	expectStatus(t, resp, http.StatusBadRequest)

	resp, _ = env.do(t, "GET", "/api/loans?status=lost", reader, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRenewAndSnapshot(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	reader, readerToken := env.user(t, "reader", model.RoleBorrower)
	other, _ := env.user(t, "other", model.RoleBorrower)

	titleID := env.createTitle(t, librarian, 1, false)
	_, loan := env.do(t, "POST", "/api/loans", readerToken, map[string]any{"title_id": titleID})
	loanID := int64(loan["id"].(float64))

	resp, body := env.do(t, "POST", fmt.Sprintf("/api/loans/%d/renew", loanID), readerToken, map[string]any{"extra_days": 5})
	expectStatus(t, resp, http.StatusOK)
	if body["renewal_count"] != float64(1) {
		t.Errorf("expected one renewal, got %v", body["renewal_count"])
	}

	resp, body = env.do(t, "POST", fmt.Sprintf("/api/loans/%d/renew", loanID), readerToken, nil)
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if body["reason"] != string(circulation.ReasonRenewalLimitExceeded) {
		t.Errorf("expected renewal_limit_exceeded, got %v", body["reason"])
	}

	resp, body = env.do(t, "GET", fmt.Sprintf("/api/borrowers/%d/snapshot", reader.ID), readerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if body["active_loans"] != float64(1) || body["has_overdue"] != false {
		t.Errorf("unexpected snapshot: %v", body)
	}

	resp, _ = env.do(t, "GET", fmt.Sprintf("/api/borrowers/%d/snapshot", other.ID), readerToken, nil)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestListLoansScopedToBorrower(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	_, readerToken := env.user(t, "reader", model.RoleBorrower)
	other, otherToken := env.user(t, "other", model.RoleBorrower)

	titleID := env.createTitle(t, librarian, 2, false)
	env.do(t, "POST", "/api/loans", readerToken, map[string]any{"title_id": titleID})
	env.do(t, "POST", "/api/loans", otherToken, map[string]any{"title_id": titleID})

	list := func(token, query string) []map[string]any {
		t.Helper()
		req, _ := authRequest("GET", env.server.URL+"/api/loans"+query, token, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusOK)
		var loans []map[string]any
		json.NewDecoder(resp.Body).Decode(&loans)
		return loans
	}

	if got := len(list(librarian, "")); got != 2 {
		t.Errorf("librarian: expected 2 loans, got %d", got)
	}
	if got := len(list(readerToken, "")); got != 1 {
		t.Errorf("reader: expected 1 loan, got %d", got)
	}
	if got := len(list(librarian, fmt.Sprintf("?borrower_id=%d&status=borrowed", other.ID))); got != 1 {
		t.Errorf("filtered: expected 1 loan, got %d", got)
	}

	resp, _ := env.do(t, "GET", fmt.Sprintf("/api/loans?borrower_id=%d", other.ID), readerToken, nil)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestAdjustCopies(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	_, reader := env.user(t, "reader", model.RoleBorrower)

	titleID := env.createTitle(t, librarian, 1, false)
	env.do(t, "POST", "/api/loans", reader, map[string]any{"title_id": titleID})

	resp, _ := env.do(t, "POST", fmt.Sprintf("/api/titles/%d/copies", titleID), librarian, map[string]int{"delta": -1})
	expectStatus(t, resp, http.StatusConflict)

	resp, body := env.do(t, "POST", fmt.Sprintf("/api/titles/%d/copies", titleID), librarian, map[string]int{"delta": 2})
	expectStatus(t, resp, http.StatusOK)
	if body["total_copies"] != float64(3) || body["available_copies"] != float64(2) {
		t.Errorf("unexpected counters: %v", body)
	}

	resp, _ = env.do(t, "DELETE", fmt.Sprintf("/api/titles/%d", titleID), librarian, nil)
	expectStatus(t, resp, http.StatusConflict)
}

func TestCoverUpload(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	titleID := env.createTitle(t, librarian, 1, false)

	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var pngData bytes.Buffer
	png.Encode(&pngData, img)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, _ := mw.CreateFormFile("image", "cover.png")
	part.Write(pngData.Bytes())
	mw.Close()

	url := fmt.Sprintf("%s/api/titles/%d/cover", env.server.URL, titleID)
	req, _ := http.NewRequest("PUT", url, &form)
	req.Header.Set("Authorization", "Bearer "+librarian)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	req, _ = authRequest("GET", url, librarian, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg cover, got %q", ct)
	}
}

func TestAssignSections(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)

	resp, body := env.do(t, "POST", "/api/sections/assign", librarian, map[string]any{
		"members": []string{"ana", "bor", "cene", "dora", "eva"},
		"sections": []map[string]any{
			{"id": "a", "capacity": 3, "current_count": 0},
			{"id": "b", "capacity": 2, "current_count": 0},
		},
	})
	expectStatus(t, resp, http.StatusOK)

	counts, _ := body["counts"].(map[string]any)
	if counts["a"] != float64(3) || counts["b"] != float64(2) {
		t.Errorf("expected 3/2 split, got %v", counts)
	}
	if body["unassigned_count"] != float64(0) {
		t.Errorf("expected everyone assigned, got %v", body["unassigned_count"])
	}

	resp, _ = env.do(t, "POST", "/api/sections/assign", librarian, map[string]any{
		"members":  []string{"ana"},
		"sections": []map[string]any{{"id": "a"}, {"id": "a"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, "GET", "/api/titles", "", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	const id = "6f1c1f1e-6b8f-4a8e-9c7a-2d7f8a1b2c3d"
	req, _ := authRequest("GET", env.server.URL+"/api/titles", "", nil)
	req.Header.Set("X-Request-ID", id)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != id {
		t.Errorf("expected request id %q to be kept, got %q", id, got)
	}
}

func TestUserManagement(t *testing.T) {
	env := setupTestServer(t)
	_, admin := env.user(t, "admin", model.RoleAdmin)

	resp, body := env.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "reader", "password": "longenough", "role": model.RoleBorrower,
	})
	expectStatus(t, resp, http.StatusCreated)
	if body["borrower_class"] != "student" {
		t.Errorf("expected default class, got %v", body["borrower_class"])
	}

	resp, _ = env.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "visitor", "password": "longenough", "role": model.RoleBorrower, "borrower_class": "alumni",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp, _ = env.do(t, "POST", "/api/users", admin, map[string]string{
		"username": "reader", "password": "longenough", "role": model.RoleBorrower,
	})
	expectStatus(t, resp, http.StatusConflict)

	resp, body = env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "reader", "password": "longenough"})
	expectStatus(t, resp, http.StatusOK)
	if body["token"] == "" {
		t.Error("new user cannot log in")
	}
}

func TestLiveTitleSkipsDeletedTitles(t *testing.T) {
	env := setupTestServer(t)
	_, librarian := env.user(t, "desk", model.RoleLibrarian)
	titleID := env.createTitle(t, librarian, 1, false)

	resp, _ := env.do(t, "DELETE", fmt.Sprintf("/api/titles/%d", titleID), librarian, nil)
	expectStatus(t, resp, http.StatusOK)

	h := &TitlesHandler{DB: env.db}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	if title, ok := h.liveTitle(rec, req, titleID); ok || title != nil {
		t.Fatalf("expected deleted title to be refused, got %v", title)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/titles/%d/copies", titleID), librarian, map[string]int{"delta": 1})
	expectStatus(t, resp, http.StatusNotFound)
}

func TestDeleteUserWithOpenLoans(t *testing.T) {
	env := setupTestServer(t)
	_, admin := env.user(t, "admin", model.RoleAdmin)
	reader, readerToken := env.user(t, "reader", model.RoleBorrower)

	titleID := env.createTitle(t, admin, 1, false)
	resp, loan := env.do(t, "POST", "/api/loans", readerToken, map[string]any{"title_id": titleID})
	expectStatus(t, resp, http.StatusCreated)

	resp, body := env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", reader.ID), admin, nil)
	expectStatus(t, resp, http.StatusConflict)
	if body["error"] != "user has open loans" {
		t.Errorf("unexpected error: %v", body["error"])
	}

	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/loans/%d/return", int64(loan["id"].(float64))), admin, nil)
	expectStatus(t, resp, http.StatusOK)

	resp, _ = env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", reader.ID), admin, nil)
	expectStatus(t, resp, http.StatusOK)
}
