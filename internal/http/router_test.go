package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/catalog"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/identity"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/service"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/session"
)

const (
	testSecret  = "a-test-secret-that-is-long-enough-for-hs256"
	tokenHeader = "X-Session-Token"
)

type staticCatalog map[domain.ItemKind]map[string]struct{}

func (c staticCatalog) ExistsBatch(_ context.Context, kind domain.ItemKind, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := c[kind][id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

type testServer struct {
	handler  http.Handler
	merges   *service.MergeCoordinator
	verifier *identity.JWTVerifier
}

func newTestServer(t *testing.T, maxBody int64, origins ...string) *testServer {
	t.Helper()

	repo := repository.NewMemoryRepository(time.Hour)
	checker := catalog.NewChecker(staticCatalog{
		domain.KindProduct:    {"chair-lund": {}, "table-bergen": {}},
		domain.KindCollection: {"nordic-living": {}},
	})
	lifecycle := session.NewLifecycle(repo, time.Hour, nil, nil)
	verifier := identity.NewJWTVerifier(testSecret, "em-furniture")
	merges := service.NewMergeCoordinator(repo, nil, nil, nil, nil)

	handler := NewRouter(RouterConfig{
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    maxBody,
		AllowedOrigins: origins,
		Session: SessionTransport{
			HeaderName: tokenHeader,
			CookieName: "session_token",
			TTL:        time.Hour,
		},
	}, Dependencies{
		Carts:     service.NewCartService(repo, nil, checker, nil, nil),
		Wishlists: service.NewWishlistService(repo, nil, checker, nil, nil),
		Resolver:  identity.NewResolver(verifier, lifecycle, nil),
		Merges:    merges,
	})
	return &testServer{handler: handler, merges: merges, verifier: verifier}
}

type requestOpts struct {
	token  string
	bearer string
}

func (s *testServer) do(method, path, body string, opts requestOpts) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if opts.token != "" {
		request.Header.Set(tokenHeader, opts.token)
	}
	if opts.bearer != "" {
		request.Header.Set("Authorization", "Bearer "+opts.bearer)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) signIn(t *testing.T, accountID string) string {
	t.Helper()
	token, err := s.verifier.Sign(accountID, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func decodeCart(t *testing.T, recorder *httptest.ResponseRecorder) CartResponse {
	t.Helper()
	var response CartResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return response
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, 0)
	recorder := srv.do("GET", "/health", "", requestOpts{})
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestGetCart_IssuesAnonymousToken(t *testing.T) {
	srv := newTestServer(t, 0)

	recorder := srv.do("GET", "/api/v1/cart", "", requestOpts{})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	token := recorder.Header().Get(tokenHeader)
	if token == "" {
		t.Fatal("Expected an anonymous token to be issued")
	}

	var cookie *http.Cookie
	for _, c := range recorder.Result().Cookies() {
		if c.Name == "session_token" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != token || !cookie.HttpOnly {
		t.Errorf("Expected HttpOnly session cookie carrying the token, got %+v", cookie)
	}

	response := decodeCart(t, recorder)
	if response.Owner.Kind != domain.OwnerAnonymous {
		t.Errorf("Expected anonymous owner, got %s", response.Owner.Kind)
	}
	if response.Count != 0 || len(response.Items) != 0 {
		t.Errorf("Expected empty cart, got %+v", response)
	}

	again := srv.do("GET", "/api/v1/cart", "", requestOpts{token: token})
	if again.Header().Get(tokenHeader) != "" {
		t.Error("Expected a known token not to be reissued")
	}
}

func TestGetCart_UnknownTokenIsReplaced(t *testing.T) {
	srv := newTestServer(t, 0)

	recorder := srv.do("GET", "/api/v1/cart", "", requestOpts{token: "0f8fad5b-d9cb-469f-a165-70867728950e"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	issued := recorder.Header().Get(tokenHeader)
	if issued == "" || issued == "0f8fad5b-d9cb-469f-a165-70867728950e" {
		t.Errorf("Expected a fresh token, got %q", issued)
	}
}

func TestAddItem_DefaultsQuantityAndAggregates(t *testing.T) {
	srv := newTestServer(t, 0)

	first := srv.do("POST", "/api/v1/cart/items", `{"kind":"product","id":"chair-lund"}`, requestOpts{})
	if first.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, first.Code)
	}
	token := first.Header().Get(tokenHeader)

	second := srv.do("POST", "/api/v1/cart/items", `{"kind":"products","id":"chair-lund","quantity":2}`, requestOpts{token: token})
	if second.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, second.Code)
	}

	response := decodeCart(t, second)
	if response.Count != 1 {
		t.Fatalf("Expected 1 line, got %d", response.Count)
	}
	if response.Items[0].Quantity != 3 || response.TotalQuantity != 3 {
		t.Errorf("Expected quantity 3, got %+v", response)
	}
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"invalid json", "invalid json", http.StatusBadRequest, "invalid_request"},
		{"unknown kind", `{"kind":"sofa","id":"chair-lund"}`, http.StatusBadRequest, "invalid_item"},
		{"empty id", `{"kind":"product","id":""}`, http.StatusBadRequest, "invalid_item"},
		{"zero quantity", `{"kind":"product","id":"chair-lund","quantity":0}`, http.StatusBadRequest, "invalid_quantity"},
		{"negative quantity", `{"kind":"product","id":"chair-lund","quantity":-2}`, http.StatusBadRequest, "invalid_quantity"},
		{"quantity past line limit", `{"kind":"product","id":"chair-lund","quantity":9223372036854775807}`, http.StatusBadRequest, "invalid_quantity"},
		{"missing from catalog", `{"kind":"product","id":"ghost"}`, http.StatusNotFound, "item_not_found"},
	}

	srv := newTestServer(t, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := srv.do("POST", "/api/v1/cart/items", tt.body, requestOpts{})
			if recorder.Code != tt.wantStatus {
				t.Errorf("Expected status code %d, got %d", tt.wantStatus, recorder.Code)
			}
			if got := decodeError(t, recorder); got.Code != tt.wantCode {
				t.Errorf("Expected error code %q, got %q", tt.wantCode, got.Code)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		wantAllowed bool
		wantCreds   bool
	}{
		{"nothing configured", nil, "https://evil.example", false, false},
		{"listed origin", []string{"https://shop.example"}, "https://shop.example", true, true},
		{"unlisted origin", []string{"https://shop.example"}, "https://evil.example", false, false},
		{"wildcard never sends credentials", []string{"*"}, "https://evil.example", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, 0, tt.origins...)
			req := httptest.NewRequest("GET", "/health", nil)
			req.Header.Set("Origin", tt.origin)
			recorder := httptest.NewRecorder()
			srv.handler.ServeHTTP(recorder, req)

			if recorder.Code != http.StatusOK {
				t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
			}
			allow := recorder.Header().Get("Access-Control-Allow-Origin")
			if tt.wantAllowed && allow == "" {
				t.Errorf("Expected Access-Control-Allow-Origin for %s", tt.origin)
			}
			if !tt.wantAllowed && allow != "" {
				t.Errorf("Expected no Access-Control-Allow-Origin, got %q", allow)
			}
			creds := recorder.Header().Get("Access-Control-Allow-Credentials") == "true"
			if creds != tt.wantCreds {
				t.Errorf("Expected credentials allowed %v, got %v", tt.wantCreds, creds)
			}
		})
	}
}

func TestAddItem_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, 32)

	body := `{"kind":"product","id":"` + strings.Repeat("x", 64) + `"}`
	recorder := srv.do("POST", "/api/v1/cart/items", body, requestOpts{})
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status code %d, got %d", http.StatusRequestEntityTooLarge, recorder.Code)
	}
}

func TestUpdateQuantity(t *testing.T) {
	srv := newTestServer(t, 0)

	created := srv.do("POST", "/api/v1/cart/items", `{"kind":"product","id":"table-bergen","quantity":1}`, requestOpts{})
	token := created.Header().Get(tokenHeader)

	updated := srv.do("PUT", "/api/v1/cart/items/product/table-bergen", `{"quantity":4}`, requestOpts{token: token})
	if updated.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, updated.Code)
	}
	if response := decodeCart(t, updated); response.TotalQuantity != 4 {
		t.Errorf("Expected total quantity 4, got %d", response.TotalQuantity)
	}

	missingQty := srv.do("PUT", "/api/v1/cart/items/product/table-bergen", `{}`, requestOpts{token: token})
	if missingQty.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, missingQty.Code)
	}

	notInCart := srv.do("PUT", "/api/v1/cart/items/product/chair-lund", `{"quantity":2}`, requestOpts{token: token})
	if notInCart.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, notInCart.Code)
	}
	if got := decodeError(t, notInCart); got.Code != "item_not_in_cart" {
		t.Errorf("Expected error code 'item_not_in_cart', got '%s'", got.Code)
	}

	removed := srv.do("PUT", "/api/v1/cart/items/product/table-bergen", `{"quantity":0}`, requestOpts{token: token})
	if removed.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, removed.Code)
	}
	if response := decodeCart(t, removed); response.Count != 0 {
		t.Errorf("Expected quantity 0 to remove the line, got %+v", response.Items)
	}
}

func TestRemoveAndClearCart(t *testing.T) {
	srv := newTestServer(t, 0)

	created := srv.do("POST", "/api/v1/cart/items", `{"kind":"product","id":"chair-lund"}`, requestOpts{})
	token := created.Header().Get(tokenHeader)
	srv.do("POST", "/api/v1/cart/items", `{"kind":"collection","id":"nordic-living"}`, requestOpts{token: token})

	removed := srv.do("DELETE", "/api/v1/cart/items/product/chair-lund", "", requestOpts{token: token})
	if removed.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, removed.Code)
	}
	if response := decodeCart(t, removed); response.Count != 1 || response.Items[0].Kind != domain.KindCollection {
		t.Errorf("Expected only the collection to remain, got %+v", response.Items)
	}

	again := srv.do("DELETE", "/api/v1/cart/items/product/chair-lund", "", requestOpts{token: token})
	if again.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, again.Code)
	}

	cleared := srv.do("DELETE", "/api/v1/cart", "", requestOpts{token: token})
	if cleared.Code != http.StatusNoContent {
		t.Errorf("Expected status code %d, got %d", http.StatusNoContent, cleared.Code)
	}
	if response := decodeCart(t, srv.do("GET", "/api/v1/cart", "", requestOpts{token: token})); response.Count != 0 {
		t.Errorf("Expected empty cart after clear, got %+v", response.Items)
	}
}

func TestBearerResolvesAccount(t *testing.T) {
	srv := newTestServer(t, 0)
	bearer := srv.signIn(t, "acc-1")

	recorder := srv.do("POST", "/api/v1/cart/items", `{"kind":"product","id":"chair-lund"}`, requestOpts{bearer: bearer})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}
	if recorder.Header().Get(tokenHeader) != "" {
		t.Error("Expected no anonymous token for an authenticated request")
	}
	if response := decodeCart(t, recorder); response.Owner.Kind != domain.OwnerAccount {
		t.Errorf("Expected account owner, got %s", response.Owner.Kind)
	}
}

func TestInvalidBearerFallsBackToAnonymous(t *testing.T) {
	srv := newTestServer(t, 0)

	recorder := srv.do("GET", "/api/v1/cart", "", requestOpts{bearer: "not-a-jwt"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if response := decodeCart(t, recorder); response.Owner.Kind != domain.OwnerAnonymous {
		t.Errorf("Expected anonymous owner, got %s", response.Owner.Kind)
	}
}

func TestWishlistEndpoints(t *testing.T) {
	srv := newTestServer(t, 0)

	first := srv.do("POST", "/api/v1/wishlist/items", `{"kind":"collection","id":"nordic-living"}`, requestOpts{})
	if first.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, first.Code)
	}
	token := first.Header().Get(tokenHeader)

	dup := srv.do("POST", "/api/v1/wishlist/items", `{"kind":"collection","id":"nordic-living"}`, requestOpts{token: token})
	if dup.Code != http.StatusOK {
		t.Errorf("Expected status code %d for a duplicate, got %d", http.StatusOK, dup.Code)
	}
	var response WishlistResponse
	if err := json.NewDecoder(dup.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Count != 1 {
		t.Errorf("Expected 1 wishlist line, got %d", response.Count)
	}

	missing := srv.do("DELETE", "/api/v1/wishlist/items/product/chair-lund", "", requestOpts{token: token})
	if got := decodeError(t, missing); got.Code != "item_not_in_wishlist" {
		t.Errorf("Expected error code 'item_not_in_wishlist', got '%s'", got.Code)
	}

	removed := srv.do("DELETE", "/api/v1/wishlist/items/collection/nordic-living", "", requestOpts{token: token})
	if removed.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, removed.Code)
	}

	cleared := srv.do("DELETE", "/api/v1/wishlist", "", requestOpts{token: token})
	if cleared.Code != http.StatusNoContent {
		t.Errorf("Expected status code %d, got %d", http.StatusNoContent, cleared.Code)
	}
}

func TestSessionMerge(t *testing.T) {
	srv := newTestServer(t, 0)

	guest := srv.do("POST", "/api/v1/cart/items", `{"kind":"product","id":"chair-lund","quantity":1}`, requestOpts{})
	token := guest.Header().Get(tokenHeader)
	bearer := srv.signIn(t, "acc-7")
	srv.do("POST", "/api/v1/cart/items", `{"kind":"product","id":"chair-lund","quantity":2}`, requestOpts{bearer: bearer})

	recorder := srv.do("POST", "/api/v1/session/merge", "", requestOpts{token: token, bearer: bearer})
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("Expected status code %d, got %d", http.StatusAccepted, recorder.Code)
	}
	var response MergeResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Scheduled {
		t.Error("Expected the merge to be scheduled")
	}
	for _, c := range recorder.Result().Cookies() {
		if c.Name == "session_token" && c.MaxAge >= 0 {
			t.Errorf("Expected the session cookie to be cleared, got %+v", c)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.merges.Wait(ctx); err != nil {
		t.Fatalf("merge did not finish: %v", err)
	}

	cart := decodeCart(t, srv.do("GET", "/api/v1/cart", "", requestOpts{bearer: bearer}))
	if cart.TotalQuantity != 3 {
		t.Errorf("Expected merged quantity 3, got %d", cart.TotalQuantity)
	}

	// the anonymous owner is gone, so the old token is replaced
	stale := srv.do("GET", "/api/v1/cart", "", requestOpts{token: token})
	if stale.Header().Get(tokenHeader) == "" {
		t.Error("Expected the merged token to be replaced")
	}
}

func TestSessionMerge_WithoutAnonymousToken(t *testing.T) {
	srv := newTestServer(t, 0)
	bearer := srv.signIn(t, "acc-7")

	recorder := srv.do("POST", "/api/v1/session/merge", "", requestOpts{bearer: bearer})
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("Expected status code %d, got %d", http.StatusAccepted, recorder.Code)
	}
	var response MergeResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Scheduled {
		t.Error("Expected nothing to be scheduled")
	}
}

func TestSessionMerge_Unauthenticated(t *testing.T) {
	srv := newTestServer(t, 0)

	tests := []struct {
		name   string
		bearer string
	}{
		{"missing bearer", ""},
		{"invalid bearer", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := srv.do("POST", "/api/v1/session/merge", "", requestOpts{bearer: tt.bearer, token: "0f8fad5b-d9cb-469f-a165-70867728950e"})
			if recorder.Code != http.StatusUnauthorized {
				t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
			}
			if got := decodeError(t, recorder); got.Code != "unauthenticated" {
				t.Errorf("Expected error code 'unauthenticated', got '%s'", got.Code)
			}
		})
	}
}
