package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionMiddleware_KeepsExistingIdentity(t *testing.T) {
	m := NewSessionMiddleware("test-secret")

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetClientIDFromContext(r.Context())
		if !ok {
			t.Fatalf("client id not in context")
		}
		gotID = id
	})

	w := httptest.NewRecorder()
	m.SetSessionCookie(w, "client-42")

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetSessionCookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/codes/history", nil)
	r.AddCookie(cookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if gotID != "client-42" {
		t.Fatalf("client id = %q, want %q", gotID, "client-42")
	}
}

func TestSessionMiddleware_IssuesIdentityWithoutCookie(t *testing.T) {
	m := NewSessionMiddleware("test-secret")

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetClientIDFromContext(r.Context())
		if !ok {
			t.Fatalf("client id not in context")
		}
		gotID = id
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/codes/verify", nil)

	m.Middleware(next).ServeHTTP(w, r)

	if gotID == "" {
		t.Fatalf("new client id was not issued")
	}

	res := w.Result()
	if res.StatusCode == http.StatusUnauthorized {
		t.Fatalf("session middleware must not reject requests")
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("session cookie was not set for new client")
	}
}

func TestSessionMiddleware_TamperedCookieGetsFreshIdentity(t *testing.T) {
	m := NewSessionMiddleware("test-secret")

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetClientIDFromContext(r.Context())
	})

	w := httptest.NewRecorder()
	m.SetSessionCookie(w, "client-42")
	cookie := w.Result().Cookies()[0]
	cookie.Value = "client-99." + cookie.Value[len("client-42."):]

	r := httptest.NewRequest(http.MethodGet, "/api/codes/history", nil)
	r.AddCookie(cookie)

	respRec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(respRec, r)

	if gotID == "" || gotID == "client-99" || gotID == "client-42" {
		t.Fatalf("tampered cookie must yield a fresh identity, got %q", gotID)
	}
	if respRec.Result().StatusCode == http.StatusUnauthorized {
		t.Fatalf("session middleware must not reject requests")
	}
}

func TestSessionMiddleware_DifferentSecretsRejectSignature(t *testing.T) {
	issuer := NewSessionMiddleware("secret-one")
	verifier := NewSessionMiddleware("secret-two")

	w := httptest.NewRecorder()
	issuer.SetSessionCookie(w, "client-42")
	cookie := w.Result().Cookies()[0]

	if _, ok := verifier.parseCookie(cookie.Value); ok {
		t.Fatalf("cookie signed with another secret must not verify")
	}
}
