package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"strings"
	"time"
)

const (
	csrfCookieName = "reclaim_csrf"
	csrfHeader     = "X-CSRF-Token"
	csrfNonceLen   = 16
	csrfMaxAge     = 12 * time.Hour
)

// csrfSigner issues self-validating tokens: an expiry and a nonce followed
// by their HMAC. Nothing is stored server side; a restart invalidates all
// outstanding tokens.
type csrfSigner struct {
	key []byte
	now func() time.Time
}

func newCSRFSigner() *csrfSigner {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("csrf: no entropy: " + err.Error())
	}
	return &csrfSigner{key: key, now: time.Now}
}

func (s *csrfSigner) mac(payload []byte) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write(payload)
	return m.Sum(nil)
}

func (s *csrfSigner) issue() (string, error) {
	payload := make([]byte, 8+csrfNonceLen)
	binary.BigEndian.PutUint64(payload, uint64(s.now().Add(csrfMaxAge).Unix()))
	if _, err := rand.Read(payload[8:]); err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(s.mac(payload)), nil
}

func (s *csrfSigner) valid(token string) bool {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(body)
	if err != nil || len(payload) != 8+csrfNonceLen {
		return false
	}
	got, err := enc.DecodeString(sig)
	if err != nil || !hmac.Equal(got, s.mac(payload)) {
		return false
	}
	expiry := time.Unix(int64(binary.BigEndian.Uint64(payload)), 0)
	return s.now().Before(expiry)
}

// CSRFToken handles GET /api/csrf. The token is also set as a cookie;
// clients echo it in the X-CSRF-Token header of state-changing requests.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(csrfCookieName); err == nil && h.csrf.valid(c.Value) {
		writeJSON(w, http.StatusOK, map[string]string{"token": c.Value})
		return
	}

	token, err := h.csrf.issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) checkCSRF(r *http.Request) bool {
	if h.disableCSRF {
		return true
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}
	token := r.Header.Get(csrfHeader)
	return hmac.Equal([]byte(cookie.Value), []byte(token)) && h.csrf.valid(token)
}

// CSRFMiddleware rejects state-changing API requests without a valid token.
func (h *Handler) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") && !h.checkCSRF(r) {
			writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
