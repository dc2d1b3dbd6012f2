package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	issuerPrefix    = "https://securetoken.google.com/"
	defaultCertsTTL = time.Hour
	clockSkewLeeway = 30 * time.Second

	// minForcedRefresh spaces out cert fetches triggered by unknown kids.
	minForcedRefresh = 30 * time.Second
)

var ErrInvalidToken = errors.New("invalid id token")

// Claims are the fields read from a verified ID token.
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks provider-issued ID tokens against the provider's published
// signing certificates.
type Verifier struct {
	projectID  string
	certsURL   string
	httpClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
	now       func() time.Time
}

func NewVerifier(projectID, certsURL string, timeout time.Duration) (*Verifier, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("identity project id is required")
	}
	if strings.TrimSpace(certsURL) == "" {
		certsURL = DefaultCertsURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Verifier{
		projectID:  projectID,
		certsURL:   certsURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

// VerifyIDToken validates signature, audience, issuer and expiry and returns
// the token's claims. Every failure wraps ErrInvalidToken.
func (v *Verifier) VerifyIDToken(ctx context.Context, raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	return claims, nil
}

func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	refreshed := false
	if v.keys == nil || !v.now().Before(v.expiresAt) {
		if err := v.refreshLocked(ctx); err != nil {
			return nil, err
		}
		refreshed = true
	}

	key, ok := v.keys[kid]
	if !ok && !refreshed && v.now().Sub(v.fetchedAt) >= minForcedRefresh {
		// signing keys rotate ahead of the cache expiry
		if err := v.refreshLocked(ctx); err != nil {
			return nil, err
		}
		key, ok = v.keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (v *Verifier) refreshLocked(ctx context.Context) error {
	// a failed fetch still counts against minForcedRefresh
	v.fetchedAt = v.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("build certs request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch signing certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch signing certs: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read signing certs: %w", err)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("decode signing certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemCert := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemCert))
		if err != nil {
			return fmt.Errorf("parse signing cert %q: %w", kid, err)
		}
		keys[kid] = key
	}

	v.keys = keys
	v.expiresAt = v.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultCertsTTL
}
