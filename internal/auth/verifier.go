package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// AppClaims defines our custom JWT claims structure. The subject carries the
// user identifier; the role claim is optional.
type AppClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

const defaultRole = "member"

// Verifier validates a bearer credential presented at connection time and
// extracts the identity bound to the connection. It is stateless.
type Verifier struct {
	secret         []byte
	allowAnonymous bool
	logger         *slog.Logger
}

func NewVerifier(logger *slog.Logger, jwtSecret string, allowAnonymous bool) *Verifier {
	return &Verifier{
		secret:         []byte(jwtSecret),
		allowAnonymous: allowAnonymous,
		logger:         logger.With(slog.String("component", "auth_verifier")),
	}
}

// Verify turns a presented credential (or its absence) into an Identity.
// A missing credential yields an ephemeral anonymous identity when policy
// permits; anything invalid or expired is rejected.
func (v *Verifier) Verify(credential string) (state.Identity, error) {
	if credential == "" {
		if !v.allowAnonymous {
			return state.Identity{}, ErrMissingCredential
		}
		identity := state.Identity{
			UserID: "guest-" + uuid.NewString()[:8],
			Role:   state.RoleAnonymous,
		}
		v.logger.Debug("Issued anonymous identity", slog.String("userID", identity.UserID))
		return identity, nil
	}

	// Parse and validate the JWT token with HMAC signing.
	token, err := jwt.ParseWithClaims(credential, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return state.Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || claims.Subject == "" {
		return state.Identity{}, fmt.Errorf("%w: missing 'sub' claim", ErrInvalidCredential)
	}

	role := claims.Role
	if role == "" {
		role = defaultRole
	}
	return state.Identity{UserID: claims.Subject, Role: role}, nil
}

// CredentialFromRequest extracts the bearer credential from the upgrade
// request: Authorization header first, then the token query parameter.
// Returns empty when no credential is presented.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
