package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// Multi-tenant invariant: CompanyID must be present for company-scoped tokens.
// Scope gates credential resolution: "company" tokens may only reach their own
// channel connections, "full" tokens may also reach the env fallback.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
	Scope     string `json:"scope"`
}

const (
	ScopeFull    = "full"
	ScopeCompany = "company"
)
