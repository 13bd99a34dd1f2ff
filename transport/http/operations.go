package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/sentinel/core"
)

// Strategy selects how a request is authenticated before its handler runs.
type Strategy int

const (
	// StrategyNone leaves the request unauthenticated.
	StrategyNone Strategy = iota
	// StrategyLocal checks a username and password from the JSON body.
	StrategyLocal
	// StrategyBearer checks a bearer access token and the operation's roles.
	StrategyBearer
	// StrategyBearerRenewal checks the renewal token embedded in a bearer
	// access token, which may itself be expired.
	StrategyBearerRenewal
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyLocal:
		return "local"
	case StrategyBearer:
		return "bearer"
	case StrategyBearerRenewal:
		return "bearer-renewal"
	default:
		return "unknown"
	}
}

// Operation binds a route to its strategy and required roles.
// Roles only apply to StrategyBearer; empty means core.DefaultRequiredRoles.
type Operation struct {
	Name     string
	Method   string
	Path     string
	Strategy Strategy
	Roles    []string
	Handler  gin.HandlerFunc
}

// Operations is the route table served by SetupRouter.
func Operations(h *AuthHandlers) []Operation {
	return []Operation{
		{Name: "signUp", Method: http.MethodPost, Path: "/auth/sign-up", Strategy: StrategyNone, Handler: h.SignUp},
		{Name: "signIn", Method: http.MethodPost, Path: "/auth/sign-in", Strategy: StrategyLocal, Handler: h.SignIn},
		{Name: "renew", Method: http.MethodPost, Path: "/auth/renew", Strategy: StrategyBearerRenewal, Handler: h.Renew},
		{Name: "signOut", Method: http.MethodPost, Path: "/auth/sign-out", Strategy: StrategyBearerRenewal, Handler: h.SignOut},
		{Name: "me", Method: http.MethodGet, Path: "/api/me", Strategy: StrategyBearer, Handler: h.Me},
		{Name: "authorize", Method: http.MethodGet, Path: "/api/authorize", Strategy: StrategyBearer, Handler: h.Authorize},
		{Name: "getPrincipal", Method: http.MethodGet, Path: "/api/principals/:id", Strategy: StrategyBearer, Roles: []string{core.RoleAdmin}, Handler: h.GetPrincipal},
		{Name: "setRole", Method: http.MethodPatch, Path: "/api/principals/:id/role", Strategy: StrategyBearer, Roles: []string{core.RoleAdmin}, Handler: h.SetRole},
	}
}
