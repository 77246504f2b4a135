package auth

import "context"

// Capability is what the signed-in identity may do. It is resolved once per
// request and passed explicitly to every mutating operation.
type Capability int

const (
	Guest Capability = iota
	Member
	Admin
)

func (c Capability) String() string {
	switch c {
	case Admin:
		return "admin"
	case Member:
		return "member"
	default:
		return "guest"
	}
}

// IsAdmin reports whether c grants mutations.
func (c Capability) IsAdmin() bool {
	return c == Admin
}

// ResolveCapability maps a stored role string to a Capability. Only "admin"
// grants Admin; any other role is a plain Member and no role at all is Guest.
func ResolveCapability(role string) Capability {
	switch role {
	case "admin":
		return Admin
	case "":
		return Guest
	default:
		return Member
	}
}

type contextKey struct{}

type AuthContext struct {
	UserID     int64
	Email      string
	Capability Capability
	SessionID  int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// CapabilityOf returns the request's capability, Guest when unauthenticated.
func CapabilityOf(ctx context.Context) Capability {
	ac, ok := FromContext(ctx)
	if !ok {
		return Guest
	}
	return ac.Capability
}

func IsAdmin(ctx context.Context) bool {
	return CapabilityOf(ctx).IsAdmin()
}
