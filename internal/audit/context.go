package audit

import "context"

type contextKey string

const (
	ctxKeyIP        contextKey = "audit_ip"
	ctxKeyUserAgent contextKey = "audit_ua"
)

// WithIP stores the client address for entries logged under ctx.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIP, ip)
}

// WithUserAgent stores the client User-Agent for entries logged under ctx.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// IPFrom returns the address set by WithIP.
func IPFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyIP).(string)
	return v
}

// UserAgentFrom returns the User-Agent set by WithUserAgent.
func UserAgentFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserAgent).(string)
	return v
}
