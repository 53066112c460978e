package repositorycache

import (
	"context"
	"strings"
)

// discriminatorSeparator joins the parts of a composite discriminator.
const discriminatorSeparator = "|"

type discriminatorContextKey struct{}

// WithDiscriminator attaches discriminator parts to the context. Reads issued
// with the returned context get their own cache keys, so callers can scope
// results per tenant or user without changing the repository signature.
// Parts accumulate across calls and duplicates are dropped.
func WithDiscriminator(ctx context.Context, parts ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(parts) == 0 {
		return ctx
	}

	existing := discriminatorPartsFromContext(ctx)
	combined := append(existing, parts...)
	combined = dedupeStrings(combined)
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, discriminatorContextKey{}, combined)
}

func discriminatorFromContext(ctx context.Context) string {
	return strings.Join(discriminatorPartsFromContext(ctx), discriminatorSeparator)
}

func discriminatorPartsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if parts, ok := ctx.Value(discriminatorContextKey{}).([]string); ok {
		return append([]string(nil), parts...)
	}
	return nil
}

// dedupeStrings keeps the first occurrence of every non-empty value.
func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
