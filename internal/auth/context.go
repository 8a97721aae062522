package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxCompanyID
	ctxRole
	ctxScope
)

func WithIdentity(ctx context.Context, userID, companyID, role, scope string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxCompanyID, companyID)
	ctx = context.WithValue(ctx, ctxRole, role)
	ctx = context.WithValue(ctx, ctxScope, scope)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func CompanyID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxCompanyID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("company_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

func Scope(ctx context.Context) (string, error) {
	v := ctx.Value(ctxScope)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("scope not in context")
}
