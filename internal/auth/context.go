package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxIdentity ctxKey = iota

var ErrNoIdentity = errors.New("identity not in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

func UserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil || id.UserID == "" {
		return "", errors.New("user_id not in context")
	}
	return id.UserID, nil
}

func DealershipID(ctx context.Context) (int64, error) {
	id, err := IdentityFrom(ctx)
	if err != nil || id.DealershipID <= 0 {
		return 0, errors.New("dealership_id not in context")
	}
	return id.DealershipID, nil
}

func Role(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil || id.Role == "" {
		return "", errors.New("role not in context")
	}
	return id.Role, nil
}
