package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/platform/apperr"
)

type contextKey string

const (
	HandleKey contextKey = "tenant_handle"
	DBTxKey   contextKey = "db_tx"
)

// ErrNoTenant is returned when tenant data is accessed from a context that
// never went through TenantMiddleware.
var ErrNoTenant = errors.New("no tenant handle in context")

// Queryable is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// HandleSource resolves a partition name to its handle. *PartitionCache
// implements it.
type HandleSource interface {
	Get(ctx context.Context, partition string) (*Handle, error)
}

// TenantMiddleware resolves the partition claim stored by the auth
// middleware and attaches the partition's handle to the request context.
// Requests without a usable claim are rejected; a handle that cannot be
// obtained is an internal error and the registry pool is never used in its
// place.
func TenantMiddleware(handles HandleSource, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			partition, _ := c.Get("jwt_partition").(string)
			if partition == "" {
				return apperr.New(apperr.ErrUnauthorized, "tenant context required")
			}
			if !ValidPartitionName(partition) {
				return apperr.New(apperr.ErrUnauthorized, "invalid tenant context")
			}

			ctx := c.Request().Context()
			h, err := handles.Get(ctx, partition)
			if err != nil {
				logger.Error().Err(err).
					Str("partition", partition).
					Str("path", c.Request().URL.Path).
					Msg("tenant resolution failed")
				return fmt.Errorf("resolve partition %s: %w", partition, apperr.ErrInternal)
			}

			c.SetRequest(c.Request().WithContext(WithHandle(ctx, h)))
			c.Set("partition", partition)

			return next(c)
		}
	}
}

// WithHandle returns a copy of ctx carrying h.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, HandleKey, h)
}

// HandleFromContext returns the tenant handle attached to ctx, or nil.
func HandleFromContext(ctx context.Context) *Handle {
	h, _ := ctx.Value(HandleKey).(*Handle)
	return h
}

// PartitionFromContext returns the resolved partition name, or "".
func PartitionFromContext(ctx context.Context) string {
	if h := HandleFromContext(ctx); h != nil {
		return h.Partition
	}
	return ""
}

// TxFromContext returns the transaction attached by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant handle and returns a context
// carrying it.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	h := HandleFromContext(ctx)
	if h == nil || h.Pool == nil {
		return ctx, nil, ErrNoTenant
	}
	tx, err := h.Pool.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// RunInTx runs fn inside a tenant transaction. An existing transaction in
// ctx is reused. fn's error rolls the transaction back.
func RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Conn returns the queryable tenant repositories must use: the current
// transaction if any, otherwise the partition pool.
func Conn(ctx context.Context) (Queryable, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx, nil
	}
	if h := HandleFromContext(ctx); h != nil && h.Pool != nil {
		return h.Pool, nil
	}
	return nil, ErrNoTenant
}
