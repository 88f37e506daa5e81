package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/marketpulse/pkg/pg"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.NoError(t, pg.Healthcheck(pingFunc(func(context.Context) error { return nil }))(ctx))

	err := pg.Healthcheck(pingFunc(func(context.Context) error { return errors.New("refused") }))(ctx)
	assert.ErrorIs(t, err, pg.ErrHealthcheckFailed)
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, pg.IsNotFoundError(fmt.Errorf("load: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(nil))

	dup := &pgconn.PgError{Code: "23505"}
	fk := &pgconn.PgError{Code: "23503"}
	assert.True(t, pg.IsDuplicateKeyError(fmt.Errorf("insert: %w", dup)))
	assert.False(t, pg.IsDuplicateKeyError(fk))
	assert.True(t, pg.IsForeignKeyViolationError(fk))
	assert.False(t, pg.IsForeignKeyViolationError(errors.New("other")))
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := pg.Connect(ctx, pg.Config{})
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)

	_, err = pg.Connect(ctx, pg.Config{ConnectionString: "postgres://%zz"})
	assert.ErrorIs(t, err, pg.ErrFailedToParseDBConfig)
}

func TestMigrate_NilFS(t *testing.T) {
	t.Parallel()

	err := pg.Migrate(context.Background(), nil, nil, pg.Config{}, nil)
	assert.ErrorIs(t, err, pg.ErrMigrationsNotProvided)
}
