// Package pg bootstraps the PostgreSQL pool used by the chat store.
//
// Connect opens a pgx/v5 pool with retries, Migrate applies goose migrations
// from an fs.FS (chatstore embeds its schema) and Healthcheck backs the
// readiness endpoint. The Is*Error helpers classify pgx errors.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, chatstore.Migrations, cfg, log); err != nil {
//	    return err
//	}
package pg
