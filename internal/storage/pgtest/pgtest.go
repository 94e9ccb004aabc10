// Package pgtest starts a throwaway PostgreSQL container with the schema
// applied, for integration tests of the packages that talk to the database.
package pgtest

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sungwon/newsletter/internal/storage"
)

// Postgres is a running container plus a pool connected to it.
type Postgres struct {
	DSN       string
	DB        *storage.DB
	container testcontainers.Container
}

// Start launches postgres:15-alpine, runs the embedded migrations and opens
// a pool against it.
func Start(ctx context.Context) (*Postgres, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	pg := &Postgres{container: container}

	host, err := container.Host(ctx)
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("get container port: %w", err)
	}

	pg.DSN = fmt.Sprintf("postgres://test:test@%s:%s/test?sslmode=disable", host, port.Port())

	if err := storage.Migrate(pg.DSN); err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pg.DB, err = storage.NewDB(ctx, pg.DSN, 2, 20, 10*time.Second)
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("create DB: %w", err)
	}

	return pg, nil
}

// Reset empties every table so tests sharing one container stay independent.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.DB.Pool.Exec(ctx,
		`TRUNCATE issue_delivery_queue, newsletter_issues, idempotency, subscriptions`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// AddSubscriber inserts a subscription row with the given status.
func (p *Postgres) AddSubscriber(ctx context.Context, email, status string) error {
	_, err := p.DB.Pool.Exec(ctx,
		`INSERT INTO subscriptions (id, email, name, status) VALUES (gen_random_uuid(), $1, $2, $3)`,
		email, "Test Subscriber", status)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Terminate closes the pool and removes the container.
func (p *Postgres) Terminate(ctx context.Context) {
	if p.DB != nil {
		p.DB.Close()
	}
	if p.container != nil {
		_ = p.container.Terminate(ctx)
	}
}
