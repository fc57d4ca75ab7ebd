package postgres_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	testPool      *pgxpool.Pool
	testContainer *pgcontainer.PostgresContainer
	testPoolErr   error
	testPoolOnce  sync.Once
)

func TestMain(m *testing.M) {
	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if testContainer != nil {
		_ = testcontainers.TerminateContainer(testContainer)
	}

	os.Exit(code)
}

// getSharedTestDatabase returns a pool on a container shared by every test
// in the package. Tests isolate themselves with random table names.
func getSharedTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container tests in short mode")
	}

	testPoolOnce.Do(func() {
		ctx := context.Background()

		testContainer, testPoolErr = pgcontainer.Run(ctx,
			"postgres:18-alpine",
			pgcontainer.WithDatabase("testdb"),
			pgcontainer.WithUsername("testuser"),
			pgcontainer.WithPassword("testpass"),
			pgcontainer.BasicWaitStrategies(),
		)
		if testPoolErr != nil {
			return
		}

		var connectionStr string
		connectionStr, testPoolErr = testContainer.ConnectionString(ctx, "sslmode=disable")
		if testPoolErr != nil {
			return
		}

		testPool, testPoolErr = pgxpool.New(ctx, connectionStr)
	})

	require.NoError(t, testPoolErr, "failed to start postgres")
	return testPool
}

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

func getDSN(pool *pgxpool.Pool) string {
	return pool.Config().ConnString()
}

func randomTables(t *testing.T) stashbox.Tables {
	t.Helper()
	return stashbox.Tables{Objects: fmt.Sprintf("objects_%s", getRandomString(t))}
}

// setupTestRepo returns a migrated repo on its own table, dropped when the
// test ends.
func setupTestRepo(t *testing.T) stashbox.ObjectRepo {
	t.Helper()

	pool := getSharedTestDatabase(t)
	ctx := context.Background()
	tables := randomTables(t)

	db, err := postgres.Connect(ctx, getDSN(pool), tables)
	require.NoError(t, err, "failed to connect")

	require.NoError(t, db.Migrate(ctx), "failed to migrate")

	t.Cleanup(func() {
		_ = db.Close()
		_ = postgres.DropTables(ctx, pool, tables)
	})

	return db.GetRepo()
}
