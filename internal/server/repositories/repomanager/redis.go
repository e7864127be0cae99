package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

// RedisRepositoryManager keeps refresh tokens in redis while users stay in
// PostgreSQL. Token mutations rely on the adapter's server-side scripts for
// atomicity, so the DBTX argument only matters for the user store.
type RedisRepositoryManager struct {
	pg            *PostgresRepositoryManager
	refreshTokens *refreshtokens.RedisRepository
}

func NewRedisRepositoryManager(client redis.UniversalClient) *RedisRepositoryManager {
	return &RedisRepositoryManager{
		pg:            NewPostgresRepositoryManager(),
		refreshTokens: refreshtokens.NewRedisRepository(client),
	}
}

func (m *RedisRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return m.pg.RunMigrations(ctx, db)
}

func (m *RedisRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return m.pg.Users(db)
}

func (m *RedisRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return m.refreshTokens
}
