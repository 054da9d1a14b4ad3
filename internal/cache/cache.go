package cache

import (
	"context"
	"time"
)

// Store guarda respostas serializadas do backend com TTL. O dono dos dados
// continua sendo o backend; este cache só evita refetch em sequência e é
// invalidado pelo controller quando um evento muda o estado de uma conta.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	Close() error
}
