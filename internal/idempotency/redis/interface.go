package redis

import "github.com/sheetsync/sheetsync/internal/core"

var _ core.IdempotencyStore = (*Store)(nil)
