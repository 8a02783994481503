// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/storage/models"
)

// Storage is the durable persistence collaborator. The trading core works
// without it; history and token listings are the only consumers.
type Storage interface {
	// Trades. SaveTrade satisfies the router's Recorder.
	SaveTrade(ctx context.Context, result *domain.TradeResult) error
	GetTrade(ctx context.Context, txHash string) (*models.Trade, error)
	ListTrades(ctx context.Context, trader string, limit, offset int) ([]*models.Trade, error)

	// Tokens, upserted from pipeline events.
	UpsertToken(ctx context.Context, st *domain.TokenSaleState) error
	GetToken(ctx context.Context, address string) (*models.Token, error)
	ListLaunchedTokens(ctx context.Context, limit, offset int) ([]*models.Token, error)

	// Advisory threat findings.
	SaveThreat(ctx context.Context, threat *models.Threat) error

	RunMigrations() error
	Close() error
}
