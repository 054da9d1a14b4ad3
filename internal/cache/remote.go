package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/model"
)

const (
	KeyAccounts  = "accounts"
	KeyCampaigns = "campaigns"
	KeyAnalytics = "analytics"
)

// Fetcher é o pedaço do client REST que o cache precisa enxergar.
type Fetcher interface {
	Accounts(ctx context.Context) ([]model.Account, error)
	Campaigns(ctx context.Context) ([]model.Campaign, error)
	Analytics(ctx context.Context, timeRange string) (model.Analytics, error)
}

type TTLs struct {
	Accounts  time.Duration
	Campaigns time.Duration
	Analytics time.Duration
}

// RemoteData lê listas do backend através do Store. Uma falha de rede com
// cache frio vira erro para o chamador; com cache quente, o dado anterior
// permanece válido até expirar ou ser invalidado.
type RemoteData struct {
	store   Store
	fetcher Fetcher
	ttls    TTLs
	log     *zap.Logger
}

func NewRemoteData(store Store, fetcher Fetcher, ttls TTLs, log *zap.Logger) *RemoteData {
	if ttls.Accounts <= 0 {
		ttls.Accounts = 10 * time.Second
	}
	if ttls.Campaigns <= 0 {
		ttls.Campaigns = 15 * time.Second
	}
	if ttls.Analytics <= 0 {
		ttls.Analytics = 30 * time.Second
	}
	return &RemoteData{store: store, fetcher: fetcher, ttls: ttls, log: log}
}

func (r *RemoteData) Accounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.readThrough(ctx, KeyAccounts, r.ttls.Accounts, &accounts, func(ctx context.Context) (interface{}, error) {
		return r.fetcher.Accounts(ctx)
	})
	return accounts, err
}

func (r *RemoteData) Campaigns(ctx context.Context) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.readThrough(ctx, KeyCampaigns, r.ttls.Campaigns, &campaigns, func(ctx context.Context) (interface{}, error) {
		return r.fetcher.Campaigns(ctx)
	})
	return campaigns, err
}

func (r *RemoteData) Analytics(ctx context.Context, timeRange string) (model.Analytics, error) {
	if timeRange == "" {
		timeRange = "7d"
	}
	var analytics model.Analytics
	err := r.readThrough(ctx, KeyAnalytics+":"+timeRange, r.ttls.Analytics, &analytics, func(ctx context.Context) (interface{}, error) {
		return r.fetcher.Analytics(ctx, timeRange)
	})
	return analytics, err
}

func (r *RemoteData) readThrough(ctx context.Context, key string, ttl time.Duration, out interface{}, fetch func(context.Context) (interface{}, error)) error {
	if raw, ok, err := r.store.Get(ctx, key); err == nil && ok {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
		// Entrada ilegível é tratada como cache miss.
		_ = r.store.Invalidate(ctx, key)
	} else if err != nil {
		r.log.Warn("cache: falha ao ler, buscando direto no backend",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(fresh)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, key, raw, ttl); err != nil {
		r.log.Warn("cache: falha ao gravar", zap.String("key", key), zap.Error(err))
	}

	return json.Unmarshal(raw, out)
}

// InvalidateAccounts descarta a lista de contas em cache. Chamado pelo
// controller em qualquer evento que mude status de conta.
func (r *RemoteData) InvalidateAccounts(ctx context.Context) {
	if err := r.store.Invalidate(ctx, KeyAccounts); err != nil {
		r.log.Warn("cache: falha ao invalidar contas", zap.Error(err))
	}
}

func (r *RemoteData) InvalidateCampaigns(ctx context.Context) {
	if err := r.store.Invalidate(ctx, KeyCampaigns); err != nil {
		r.log.Warn("cache: falha ao invalidar campanhas", zap.Error(err))
	}
}
