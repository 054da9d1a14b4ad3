package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/cache/memory"
	"github.com/zapcampanha/console/internal/model"
)

type stubFetcher struct {
	accounts  []model.Account
	campaigns []model.Campaign
	analytics model.Analytics
	err       error

	accountCalls   int
	campaignCalls  int
	analyticsCalls int
}

func (f *stubFetcher) Accounts(ctx context.Context) ([]model.Account, error) {
	f.accountCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts, nil
}

func (f *stubFetcher) Campaigns(ctx context.Context) ([]model.Campaign, error) {
	f.campaignCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.campaigns, nil
}

func (f *stubFetcher) Analytics(ctx context.Context, timeRange string) (model.Analytics, error) {
	f.analyticsCalls++
	if f.err != nil {
		return model.Analytics{}, f.err
	}
	return f.analytics, nil
}

func newTestData(f *stubFetcher) *RemoteData {
	return NewRemoteData(memory.NewStore(), f, TTLs{
		Accounts:  time.Minute,
		Campaigns: time.Minute,
		Analytics: time.Minute,
	}, zap.NewNop())
}

func TestAccountsReadThrough(t *testing.T) {
	f := &stubFetcher{accounts: []model.Account{{ID: "A1", AccountName: "vendas"}}}
	data := newTestData(f)
	ctx := context.Background()

	accounts, err := data.Accounts(ctx)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "A1" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
	if f.accountCalls != 1 {
		t.Fatalf("expected 1 backend call got %d", f.accountCalls)
	}

	if _, err := data.Accounts(ctx); err != nil {
		t.Fatalf("accounts cached: %v", err)
	}
	if f.accountCalls != 1 {
		t.Fatalf("expected cached result got %d calls", f.accountCalls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	f := &stubFetcher{accounts: []model.Account{{ID: "A1"}}}
	data := newTestData(f)
	ctx := context.Background()

	if _, err := data.Accounts(ctx); err != nil {
		t.Fatalf("accounts: %v", err)
	}
	data.InvalidateAccounts(ctx)

	if _, err := data.Accounts(ctx); err != nil {
		t.Fatalf("accounts after invalidate: %v", err)
	}
	if f.accountCalls != 2 {
		t.Fatalf("expected refetch after invalidate got %d calls", f.accountCalls)
	}
}

func TestColdCacheSurfacesBackendError(t *testing.T) {
	f := &stubFetcher{err: errors.New("backend fora do ar")}
	data := newTestData(f)

	if _, err := data.Campaigns(context.Background()); err == nil {
		t.Fatalf("expected error with cold cache")
	}
}

func TestWarmCacheSurvivesBackendFailure(t *testing.T) {
	f := &stubFetcher{campaigns: []model.Campaign{{ID: "C1", Name: "natal"}}}
	data := newTestData(f)
	ctx := context.Background()

	if _, err := data.Campaigns(ctx); err != nil {
		t.Fatalf("campaigns: %v", err)
	}

	f.err = errors.New("backend fora do ar")
	campaigns, err := data.Campaigns(ctx)
	if err != nil {
		t.Fatalf("expected cached campaigns got %v", err)
	}
	if len(campaigns) != 1 || campaigns[0].ID != "C1" {
		t.Fatalf("unexpected campaigns: %+v", campaigns)
	}
}

func TestAnalyticsKeyedByTimeRange(t *testing.T) {
	f := &stubFetcher{analytics: model.Analytics{Overview: model.AnalyticsOverview{TotalMessages: 10}}}
	data := newTestData(f)
	ctx := context.Background()

	if _, err := data.Analytics(ctx, "7d"); err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if _, err := data.Analytics(ctx, "30d"); err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if f.analyticsCalls != 2 {
		t.Fatalf("expected distinct cache entries per range got %d calls", f.analyticsCalls)
	}

	if _, err := data.Analytics(ctx, ""); err != nil {
		t.Fatalf("analytics default range: %v", err)
	}
	if f.analyticsCalls != 2 {
		t.Fatalf("empty range must reuse the 7d entry, got %d calls", f.analyticsCalls)
	}
}
