package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/cache"
	"finsight/internal/connector"
	"finsight/internal/core"
)

type fakeGateway struct {
	institutions []core.ConnectedInstitution
	stored       []core.Transaction
	budgets      map[string]*core.Budget
	cached       *core.CachedSummary
	spend        map[string]decimal.Decimal

	upserted      []core.Transaction
	cachedPuts    int
	cacheReads    int
	groupCalls    int
	upsertFailErr error
}

func (g *fakeGateway) ListConnectedInstitutions(_ context.Context, _ string) ([]core.ConnectedInstitution, error) {
	return g.institutions, nil
}

func (g *fakeGateway) UpsertTransaction(_ context.Context, t core.Transaction) error {
	if g.upsertFailErr != nil {
		return g.upsertFailErr
	}
	g.upserted = append(g.upserted, t)
	return nil
}

func (g *fakeGateway) QueryTransactions(_ context.Context, _ string, _ core.DateRange) ([]core.Transaction, error) {
	return g.stored, nil
}

func (g *fakeGateway) GroupByCategory(_ context.Context, _ string, _ core.DateRange, _ string) (map[string]decimal.Decimal, error) {
	g.groupCalls++
	return g.spend, nil
}

func (g *fakeGateway) GetBudget(_ context.Context, _, month string) (*core.Budget, error) {
	if b, ok := g.budgets[month]; ok {
		return b, nil
	}
	return nil, core.ErrBudgetNotFound
}

func (g *fakeGateway) UpsertBudget(_ context.Context, b core.Budget) (*core.Budget, error) {
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	if g.budgets == nil {
		g.budgets = map[string]*core.Budget{}
	}
	g.budgets[b.Month] = &b
	return &b, nil
}

func (g *fakeGateway) ListBudgets(_ context.Context, _ string, _ int) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range g.budgets {
		out = append(out, *b)
	}
	return out, nil
}

func (g *fakeGateway) GetCachedSummary(_ context.Context, _ string, _ core.DateRange) (*core.CachedSummary, error) {
	g.cacheReads++
	return g.cached, nil
}

func (g *fakeGateway) PutCachedSummary(_ context.Context, userID string, summary core.TransactionSummary) error {
	g.cachedPuts++
	g.cached = &core.CachedSummary{UserID: userID, Summary: summary, CreatedAt: time.Now()}
	return nil
}

func (g *fakeGateway) DeleteExpiredCachedSummaries(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type fakeFetcher struct {
	result connector.Result
	calls  int
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ []core.ConnectedInstitution, _ core.DateRange) connector.Result {
	f.calls++
	return f.result
}

type fakePublisher struct {
	events int
	count  int
}

func (p *fakePublisher) PublishIngestionCompleted(_ context.Context, _ string, _ core.DateRange, transactionCount int) error {
	p.events++
	p.count = transactionCount
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testInstitutions = []core.ConnectedInstitution{
	{UserID: "user_1", InstitutionID: "ins_1", InstitutionName: "Bank One", CredentialRef: "cred_1"},
}

func rawTx(id, amount, date, name string) core.RawTransaction {
	return core.RawTransaction{
		TransactionID: id,
		AccountID:     "acc_1",
		Amount:        d(amount),
		Date:          date,
		Name:          name,
		InstitutionID: "ins_1",
	}
}

func newTestService(g *fakeGateway, f *fakeFetcher, p Publisher) *Service {
	return NewService(g, f, cache.NewSummaryCache(16, time.Hour), p, 24*time.Hour)
}

func TestSummaryLiveIngestion(t *testing.T) {
	gw := &fakeGateway{institutions: testInstitutions}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{
		rawTx("t1", "25.00", "2024-03-05", "WHOLE FOODS GROCERY"),
		rawTx("t2", "-900.00", "2024-03-06", "PAYROLL DEPOSIT"),
	}}}
	pub := &fakePublisher{}
	svc := newTestService(gw, fetcher, pub)

	summary, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("GetFinancialSummary: %v", err)
	}

	if !summary.TotalExpenses.Equal(d("25.00")) {
		t.Errorf("total expenses = %s, want 25.00", summary.TotalExpenses)
	}
	if !summary.TotalIncome.Equal(d("900.00")) {
		t.Errorf("total income = %s, want 900.00", summary.TotalIncome)
	}
	if len(gw.upserted) != 2 {
		t.Errorf("stored transactions = %d, want 2", len(gw.upserted))
	}
	if gw.cachedPuts != 1 {
		t.Errorf("cached summary writes = %d, want 1", gw.cachedPuts)
	}
	if pub.events != 1 || pub.count != 2 {
		t.Errorf("publish events = %d count = %d, want 1 event for 2 transactions", pub.events, pub.count)
	}

	// Second call must come from the in-process cache.
	if _, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (cache hit)", fetcher.calls)
	}
}

func TestSummaryStoredCacheHit(t *testing.T) {
	cachedSummary := core.TransactionSummary{
		TotalExpenses: d("42.00"),
		DateRange:     core.DateRange{StartDate: "2024-03-01", EndDate: "2024-03-31"},
	}
	gw := &fakeGateway{
		institutions: testInstitutions,
		cached:       &core.CachedSummary{UserID: "user_1", Summary: cachedSummary, CreatedAt: time.Now().Add(-time.Hour)},
	}
	fetcher := &fakeFetcher{}
	svc := newTestService(gw, fetcher, nil)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("GetFinancialSummary: %v", err)
	}
	if !got.TotalExpenses.Equal(d("42.00")) {
		t.Errorf("total expenses = %s, want the cached 42.00", got.TotalExpenses)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch calls = %d, want 0 for a fresh stored cache entry", fetcher.calls)
	}
}

func TestSummaryMemoryCacheHonorsStoredAge(t *testing.T) {
	// A memory entry warmed from the stored cache carries the stored entry's
	// remaining lifetime, so the summary cannot be served past the freshness
	// window without a live fetch.
	const freshness = 200 * time.Millisecond
	gw := &fakeGateway{
		institutions: testInstitutions,
		cached: &core.CachedSummary{
			UserID:    "user_1",
			Summary:   core.TransactionSummary{TotalExpenses: d("42.00")},
			CreatedAt: time.Now().Add(-150 * time.Millisecond),
		},
	}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{
		rawTx("t1", "10.00", "2024-03-05", "COFFEE SHOP"),
	}}}
	svc := NewService(gw, fetcher, cache.NewSummaryCache(16, time.Hour), nil, freshness)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if fetcher.calls != 0 || !got.TotalExpenses.Equal(d("42.00")) {
		t.Fatalf("first call should serve the stored summary: calls=%d total=%s", fetcher.calls, got.TotalExpenses)
	}

	time.Sleep(120 * time.Millisecond)

	got, err = svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 once the stored entry's age passes the window", fetcher.calls)
	}
	if !got.TotalExpenses.Equal(d("10.00")) {
		t.Errorf("total expenses = %s, want the live 10.00", got.TotalExpenses)
	}
}

func TestSummaryStaleCacheTriggersLiveFetch(t *testing.T) {
	gw := &fakeGateway{
		institutions: testInstitutions,
		cached: &core.CachedSummary{
			UserID:    "user_1",
			Summary:   core.TransactionSummary{TotalExpenses: d("42.00")},
			CreatedAt: time.Now().Add(-25 * time.Hour),
		},
	}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{
		rawTx("t1", "10.00", "2024-03-05", "COFFEE SHOP"),
	}}}
	svc := newTestService(gw, fetcher, nil)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("GetFinancialSummary: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 for a stale cache entry", fetcher.calls)
	}
	if !got.TotalExpenses.Equal(d("10.00")) {
		t.Errorf("total expenses = %s, want the live 10.00", got.TotalExpenses)
	}
}

func TestSummaryRefreshBypassesCaches(t *testing.T) {
	gw := &fakeGateway{
		institutions: testInstitutions,
		cached: &core.CachedSummary{
			UserID:    "user_1",
			Summary:   core.TransactionSummary{TotalExpenses: d("42.00")},
			CreatedAt: time.Now(),
		},
	}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{
		rawTx("t1", "10.00", "2024-03-05", "COFFEE SHOP"),
	}}}
	svc := newTestService(gw, fetcher, nil)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", true)
	if err != nil {
		t.Fatalf("GetFinancialSummary: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 when refresh is forced", fetcher.calls)
	}
	if gw.cacheReads != 0 {
		t.Errorf("cache reads = %d, want 0 when refresh is forced", gw.cacheReads)
	}
	if !got.TotalExpenses.Equal(d("10.00")) {
		t.Errorf("total expenses = %s, want the live 10.00", got.TotalExpenses)
	}
}

func TestSummaryStoredFallback(t *testing.T) {
	gw := &fakeGateway{
		institutions: testInstitutions,
		stored: []core.Transaction{
			{
				UserID: "user_1", ExternalID: "s1", Amount: d("30.00"), Date: "2024-03-10",
				Name: "stored expense", EnhancedCategory: "Groceries", HighLevelCategory: "Food & Dining",
				Type: core.TypeExpense,
			},
		},
	}
	fetcher := &fakeFetcher{result: connector.Result{Failures: []connector.InstitutionFailure{
		{InstitutionID: "ins_1", Err: &core.ConnectorError{InstitutionID: "ins_1", Reason: core.ReasonTransient}},
	}}}
	svc := newTestService(gw, fetcher, nil)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("expected stored fallback, got %v", err)
	}
	if !got.TotalExpenses.Equal(d("30.00")) {
		t.Errorf("total expenses = %s, want 30.00 from stored rows", got.TotalExpenses)
	}
	if gw.cachedPuts != 0 {
		t.Error("a fallback summary must not be written to the cache")
	}
}

func TestSummaryAllAuthRequiredNoStoredData(t *testing.T) {
	gw := &fakeGateway{institutions: testInstitutions}
	fetcher := &fakeFetcher{result: connector.Result{Failures: []connector.InstitutionFailure{
		{InstitutionID: "ins_1", Err: &core.ConnectorError{InstitutionID: "ins_1", Reason: core.ReasonAuthRequired}},
	}}}
	svc := newTestService(gw, fetcher, nil)

	_, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if !core.AuthRequired(err) {
		t.Errorf("err = %v, want an auth-required connector error", err)
	}
}

func TestSummaryAllFailedNoStoredData(t *testing.T) {
	gw := &fakeGateway{institutions: testInstitutions}
	fetcher := &fakeFetcher{result: connector.Result{Failures: []connector.InstitutionFailure{
		{InstitutionID: "ins_1", Err: &core.ConnectorError{InstitutionID: "ins_1", Reason: core.ReasonTransient}},
	}}}
	svc := newTestService(gw, fetcher, nil)

	_, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if !errors.Is(err, core.ErrNoDataAvailable) {
		t.Errorf("err = %v, want ErrNoDataAvailable", err)
	}
}

func TestSummaryNoInstitutions(t *testing.T) {
	svc := newTestService(&fakeGateway{}, &fakeFetcher{}, nil)

	_, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if !errors.Is(err, core.ErrNoInstitutions) {
		t.Errorf("err = %v, want ErrNoInstitutions", err)
	}
}

func TestSummaryEmptyLiveFetch(t *testing.T) {
	gw := &fakeGateway{institutions: testInstitutions}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{}}}
	svc := newTestService(gw, fetcher, nil)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("an empty but successful fetch must produce a summary: %v", err)
	}
	if !got.TotalExpenses.IsZero() || got.TransactionCount != 0 {
		t.Errorf("summary = %+v, want zero totals", got)
	}
	if gw.cachedPuts != 1 {
		t.Error("an empty live summary is still cached")
	}
}

func TestSummaryValidation(t *testing.T) {
	svc := newTestService(&fakeGateway{}, &fakeFetcher{}, nil)
	ctx := context.Background()

	if _, err := svc.GetFinancialSummary(ctx, "", "2024-03-01", "2024-03-31", false); !errors.Is(err, core.ErrEmptyUserID) {
		t.Errorf("empty user: err = %v", err)
	}
	if _, err := svc.GetFinancialSummary(ctx, "user_1", "03/01/2024", "", false); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("bad date: err = %v", err)
	}
	if _, err := svc.GetFinancialSummary(ctx, "user_1", "2024-03-31", "2024-03-01", false); !errors.Is(err, core.ErrInvalidDateRange) {
		t.Errorf("inverted range: err = %v", err)
	}
}

func TestSummaryStorageFailureDoesNotFailRequest(t *testing.T) {
	gw := &fakeGateway{institutions: testInstitutions, upsertFailErr: errors.New("disk full")}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{
		rawTx("t1", "25.00", "2024-03-05", "WHOLE FOODS GROCERY"),
	}}}
	svc := newTestService(gw, fetcher, nil)

	got, err := svc.GetFinancialSummary(context.Background(), "user_1", "2024-03-01", "2024-03-31", false)
	if err != nil {
		t.Fatalf("storage failure must not fail the request: %v", err)
	}
	if !got.TotalExpenses.Equal(d("25.00")) {
		t.Errorf("total expenses = %s, want 25.00", got.TotalExpenses)
	}
}

func TestBudgetProgressFromLiveSummary(t *testing.T) {
	gw := &fakeGateway{institutions: testInstitutions}
	if _, err := gw.UpsertBudget(context.Background(), core.Budget{
		UserID: "user_1", Month: "2024-03", TotalBudget: d("500.00"),
		Categories: []core.BudgetItem{{Category: "Groceries", Amount: d("100.00")}},
	}); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	fetcher := &fakeFetcher{result: connector.Result{Transactions: []core.RawTransaction{
		rawTx("t1", "85.00", "2024-03-05", "WHOLE FOODS GROCERY"),
	}}}
	svc := newTestService(gw, fetcher, nil)

	p, err := svc.GetBudgetProgress(context.Background(), "user_1", "2024-03")
	if err != nil {
		t.Fatalf("GetBudgetProgress: %v", err)
	}
	if !p.TotalSpent.Equal(d("85.00")) {
		t.Errorf("total spent = %s, want 85.00", p.TotalSpent)
	}
	if p.Categories[0].Status != core.StatusWarning {
		t.Errorf("Groceries status = %s, want warning at 85%%", p.Categories[0].Status)
	}
}

func TestBudgetProgressStoredSpendFallback(t *testing.T) {
	// No institutions: the summary pipeline fails and progress falls back to
	// stored expense totals, accepting zero spend.
	gw := &fakeGateway{spend: map[string]decimal.Decimal{}}
	if _, err := gw.UpsertBudget(context.Background(), core.Budget{
		UserID: "user_1", Month: "2024-03", TotalBudget: d("500.00"),
		Categories: []core.BudgetItem{{Category: "Groceries", Amount: d("100.00")}},
	}); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	svc := newTestService(gw, &fakeFetcher{}, nil)

	p, err := svc.GetBudgetProgress(context.Background(), "user_1", "2024-03")
	if err != nil {
		t.Fatalf("GetBudgetProgress: %v", err)
	}
	if gw.groupCalls != 1 {
		t.Errorf("group calls = %d, want 1", gw.groupCalls)
	}
	if !p.TotalSpent.IsZero() {
		t.Errorf("total spent = %s, want zero", p.TotalSpent)
	}
	if p.Categories[0].Status != core.StatusOnTrack {
		t.Errorf("status = %s, want on_track", p.Categories[0].Status)
	}
}

func TestBudgetProgressNoBudget(t *testing.T) {
	svc := newTestService(&fakeGateway{}, &fakeFetcher{}, nil)
	_, err := svc.GetBudgetProgress(context.Background(), "user_1", "2024-03")
	if !errors.Is(err, core.ErrBudgetNotFound) {
		t.Errorf("err = %v, want ErrBudgetNotFound", err)
	}
}

func TestBudgetProgressDefaultsToCurrentMonth(t *testing.T) {
	month := core.FormatMonth(time.Now())
	gw := &fakeGateway{spend: map[string]decimal.Decimal{}}
	if _, err := gw.UpsertBudget(context.Background(), core.Budget{
		UserID: "user_1", Month: month, TotalBudget: d("500.00"),
		Categories: []core.BudgetItem{{Category: "Groceries", Amount: d("100.00")}},
	}); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	svc := newTestService(gw, &fakeFetcher{}, nil)

	p, err := svc.GetBudgetProgress(context.Background(), "user_1", "")
	if err != nil {
		t.Fatalf("GetBudgetProgress: %v", err)
	}
	if p.Month != month {
		t.Errorf("month = %s, want current month %s", p.Month, month)
	}
}

func TestUpsertBudgetValidation(t *testing.T) {
	svc := newTestService(&fakeGateway{}, &fakeFetcher{}, nil)
	ctx := context.Background()

	_, err := svc.UpsertBudget(ctx, core.Budget{UserID: "user_1", Month: "March", TotalBudget: d("100.00")})
	if !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("bad month: err = %v", err)
	}

	_, err = svc.UpsertBudget(ctx, core.Budget{UserID: "user_1", Month: "2024-03", TotalBudget: d("-1.00")})
	if !errors.Is(err, core.ErrInvalidBudgetAmount) {
		t.Errorf("negative budget: err = %v", err)
	}

	saved, err := svc.UpsertBudget(ctx, core.Budget{UserID: "user_1", Month: "2024-03", TotalBudget: d("100.00")})
	if err != nil {
		t.Fatalf("valid budget: %v", err)
	}
	if saved.CreatedAt.IsZero() {
		t.Error("saved budget must carry timestamps")
	}
}
