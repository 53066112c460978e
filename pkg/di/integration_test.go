package di

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-namespace-cache/cache"
	"github.com/goliatone/go-namespace-cache/pkg/testsupport"
	"github.com/goliatone/go-namespace-cache/repositorycache"
)

// Tool represents a test model for integration tests
type Tool struct {
	ID         string `json:"id" bun:"id,pk"`
	Name       string `json:"name" bun:"name"`
	Status     string `json:"status" bun:"status"`
	CheckedOut int64  `json:"checked_out" bun:"checked_out"`
}

// Checkout represents a second repository type sharing the same store
type Checkout struct {
	ID     string `json:"id" bun:"id,pk"`
	ToolID string `json:"tool_id" bun:"tool_id"`
}

var errToolNotFound = errors.New("tool not found")

// mockToolRepository provides an in-memory repository implementation for testing
type mockToolRepository struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	callCount map[string]int // Track method calls to verify caching behavior
}

func newMockToolRepository() *mockToolRepository {
	return &mockToolRepository{
		tools:     make(map[string]Tool),
		callCount: make(map[string]int),
	}
}

func (m *mockToolRepository) trackCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[method]++
}

func (m *mockToolRepository) getCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[method]
}

func (m *mockToolRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (Tool, error) {
	m.trackCall("GetByID")
	m.mu.RLock()
	tool, exists := m.tools[id]
	m.mu.RUnlock()
	if !exists {
		return Tool{}, errToolNotFound
	}
	return tool, nil
}

func (m *mockToolRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (Tool, error) {
	m.trackCall("Get")
	tools := m.sorted()
	if len(tools) == 0 {
		return Tool{}, errToolNotFound
	}
	return tools[0], nil
}

func (m *mockToolRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]Tool, int, error) {
	m.trackCall("List")
	tools := m.sorted()
	return tools, len(tools), nil
}

func (m *mockToolRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.trackCall("Count")
	m.mu.RLock()
	count := len(m.tools)
	m.mu.RUnlock()
	return count, nil
}

func (m *mockToolRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (Tool, error) {
	m.trackCall("GetByIdentifier")
	for _, tool := range m.sorted() {
		if tool.Name == identifier {
			return tool, nil
		}
	}
	return Tool{}, errToolNotFound
}

func (m *mockToolRepository) sorted() []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tools := make([]Tool, 0, len(m.tools))
	for _, tool := range m.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID < tools[j].ID })
	return tools
}

func (m *mockToolRepository) Create(ctx context.Context, tool Tool, criteria ...repository.InsertCriteria) (Tool, error) {
	m.trackCall("Create")
	if tool.Status == "" {
		tool.Status = "available"
	}
	m.mu.Lock()
	m.tools[tool.ID] = tool
	m.mu.Unlock()
	return tool, nil
}

func (m *mockToolRepository) Update(ctx context.Context, tool Tool, criteria ...repository.UpdateCriteria) (Tool, error) {
	m.trackCall("Update")
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[tool.ID]; !exists {
		return Tool{}, errToolNotFound
	}
	m.tools[tool.ID] = tool
	return tool, nil
}

func (m *mockToolRepository) Delete(ctx context.Context, tool Tool) error {
	m.trackCall("Delete")
	m.mu.Lock()
	delete(m.tools, tool.ID)
	m.mu.Unlock()
	return nil
}

// remaining methods delegate to the ones above
func (m *mockToolRepository) CreateTx(ctx context.Context, tx bun.IDB, record Tool, criteria ...repository.InsertCriteria) (Tool, error) {
	return m.Create(ctx, record, criteria...)
}
func (m *mockToolRepository) CreateMany(ctx context.Context, records []Tool, criteria ...repository.InsertCriteria) ([]Tool, error) {
	out := make([]Tool, 0, len(records))
	for _, record := range records {
		created, _ := m.Create(ctx, record, criteria...)
		out = append(out, created)
	}
	return out, nil
}
func (m *mockToolRepository) CreateManyTx(ctx context.Context, tx bun.IDB, records []Tool, criteria ...repository.InsertCriteria) ([]Tool, error) {
	return m.CreateMany(ctx, records, criteria...)
}
func (m *mockToolRepository) GetOrCreate(ctx context.Context, record Tool) (Tool, error) {
	m.mu.RLock()
	if existing, exists := m.tools[record.ID]; exists {
		m.mu.RUnlock()
		return existing, nil
	}
	m.mu.RUnlock()
	return m.Create(ctx, record)
}
func (m *mockToolRepository) GetOrCreateTx(ctx context.Context, tx bun.IDB, record Tool) (Tool, error) {
	return m.GetOrCreate(ctx, record)
}
func (m *mockToolRepository) UpdateTx(ctx context.Context, tx bun.IDB, record Tool, criteria ...repository.UpdateCriteria) (Tool, error) {
	return m.Update(ctx, record, criteria...)
}
func (m *mockToolRepository) UpdateMany(ctx context.Context, records []Tool, criteria ...repository.UpdateCriteria) ([]Tool, error) {
	for _, record := range records {
		if _, err := m.Update(ctx, record, criteria...); err != nil {
			return nil, err
		}
	}
	return records, nil
}
func (m *mockToolRepository) UpdateManyTx(ctx context.Context, tx bun.IDB, records []Tool, criteria ...repository.UpdateCriteria) ([]Tool, error) {
	return m.UpdateMany(ctx, records, criteria...)
}
func (m *mockToolRepository) Upsert(ctx context.Context, record Tool, criteria ...repository.UpdateCriteria) (Tool, error) {
	m.mu.Lock()
	m.tools[record.ID] = record
	m.mu.Unlock()
	return record, nil
}
func (m *mockToolRepository) UpsertTx(ctx context.Context, tx bun.IDB, record Tool, criteria ...repository.UpdateCriteria) (Tool, error) {
	return m.Upsert(ctx, record, criteria...)
}
func (m *mockToolRepository) UpsertMany(ctx context.Context, records []Tool, criteria ...repository.UpdateCriteria) ([]Tool, error) {
	for _, record := range records {
		_, _ = m.Upsert(ctx, record, criteria...)
	}
	return records, nil
}
func (m *mockToolRepository) UpsertManyTx(ctx context.Context, tx bun.IDB, records []Tool, criteria ...repository.UpdateCriteria) ([]Tool, error) {
	return m.UpsertMany(ctx, records, criteria...)
}
func (m *mockToolRepository) DeleteTx(ctx context.Context, tx bun.IDB, record Tool) error {
	return m.Delete(ctx, record)
}
func (m *mockToolRepository) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.trackCall("DeleteMany")
	m.mu.Lock()
	m.tools = make(map[string]Tool)
	m.mu.Unlock()
	return nil
}
func (m *mockToolRepository) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.DeleteMany(ctx, criteria...)
}
func (m *mockToolRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return m.DeleteMany(ctx, criteria...)
}
func (m *mockToolRepository) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.DeleteWhere(ctx, criteria...)
}
func (m *mockToolRepository) ForceDelete(ctx context.Context, record Tool) error {
	return m.Delete(ctx, record)
}
func (m *mockToolRepository) ForceDeleteTx(ctx context.Context, tx bun.IDB, record Tool) error {
	return m.ForceDelete(ctx, record)
}
func (m *mockToolRepository) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (Tool, error) {
	return m.Get(ctx, criteria...)
}
func (m *mockToolRepository) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (Tool, error) {
	return m.GetByID(ctx, id, criteria...)
}
func (m *mockToolRepository) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]Tool, int, error) {
	return m.List(ctx, criteria...)
}
func (m *mockToolRepository) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return m.Count(ctx, criteria...)
}
func (m *mockToolRepository) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (Tool, error) {
	return m.GetByIdentifier(ctx, identifier, criteria...)
}
func (m *mockToolRepository) Raw(ctx context.Context, sql string, args ...any) ([]Tool, error) {
	m.trackCall("Raw")
	return nil, errors.New("raw queries not supported in mock")
}
func (m *mockToolRepository) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]Tool, error) {
	return m.Raw(ctx, sql, args...)
}
func (m *mockToolRepository) Handlers() repository.ModelHandlers[Tool] {
	var handlers repository.ModelHandlers[Tool]
	return handlers
}

// Interface assertion to ensure mockToolRepository implements Repository[Tool]
var _ repository.Repository[Tool] = (*mockToolRepository)(nil)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestContainer builds a container driven by a manual clock.
func newTestContainer(t testing.TB, mutate ...func(*cache.Config, *cache.HandlerConfig)) (*Container, *testsupport.ManualClock) {
	t.Helper()

	clk := testsupport.NewManualClock(epoch)
	config := cache.DefaultConfig()
	config.Capacity = 1000
	config.NumShards = 4
	config.Clock = clk
	handlerConfig := cache.DefaultHandlerConfig()
	for _, m := range mutate {
		m(&config, &handlerConfig)
	}

	container, err := NewContainer(config, handlerConfig)
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })
	return container, clk
}

func seedTools(t testing.TB, repo *mockToolRepository, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := repo.Create(context.Background(), Tool{ID: id, Name: "tool " + id}); err != nil {
			t.Fatalf("Failed to seed tool %s: %v", id, err)
		}
	}
}

// TestEndToEndCachedRepositoryFlow tests the complete integration flow
// using the DI container to wire up cached repository operations
func TestEndToEndCachedRepositoryFlow(t *testing.T) {
	container, _ := newTestContainer(t)

	mockRepo := newMockToolRepository()
	seedTools(t, mockRepo, "tool-1")

	cachedRepo, err := NewCachedRepository[Tool](container, mockRepo)
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}
	ctx := context.Background()

	if got := cachedRepo.Namespace().Prefix(); got != "ToolRepository" {
		t.Errorf("Expected ToolRepository namespace, got %s", got)
	}

	for i := 0; i < 2; i++ {
		tool, err := cachedRepo.GetByID(ctx, "tool-1")
		if err != nil {
			t.Fatalf("GetByID #%d failed: %v", i, err)
		}
		if tool.ID != "tool-1" {
			t.Errorf("GetByID returned incorrect tool: %+v", tool)
		}
	}
	if callCount := mockRepo.getCallCount("GetByID"); callCount != 1 {
		t.Errorf("Expected base repository GetByID to be called once, got %d calls", callCount)
	}

	for i := 0; i < 2; i++ {
		tools, total, err := cachedRepo.List(ctx)
		if err != nil {
			t.Fatalf("List #%d failed: %v", i, err)
		}
		if len(tools) != 1 || total != 1 {
			t.Errorf("List returned unexpected results: got %d tools, total %d", len(tools), total)
		}
	}
	if callCount := mockRepo.getCallCount("List"); callCount != 1 {
		t.Errorf("Expected base repository List to be called once, got %d calls", callCount)
	}

	for i := 0; i < 2; i++ {
		count, err := cachedRepo.Count(ctx)
		if err != nil {
			t.Fatalf("Count #%d failed: %v", i, err)
		}
		if count != 1 {
			t.Errorf("Count returned unexpected result: got %d, expected 1", count)
		}
	}
	if callCount := mockRepo.getCallCount("Count"); callCount != 1 {
		t.Errorf("Expected base repository Count to be called once, got %d calls", callCount)
	}

	if tracked := cachedRepo.Namespace().Len(); tracked != 3 {
		t.Errorf("Expected 3 tracked keys, got %d", tracked)
	}
}

// TestCheckOutInvalidatesNamespace walks the inventory flow: reads are
// cached, a check-out write invalidates and the next read sees fresh data
func TestCheckOutInvalidatesNamespace(t *testing.T) {
	container, _ := newTestContainer(t)

	mockRepo := newMockToolRepository()
	seedTools(t, mockRepo, "tool-1", "tool-2")

	cachedRepo, err := NewCachedRepository[Tool](container, mockRepo)
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}
	ctx := context.Background()

	tools, _, err := cachedRepo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if tools[0].Status != "available" {
		t.Fatalf("unexpected status %q", tools[0].Status)
	}

	checkedOut := tools[0]
	checkedOut.Status = "checked_out"
	checkedOut.CheckedOut = epoch.Unix()
	if _, err := cachedRepo.Update(ctx, checkedOut); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if tracked := cachedRepo.Namespace().Len(); tracked != 0 {
		t.Errorf("Expected the namespace to be invalidated, %d keys left", tracked)
	}

	tools, _, err = cachedRepo.List(ctx)
	if err != nil {
		t.Fatalf("List after update failed: %v", err)
	}
	if tools[0].Status != "checked_out" {
		t.Errorf("Expected fresh status after check-out, got %q", tools[0].Status)
	}
	if callCount := mockRepo.getCallCount("List"); callCount != 2 {
		t.Errorf("Expected base repository List to be called twice, got %d calls", callCount)
	}
}

// TestCacheExpiryFlow tests that cache entries are refetched once expired
func TestCacheExpiryFlow(t *testing.T) {
	container, clk := newTestContainer(t, func(c *cache.Config, h *cache.HandlerConfig) {
		c.TTL = 30 * time.Minute
		h.RefreshLead = 0
		h.SweepInterval = 24 * time.Hour
	})

	mockRepo := newMockToolRepository()
	seedTools(t, mockRepo, "tool-1")

	cachedRepo, err := NewCachedRepository[Tool](container, mockRepo)
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}
	ctx := context.Background()

	if _, err := cachedRepo.GetByID(ctx, "tool-1"); err != nil {
		t.Fatalf("First GetByID failed: %v", err)
	}

	// refresh-ahead with zero lead refreshes right at expiry
	clk.Advance(30 * time.Minute)

	if callCount := mockRepo.getCallCount("GetByID"); callCount != 2 {
		t.Errorf("Expected refresh at expiry to call the base again, got %d calls", callCount)
	}

	if _, err := cachedRepo.GetByID(ctx, "tool-1"); err != nil {
		t.Fatalf("GetByID after refresh failed: %v", err)
	}
	if callCount := mockRepo.getCallCount("GetByID"); callCount != 2 {
		t.Errorf("Expected a cache hit after refresh, got %d calls", callCount)
	}
}

// TestSweepBoundsStaleness verifies out-of-band changes are picked up after a sweep
func TestSweepBoundsStaleness(t *testing.T) {
	container, clk := newTestContainer(t, func(c *cache.Config, h *cache.HandlerConfig) {
		c.TTL = 6 * time.Hour
	})

	mockRepo := newMockToolRepository()
	seedTools(t, mockRepo, "tool-1")

	cachedRepo, err := NewCachedRepository[Tool](container, mockRepo)
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}
	ctx := context.Background()

	if _, err := cachedRepo.Count(ctx); err != nil {
		t.Fatalf("Count failed: %v", err)
	}

	// written behind the decorator's back
	seedTools(t, mockRepo, "tool-2")

	if count, _ := cachedRepo.Count(ctx); count != 1 {
		t.Errorf("Expected stale count 1 before sweep, got %d", count)
	}

	clk.Advance(time.Hour)

	if count, _ := cachedRepo.Count(ctx); count != 2 {
		t.Errorf("Expected fresh count 2 after sweep, got %d", count)
	}
}

// TestWriteMethodPassThrough verifies that write methods reach the base repository
func TestWriteMethodPassThrough(t *testing.T) {
	container, _ := newTestContainer(t)

	mockRepo := newMockToolRepository()
	cachedRepo, err := NewCachedRepository[Tool](container, mockRepo)
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}
	ctx := context.Background()

	newTool := Tool{ID: "new-tool", Name: "level"}

	createdTool, err := cachedRepo.Create(ctx, newTool)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if createdTool.ID != newTool.ID {
		t.Errorf("Create returned unexpected tool: got %+v, expected %+v", createdTool, newTool)
	}
	if callCount := mockRepo.getCallCount("Create"); callCount != 1 {
		t.Errorf("Expected base repository Create to be called once, got %d calls", callCount)
	}

	updatedTool := createdTool
	updatedTool.Name = "spirit level"
	resultTool, err := cachedRepo.Update(ctx, updatedTool)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if resultTool.Name != "spirit level" {
		t.Errorf("Update didn't apply changes: got name %s", resultTool.Name)
	}

	if err := cachedRepo.Delete(ctx, resultTool); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if callCount := mockRepo.getCallCount("Delete"); callCount != 1 {
		t.Errorf("Expected base repository Delete to be called once, got %d calls", callCount)
	}
}

// TestErrorPropagation verifies that base errors are returned and not cached
func TestErrorPropagation(t *testing.T) {
	container, _ := newTestContainer(t)

	mockRepo := newMockToolRepository()
	cachedRepo, err := NewCachedRepository[Tool](container, mockRepo)
	if err != nil {
		t.Fatalf("NewCachedRepository() failed: %v", err)
	}
	ctx := context.Background()

	_, err = cachedRepo.GetByID(ctx, "missing")
	if !errors.Is(err, errToolNotFound) {
		t.Fatalf("Expected errToolNotFound, got %v", err)
	}

	seedTools(t, mockRepo, "missing")

	tool, err := cachedRepo.GetByID(ctx, "missing")
	if err != nil {
		t.Fatalf("Expected the second lookup to reach the base, got %v", err)
	}
	if tool.ID != "missing" {
		t.Errorf("unexpected tool %+v", tool)
	}
	if callCount := mockRepo.getCallCount("GetByID"); callCount != 2 {
		t.Errorf("Expected errors not to be cached, got %d base calls", callCount)
	}
}

// TestDifferentRepositoryTypes verifies repositories of different types get
// their own namespaces on the shared store
func TestDifferentRepositoryTypes(t *testing.T) {
	container, _ := newTestContainer(t)

	tools, err := NewCachedRepository[Tool](container, newMockToolRepository())
	if err != nil {
		t.Fatalf("NewCachedRepository[Tool]() failed: %v", err)
	}

	checkouts, err := NewCachedRepositoryIn[Tool](container, "CheckoutToolRepository", newMockToolRepository())
	if err != nil {
		t.Fatalf("NewCachedRepositoryIn() failed: %v", err)
	}

	if tools.Namespace() == checkouts.Namespace() {
		t.Error("Expected distinct namespaces")
	}

	again, err := NewCachedRepository[Tool](container, newMockToolRepository())
	if err != nil {
		t.Fatalf("NewCachedRepository[Tool]() failed: %v", err)
	}
	if again.Namespace() != tools.Namespace() {
		t.Error("Expected repositories of the same type to share a namespace")
	}

	if got := repositorycache.NamespaceFor[Checkout](); got != "CheckoutRepository" {
		t.Errorf("Expected CheckoutRepository, got %s", got)
	}
}
