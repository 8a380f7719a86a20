package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stablelink/internal/domain"
	"stablelink/internal/token"
)

// memStore — in-memory реализация контрактов хранилища для тестов.
// Повторяет семантику Postgres-репозиториев: статусные защиты,
// атомарная пара "переход + audit-запись", условная вставка гранта.
type memStore struct {
	mu      sync.Mutex
	conns   map[uuid.UUID]*domain.Connection
	grants  map[uuid.UUID]*domain.ConsentGrant
	shares  map[uuid.UUID]*domain.Share
	entries []domain.AuditEntry
	records []domain.ResourceRecord
}

func newMemStore() *memStore {
	return &memStore{
		conns:  make(map[uuid.UUID]*domain.Connection),
		grants: make(map[uuid.UUID]*domain.ConsentGrant),
		shares: make(map[uuid.UUID]*domain.Share),
	}
}

func (m *memStore) appendEntry(e *domain.AuditEntry) {
	entry := *e
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
}

func (m *memStore) entriesOfType(event domain.AuditEvent) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.EventType == event {
			out = append(out, e)
		}
	}
	return out
}

// --- ConnectionStore ---

func (m *memStore) CreateConnection(_ context.Context, c *domain.Connection, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.conns[c.ID] = &copied
	m.appendEntry(entry)
	return nil
}

func (m *memStore) ConnectionByToken(_ context.Context, tok string) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if token.ConstantTimeEquals(c.Token, tok) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: connection", domain.ErrNotFound)
}

func (m *memStore) ConnectionByID(_ context.Context, id uuid.UUID) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: connection", domain.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *memStore) ListConnections(_ context.Context, tenantID string) ([]domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Connection
	for _, c := range m.conns {
		if c.InitiatorTenantID == tenantID || (c.RecipientTenantID != nil && *c.RecipientTenantID == tenantID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) UpdateConnectionStatus(_ context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return fmt.Errorf("%w: connection", domain.ErrNotFound)
	}
	if c.Status != from {
		return fmt.Errorf("%w: connection is %s", domain.ErrInvalidState, c.Status)
	}
	c.Status = to
	m.appendEntry(entry)
	return nil
}

func (m *memStore) RevokeConnectionCascade(_ context.Context, id uuid.UUID, connEntry *domain.AuditEntry, grantEntry domain.AuditEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return 0, fmt.Errorf("%w: connection", domain.ErrNotFound)
	}
	if c.Status != domain.StatusPending && c.Status != domain.StatusAccepted {
		return 0, fmt.Errorf("%w: connection is %s", domain.ErrInvalidState, c.Status)
	}
	c.Status = domain.StatusRevoked
	m.appendEntry(connEntry)

	n := 0
	for _, g := range m.grants {
		if g.ConnectionID == id && g.Status == domain.StatusActive {
			g.Status = domain.StatusRevoked
			gid := g.ID
			e := grantEntry
			e.ID = uuid.New()
			e.GrantID = &gid
			m.appendEntry(&e)
			n++
		}
	}
	return n, nil
}

// --- GrantStore ---

func (m *memStore) CreateGrant(_ context.Context, g *domain.ConsentGrant, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[g.ConnectionID]
	if !ok {
		return fmt.Errorf("%w: connection", domain.ErrNotFound)
	}
	if c.Status != domain.StatusAccepted {
		return fmt.Errorf("%w: connection is %s", domain.ErrInvalidState, c.Status)
	}
	copied := *g
	m.grants[g.ID] = &copied
	m.appendEntry(entry)
	return nil
}

func (m *memStore) GrantByID(_ context.Context, id uuid.UUID) (*domain.ConsentGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, fmt.Errorf("%w: grant", domain.ErrNotFound)
	}
	copied := *g
	return &copied, nil
}

func (m *memStore) ListGrantsByConnection(_ context.Context, connectionID uuid.UUID) ([]domain.ConsentGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ConsentGrant
	for _, g := range m.grants {
		if g.ConnectionID == connectionID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memStore) UpdateGrantStatus(_ context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return fmt.Errorf("%w: grant", domain.ErrNotFound)
	}
	if g.Status != from {
		return fmt.Errorf("%w: grant is %s", domain.ErrInvalidState, g.Status)
	}
	g.Status = to
	m.appendEntry(entry)
	return nil
}

// --- ShareStore ---

func (m *memStore) CreateShare(_ context.Context, s *domain.Share, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.shares[s.ID] = &copied
	m.appendEntry(entry)
	return nil
}

func (m *memStore) ShareByToken(_ context.Context, tok string) (*domain.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shares {
		if token.ConstantTimeEquals(s.Token, tok) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
}

func (m *memStore) ShareByID(_ context.Context, id uuid.UUID) (*domain.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shares[id]
	if !ok {
		return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) ListSharesBySubject(_ context.Context, ownerTenantID, subjectResourceID string) ([]domain.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Share
	for _, s := range m.shares {
		if s.OwnerTenantID == ownerTenantID && s.SubjectResourceID == subjectResourceID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) UpdateShareStatus(_ context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shares[id]
	if !ok {
		return fmt.Errorf("%w: share", domain.ErrNotFound)
	}
	if s.Status != from {
		return fmt.Errorf("%w: share is %s", domain.ErrInvalidState, s.Status)
	}
	s.Status = to
	m.appendEntry(entry)
	return nil
}

// --- AuditStore ---

func (m *memStore) AppendEntry(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendEntry(e)
	return nil
}

func (m *memStore) ListEntriesByConnection(_ context.Context, connectionID uuid.UUID) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.ConnectionID != nil && *e.ConnectionID == connectionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- ResourceFetcher ---

func (m *memStore) FetchByTypeAndOwner(_ context.Context, resourceType domain.ResourceType, ownerTenantID string, ids []string) ([]domain.ResourceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ResourceRecord
	for _, rec := range m.records {
		if rec.ResourceType != resourceType || rec.OwnerTenantID != ownerTenantID {
			continue
		}
		if len(ids) > 0 {
			found := false
			for _, id := range ids {
				if id == rec.ID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// --- Хелперы сборки тестовых данных ---

func strptr(s string) *string { return &s }

func memberOf(tenantIDs ...string) domain.Caller {
	return domain.Caller{UserID: "usr_test", TenantIDs: tenantIDs}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

// fixture собирает все сервисы поверх одного memStore с общими
// управляемыми часами.
type fixture struct {
	store    *memStore
	conns    *ConnectionService
	grants   *GrantService
	shares   *ShareService
	resolver *ResolverService
}

func newFixture(now time.Time) *fixture {
	store := newMemStore()
	f := &fixture{
		store:    store,
		conns:    NewConnectionService(store, store),
		grants:   NewGrantService(store, store),
		shares:   NewShareService(store, DefaultPacks()),
		resolver: NewResolverService(store, store, store, store, store),
	}
	f.setNow(now)
	return f
}

func (f *fixture) setNow(t time.Time) {
	clock := fixedClock(t)
	f.conns.Now = clock
	f.grants.Now = clock
	f.shares.Now = clock
	f.resolver.Now = clock
}

// acceptedConnection создает и принимает связь между двумя тенантами.
func (f *fixture) acceptedConnection(t testingT, initiatorTenant, recipientTenant string) *domain.Connection {
	t.Helper()
	conn, err := f.conns.CreateConnection(
		context.Background(),
		memberOf(initiatorTenant),
		initiatorTenant,
		domain.ConnectionTypeVeterinary,
		domain.Recipient{TenantID: strptr(recipientTenant)},
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	if _, err := f.conns.AcceptConnection(context.Background(), conn.Token); err != nil {
		t.Fatalf("AcceptConnection: %v", err)
	}
	conn.Status = domain.StatusAccepted
	return conn
}

func (f *fixture) addRecord(id string, rt domain.ResourceType, ownerTenant string, recordDate time.Time, fields domain.Metadata) {
	f.store.records = append(f.store.records, domain.ResourceRecord{
		ID:            id,
		ResourceType:  rt,
		OwnerTenantID: ownerTenant,
		RecordDate:    recordDate,
		Fields:        fields,
	})
}

// testingT — минимальный срез *testing.T, нужный хелперам.
type testingT interface {
	Helper()
	Fatalf(format string, args ...interface{})
}
