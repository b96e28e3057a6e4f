package certificates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/notify"
	"github.com/campus-events/backend/internal/registrations"
)

type pairKey struct{ eventID, studentID int64 }

// fakeStore reproduces the conflict-aware insert and the set-difference bulk
// insert in memory.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	certs  map[pairKey]*models.Certificate
	regs   map[int64]*models.Registration
}

func newFakeStore(regs ...*models.Registration) *fakeStore {
	s := &fakeStore{certs: make(map[pairKey]*models.Certificate), regs: make(map[int64]*models.Registration)}
	for _, r := range regs {
		s.regs[r.ID] = r
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (s *fakeStore) CreateIfAbsent(_ context.Context, cert *models.Certificate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{cert.EventID, cert.StudentID}
	if existing, ok := s.certs[key]; ok {
		*cert = *existing
		return false, nil
	}
	s.nextID++
	cert.ID = s.nextID
	cp := *cert
	s.certs[key] = &cp
	return true, nil
}

func (s *fakeStore) BulkCreatePending(_ context.Context, eventID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var created int64
	for _, reg := range s.regs {
		if reg.EventID != eventID || reg.Status != models.StatusApproved {
			continue
		}
		key := pairKey{reg.EventID, reg.StudentID}
		if _, ok := s.certs[key]; ok {
			continue
		}
		s.nextID++
		code, err := GenerateCode(eventID)
		if err != nil {
			return created, err
		}
		s.certs[key] = &models.Certificate{
			ID:              s.nextID,
			EventID:         reg.EventID,
			StudentID:       reg.StudentID,
			CertificateCode: code,
			Status:          models.CertificatePending,
		}
		created++
	}
	return created, nil
}

func (s *fakeStore) ListByEvent(_ context.Context, eventID int64) ([]models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Certificate
	for _, c := range s.certs {
		if c.EventID == eventID {
			list = append(list, *c)
		}
	}
	return list, nil
}

type fakeEvents struct{}

func (fakeEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	return &models.Event{ID: id, Title: "Tech Symposium"}, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (f *fakeDispatcher) Dispatch(_ context.Context, msg notify.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func approvedRegistration(id, eventID, studentID int64) *models.Registration {
	return &models.Registration{
		ID:           id,
		EventID:      eventID,
		StudentID:    studentID,
		StudentName:  fmt.Sprintf("Student %d", studentID),
		StudentEmail: fmt.Sprintf("s%d@example.edu", studentID),
		Status:       models.StatusApproved,
	}
}

func TestGenerateIssuesCertificate(t *testing.T) {
	store := newFakeStore(approvedRegistration(42, 7, 1001))
	dispatcher := &fakeDispatcher{}
	issuer := NewIssuer(store, store, fakeEvents{}, dispatcher, nil)

	cert, err := issuer.Generate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cert.EventID)
	assert.Equal(t, int64(1001), cert.StudentID)
	assert.Equal(t, models.CertificateIssued, cert.Status)
	require.NotNil(t, cert.IssuedDate)
	assert.True(t, strings.HasPrefix(cert.CertificateCode, "CERT-7-"))
	assert.Len(t, dispatcher.msgs, 1)
	assert.Equal(t, notify.KindCertificateIssued, dispatcher.msgs[0].Kind)
}

func TestGenerateIsIdempotentPerPair(t *testing.T) {
	store := newFakeStore(approvedRegistration(42, 7, 1001))
	dispatcher := &fakeDispatcher{}
	issuer := NewIssuer(store, store, fakeEvents{}, dispatcher, nil)
	ctx := context.Background()

	first, err := issuer.Generate(ctx, 42)
	require.NoError(t, err)
	second, err := issuer.Generate(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CertificateCode, second.CertificateCode)
	assert.Len(t, dispatcher.msgs, 1, "only the creating call notifies")
}

func TestGenerateRequiresApproval(t *testing.T) {
	reg := approvedRegistration(42, 7, 1001)
	reg.Status = models.StatusPending
	store := newFakeStore(reg)
	issuer := NewIssuer(store, store, fakeEvents{}, &fakeDispatcher{}, nil)
	_, err := issuer.Generate(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestGenerateUnknownRegistration(t *testing.T) {
	store := newFakeStore()
	issuer := NewIssuer(store, store, fakeEvents{}, &fakeDispatcher{}, nil)

	_, err := issuer.Generate(context.Background(), 99)
	assert.ErrorIs(t, err, registrations.ErrNotFound)
}

func TestBulkGenerateSkipsExisting(t *testing.T) {
	regs := make([]*models.Registration, 0, 10)
	for i := int64(1); i <= 10; i++ {
		regs = append(regs, approvedRegistration(i, 7, 1000+i))
	}
	store := newFakeStore(regs...)
	issuer := NewIssuer(store, store, fakeEvents{}, &fakeDispatcher{}, nil)
	ctx := context.Background()

	// Three students are already certified before the bulk run.
	for _, id := range []int64{1, 2, 3} {
		_, err := issuer.Generate(ctx, id)
		require.NoError(t, err)
	}

	created, err := issuer.BulkGenerate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), created)

	list, err := store.ListByEvent(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 10)
}

func TestBulkGenerateRerunIsNoOp(t *testing.T) {
	store := newFakeStore(
		approvedRegistration(1, 7, 1001),
		approvedRegistration(2, 7, 1002),
	)
	issuer := NewIssuer(store, store, fakeEvents{}, &fakeDispatcher{}, nil)
	ctx := context.Background()

	created, err := issuer.BulkGenerate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), created)

	created, err = issuer.BulkGenerate(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, created)

	list, err := store.ListByEvent(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestBulkGenerateAbsorbsConcurrentSingleIssue(t *testing.T) {
	regs := make([]*models.Registration, 0, 8)
	for i := int64(1); i <= 8; i++ {
		regs = append(regs, approvedRegistration(i, 7, 1000+i))
	}
	store := newFakeStore(regs...)
	issuer := NewIssuer(store, store, fakeEvents{}, &fakeDispatcher{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var bulkCreated int64
	var bulkErr, singleErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		bulkCreated, bulkErr = issuer.BulkGenerate(ctx, 7)
	}()
	go func() {
		defer wg.Done()
		_, singleErr = issuer.Generate(ctx, 4)
	}()
	wg.Wait()

	require.NoError(t, bulkErr)
	require.NoError(t, singleErr)

	list, err := store.ListByEvent(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 8, "one certificate per student, whoever wrote it")
	assert.GreaterOrEqual(t, bulkCreated, int64(7))
}

func TestBulkGenerateIgnoresUndecided(t *testing.T) {
	pending := approvedRegistration(3, 7, 1003)
	pending.Status = models.StatusPending
	rejected := approvedRegistration(4, 7, 1004)
	rejected.Status = models.StatusRejected
	store := newFakeStore(approvedRegistration(1, 7, 1001), pending, rejected)
	issuer := NewIssuer(store, store, fakeEvents{}, &fakeDispatcher{}, nil)

	created, err := issuer.BulkGenerate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)
}

func TestGenerateCodeShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(7)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(code, "CERT-7-"))
		assert.Len(t, code, len("CERT-7-")+10)
		_, dup := seen[code]
		assert.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}
