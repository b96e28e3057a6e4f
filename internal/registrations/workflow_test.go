package registrations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/notify"
)

// fakeStore reproduces the repository's conditional-update contract in
// memory: transitions only happen when the guard still holds under the lock.
type fakeStore struct {
	mu   sync.Mutex
	regs map[int64]*models.Registration
}

func newFakeStore(regs ...*models.Registration) *fakeStore {
	s := &fakeStore{regs: make(map[int64]*models.Registration)}
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
		return nil, ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (s *fakeStore) Decide(_ context.Context, id int64, to models.RegistrationStatus, reason string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if reg.Status.Decided() {
		return nil, ErrAlreadyDecided
	}
	now := time.Now()
	reg.Status = to
	reg.DecidedAt = &now
	reg.RejectionReason = reason
	cp := *reg
	return &cp, nil
}

type fakeIssuer struct {
	mu    sync.Mutex
	calls int
	err   error
	token string
}

func (f *fakeIssuer) IssueToken(_ context.Context, _ *models.Registration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
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

func (f *fakeDispatcher) kinds() []notify.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Kind, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Kind
	}
	return out
}

type fakeEvents struct{}

func (fakeEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	return &models.Event{ID: id, Title: "Tech Symposium"}, nil
}

func pendingRegistration(id int64) *models.Registration {
	return &models.Registration{
		ID:               id,
		EventID:          7,
		StudentID:        1001,
		StudentName:      "Asha Rao",
		StudentEmail:     "asha@example.edu",
		Status:           models.StatusPending,
		RegisteredOn:     time.Now().Add(-time.Hour),
		AttendanceStatus: models.AttendanceAbsent,
	}
}

func newTestWorkflow(store Store, issuer CredentialIssuer, d notify.Dispatcher) *Workflow {
	return NewWorkflow(store, issuer, fakeEvents{}, d, nil)
}

func TestApproveTransitionsAndIssuesCredential(t *testing.T) {
	store := newFakeStore(pendingRegistration(42))
	issuer := &fakeIssuer{token: "tok-42"}
	dispatcher := &fakeDispatcher{}
	w := newTestWorkflow(store, issuer, dispatcher)

	reg, err := w.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, reg.Status)
	require.NotNil(t, reg.DecidedAt)
	require.NotNil(t, reg.QRToken)
	assert.Equal(t, "tok-42", *reg.QRToken)
	assert.Equal(t, 1, issuer.calls)
	assert.Equal(t, []notify.Kind{notify.KindRegistrationApproved}, dispatcher.kinds())
}

func TestApproveFromWaitlist(t *testing.T) {
	reg := pendingRegistration(9)
	reg.Status = models.StatusWaitlistPending
	store := newFakeStore(reg)
	w := newTestWorkflow(store, &fakeIssuer{token: "tok"}, &fakeDispatcher{})

	got, err := w.Approve(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestApproveNotFound(t *testing.T) {
	w := newTestWorkflow(newFakeStore(), &fakeIssuer{}, &fakeDispatcher{})

	_, err := w.Approve(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectStoresReason(t *testing.T) {
	store := newFakeStore(pendingRegistration(42))
	dispatcher := &fakeDispatcher{}
	w := newTestWorkflow(store, &fakeIssuer{}, dispatcher)

	reg, err := w.Reject(context.Background(), 42, "event is full")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, reg.Status)
	assert.Equal(t, "event is full", reg.RejectionReason)
	assert.Equal(t, []notify.Kind{notify.KindRegistrationRejected}, dispatcher.kinds())
}

func TestDecisionIsOneWay(t *testing.T) {
	store := newFakeStore(pendingRegistration(42))
	w := newTestWorkflow(store, &fakeIssuer{token: "tok"}, &fakeDispatcher{})
	ctx := context.Background()

	_, err := w.Reject(ctx, 42, "")
	require.NoError(t, err)

	_, err = w.Approve(ctx, 42)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	reg, err := store.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, reg.Status)
	assert.Nil(t, reg.QRToken)
}

func TestConcurrentDecisionsSingleWinner(t *testing.T) {
	store := newFakeStore(pendingRegistration(42))
	issuer := &fakeIssuer{token: "tok"}
	dispatcher := &fakeDispatcher{}
	w := newTestWorkflow(store, issuer, dispatcher)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = w.Approve(context.Background(), 42)
			} else {
				_, err = w.Reject(context.Background(), 42, "no seats")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyDecided):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
	assert.LessOrEqual(t, issuer.calls, 1)
	assert.Len(t, dispatcher.kinds(), 1)
}

func TestApproveSurvivesIssuanceFailure(t *testing.T) {
	store := newFakeStore(pendingRegistration(42))
	issuer := &fakeIssuer{err: errors.New("qr image rendering failed")}
	w := newTestWorkflow(store, issuer, &fakeDispatcher{})

	reg, err := w.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, reg.Status)
	assert.Nil(t, reg.QRToken)
	assert.Equal(t, 1, issuer.calls)

	// A later issuance attempt works once rendering recovers.
	issuer.err = nil
	issuer.token = "tok-later"
	token, err := issuer.IssueToken(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, "tok-later", token)
}
