package qrcode

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/backend/internal/models"
	"github.com/campus-events/backend/internal/registrations"
)

// fakeStore reproduces the write-once token contract in memory.
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
		return nil, registrations.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (s *fakeStore) SetQRTokenIfEmpty(_ context.Context, id int64, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return "", registrations.ErrNotFound
	}
	if reg.QRToken != nil {
		return *reg.QRToken, nil
	}
	reg.QRToken = &token
	return token, nil
}

func approvedRegistration(id int64) *models.Registration {
	return &models.Registration{
		ID:        id,
		EventID:   7,
		StudentID: 1001,
		Status:    models.StatusApproved,
	}
}

func stubRenderer(content string, size int) ([]byte, error) {
	return []byte("png:" + content), nil
}

func TestIssueForCreatesTokenOnce(t *testing.T) {
	store := newFakeStore(approvedRegistration(42))
	issuer := NewIssuer(store, stubRenderer, 256, nil)
	ctx := context.Background()

	reg, _ := store.GetByID(ctx, 42)
	first, err := issuer.IssueFor(ctx, reg)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Token)
	assert.NotEmpty(t, first.Image)

	reg, _ = store.GetByID(ctx, 42)
	second, err := issuer.IssueFor(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, first.Image, second.Image)
}

func TestIssueForEncodesStructuredPayload(t *testing.T) {
	store := newFakeStore(approvedRegistration(42))
	issuer := NewIssuer(store, stubRenderer, 256, nil)
	ctx := context.Background()

	reg, _ := store.GetByID(ctx, 42)
	cred, err := issuer.IssueFor(ctx, reg)
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(cred.Image[len("png:"):], &p))
	assert.Equal(t, int64(42), p.RegistrationID)
	assert.Equal(t, int64(7), p.EventID)
	assert.Equal(t, int64(1001), p.StudentID)
}

func TestRenderFailureLeavesTokenUnset(t *testing.T) {
	store := newFakeStore(approvedRegistration(42))
	renderErr := errors.New("encoder out of memory")
	failing := func(string, int) ([]byte, error) { return nil, renderErr }
	issuer := NewIssuer(store, failing, 256, nil)
	ctx := context.Background()

	reg, _ := store.GetByID(ctx, 42)
	_, err := issuer.IssueFor(ctx, reg)
	assert.ErrorIs(t, err, ErrRenderFailed)

	reg, _ = store.GetByID(ctx, 42)
	assert.Nil(t, reg.QRToken)

	// Retry with a working renderer succeeds and persists the token.
	recovered := NewIssuer(store, stubRenderer, 256, nil)
	cred, err := recovered.IssueFor(ctx, reg)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)

	reg, _ = store.GetByID(ctx, 42)
	require.NotNil(t, reg.QRToken)
	assert.Equal(t, cred.Token, *reg.QRToken)
}

func TestConcurrentIssuanceYieldsSingleToken(t *testing.T) {
	store := newFakeStore(approvedRegistration(42))
	issuer := NewIssuer(store, stubRenderer, 256, nil)

	const n = 16
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := store.GetByID(context.Background(), 42)
			require.NoError(t, err)
			cred, err := issuer.IssueFor(context.Background(), reg)
			require.NoError(t, err)
			tokens[i] = cred.Token
		}(i)
	}
	wg.Wait()

	reg, err := store.GetByID(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, reg.QRToken)
	for _, tok := range tokens {
		assert.Equal(t, *reg.QRToken, tok)
	}
}

func TestGetOrIssueUnknownRegistration(t *testing.T) {
	issuer := NewIssuer(newFakeStore(), stubRenderer, 256, nil)

	_, _, err := issuer.GetOrIssue(context.Background(), 99)
	assert.ErrorIs(t, err, registrations.ErrNotFound)
}

func TestGetOrIssueRefusesUnapproved(t *testing.T) {
	for _, status := range []models.RegistrationStatus{
		models.StatusPending, models.StatusWaitlistPending, models.StatusRejected,
	} {
		t.Run(string(status), func(t *testing.T) {
			reg := approvedRegistration(42)
			reg.Status = status
			store := newFakeStore(reg)
			issuer := NewIssuer(store, stubRenderer, 256, nil)

			_, _, err := issuer.GetOrIssue(context.Background(), 42)
			assert.ErrorIs(t, err, ErrNotEligible)

			stored, _ := store.GetByID(context.Background(), 42)
			assert.Nil(t, stored.QRToken, "no token may be minted for %s", status)
		})
	}
}

func TestGetOrIssueServesExistingTokenRegardlessOfStatus(t *testing.T) {
	reg := approvedRegistration(42)
	tok := "tok-issued-before-rejection"
	reg.QRToken = &tok
	reg.Status = models.StatusRejected
	issuer := NewIssuer(newFakeStore(reg), stubRenderer, 256, nil)

	_, cred, err := issuer.GetOrIssue(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, tok, cred.Token)
}

func TestGetOrIssueCreatesForApproved(t *testing.T) {
	store := newFakeStore(approvedRegistration(42))
	issuer := NewIssuer(store, stubRenderer, 256, nil)

	reg, cred, err := issuer.GetOrIssue(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), reg.ID)
	assert.NotEmpty(t, cred.Token)

	stored, _ := store.GetByID(context.Background(), 42)
	require.NotNil(t, stored.QRToken)
	assert.Equal(t, cred.Token, *stored.QRToken)
}

func TestPNGRendererProducesPNG(t *testing.T) {
	img, err := PNGRenderer(`{"registration_id":42}`, 256)
	require.NoError(t, err)
	require.Greater(t, len(img), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img[:4])
}
