package handler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/staff"
)

type noopStore struct{}

func (noopStore) CreateSale(_ context.Context, s *checkout.Sale) (string, error) { return s.ID, nil }

func openOrchestrator(ctx context.Context, registerID string, op *staff.Member) (*checkout.Orchestrator, error) {
	return checkout.NewOrchestrator(ctx, checkout.DefaultConfig(), checkout.Deps{
		Store:      noopStore{},
		Quotations: checkout.NewSequenceGenerator(),
	}, registerID, op)
}

// lostLock fails every refresh as if another instance took the register.
type lostLock struct {
	released atomic.Bool
}

func (l *lostLock) Refresh(context.Context) error { return checkout.ErrRegisterBusy }

func (l *lostLock) Release(context.Context) error {
	l.released.Store(true)
	return nil
}

type lockerFunc func(ctx context.Context, registerID string) (Lock, error)

func (f lockerFunc) Acquire(ctx context.Context, registerID string) (Lock, error) {
	return f(ctx, registerID)
}

var (
	asha = &staff.Member{ID: "s1", Capabilities: staff.NewSet(staff.CapCheckout)}
	ravi = &staff.Member{ID: "s2", Capabilities: staff.NewSet(staff.CapCheckout)}
)

func TestRegisters_SharedLocker(t *testing.T) {
	locker := NewLocalLocker()
	a := NewRegisters(t.Context(), locker, openOrchestrator, time.Minute)
	b := NewRegisters(t.Context(), locker, openOrchestrator, time.Minute)

	_, err := a.Open(t.Context(), "till-1", asha)
	require.NoError(t, err)

	_, err = b.Open(t.Context(), "till-1", ravi)
	assert.ErrorIs(t, err, checkout.ErrRegisterBusy)

	_, err = b.Open(t.Context(), "till-2", ravi)
	require.NoError(t, err)

	require.NoError(t, a.Close(t.Context(), "till-1", asha))
	_, err = b.Open(t.Context(), "till-1", ravi)
	assert.NoError(t, err)
}

func TestRegisters_OpenFailureReleasesLock(t *testing.T) {
	locker := NewLocalLocker()
	failing := func(context.Context, string, *staff.Member) (*checkout.Orchestrator, error) {
		return nil, errors.New("quotation counter down")
	}
	r := NewRegisters(t.Context(), locker, failing, time.Minute)

	_, err := r.Open(t.Context(), "till-1", asha)
	require.ErrorContains(t, err, "quotation counter down")

	lock, err := locker.Acquire(t.Context(), "till-1")
	require.NoError(t, err, "lock must be released after a failed open")
	require.NoError(t, lock.Release(t.Context()))
}

func TestRegisters_SlowOpenDoesNotBlockOtherRegisters(t *testing.T) {
	local := NewLocalLocker()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	locker := lockerFunc(func(ctx context.Context, registerID string) (Lock, error) {
		if registerID == "till-1" {
			close(entered)
			<-unblock
		}
		return local.Acquire(ctx, registerID)
	})
	r := NewRegisters(t.Context(), locker, openOrchestrator, time.Minute)

	slow := make(chan error, 1)
	go func() {
		_, err := r.Open(t.Context(), "till-1", asha)
		slow <- err
	}()
	<-entered

	opened := make(chan error, 1)
	go func() {
		_, err := r.Open(t.Context(), "till-2", ravi)
		opened <- err
	}()
	select {
	case err := <-opened:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("opening till-2 waited on till-1")
	}

	_, err := r.Open(t.Context(), "till-1", ravi)
	assert.ErrorIs(t, err, checkout.ErrRegisterBusy, "register is being opened")
	_, err = r.Get("till-1", asha)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	close(unblock)
	require.NoError(t, <-slow)
	_, err = r.Get("till-1", asha)
	assert.NoError(t, err)
}

func TestRegisters_LostLockDropsSession(t *testing.T) {
	lock := &lostLock{}
	r := NewRegisters(t.Context(), lockerFunc(func(context.Context, string) (Lock, error) {
		return lock, nil
	}), openOrchestrator, 5*time.Millisecond)

	_, err := r.Open(t.Context(), "till-1", asha)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := r.Get("till-1", asha)
		return errors.Is(err, ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestRegisters_CloseAll(t *testing.T) {
	locker := NewLocalLocker()
	r := NewRegisters(t.Context(), locker, openOrchestrator, time.Minute)
	for _, id := range []string{"till-1", "till-2"} {
		_, err := r.Open(t.Context(), id, asha)
		require.NoError(t, err)
	}

	r.CloseAll(t.Context())

	for _, id := range []string{"till-1", "till-2"} {
		_, err := r.Get(id, asha)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		lock, err := locker.Acquire(t.Context(), id)
		require.NoError(t, err)
		require.NoError(t, lock.Release(t.Context()))
	}
}

func TestLocalLock_ReleaseIsIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	first, err := locker.Acquire(t.Context(), "till-1")
	require.NoError(t, err)
	require.NoError(t, first.Release(t.Context()))

	second, err := locker.Acquire(t.Context(), "till-1")
	require.NoError(t, err)

	// A stale handle must not free the new holder's lock.
	require.NoError(t, first.Release(t.Context()))
	_, err = locker.Acquire(t.Context(), "till-1")
	assert.ErrorIs(t, err, checkout.ErrRegisterBusy)
	require.NoError(t, second.Release(t.Context()))
}
