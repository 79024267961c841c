package handler

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/staff"
)

// ErrSessionNotFound is returned when a register has no open session.
var ErrSessionNotFound = errors.New("register has no open session")

// Lock is a held register lock.
type Lock interface {
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker pins a register to one session. Acquire fails with
// checkout.ErrRegisterBusy when the register is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, registerID string) (Lock, error)
}

// OpenFunc creates the orchestrator for a newly opened register session.
type OpenFunc func(ctx context.Context, registerID string, operator *staff.Member) (*checkout.Orchestrator, error)

type registerSession struct {
	orch     *checkout.Orchestrator
	operator *staff.Member
	lock     Lock
	stop     context.CancelFunc
}

// Registers tracks the open session of every register served by this
// instance and keeps their locks alive.
type Registers struct {
	base    context.Context
	locker  Locker
	open    OpenFunc
	refresh time.Duration

	mu       sync.Mutex
	sessions map[string]*registerSession
	// opening reserves registers whose lock and session are being set up
	// outside mu.
	opening map[string]struct{}
}

// NewRegisters returns a registry whose lock keep-alive goroutines live as
// long as ctx. Locks are refreshed every refresh interval.
func NewRegisters(ctx context.Context, locker Locker, open OpenFunc, refresh time.Duration) *Registers {
	if refresh <= 0 {
		refresh = 10 * time.Second
	}
	return &Registers{
		base:     ctx,
		locker:   locker,
		open:     open,
		refresh:  refresh,
		sessions: make(map[string]*registerSession),
		opening:  make(map[string]struct{}),
	}
}

// Open starts a session on registerID for operator. Re-opening a register
// the operator already holds resumes the existing session. Lock and
// quotation I/O run without holding the registry mutex; a register being
// opened concurrently reports checkout.ErrRegisterBusy.
func (r *Registers) Open(ctx context.Context, registerID string, operator *staff.Member) (*checkout.Orchestrator, error) {
	r.mu.Lock()
	if s, ok := r.sessions[registerID]; ok {
		r.mu.Unlock()
		if s.operator.ID != operator.ID {
			return nil, checkout.ErrRegisterBusy
		}
		return s.orch, nil
	}
	if _, ok := r.opening[registerID]; ok {
		r.mu.Unlock()
		return nil, checkout.ErrRegisterBusy
	}
	r.opening[registerID] = struct{}{}
	r.mu.Unlock()

	s, err := r.start(ctx, registerID, operator)
	var keepCtx context.Context
	if err == nil {
		keepCtx, s.stop = context.WithCancel(r.base)
	}

	r.mu.Lock()
	delete(r.opening, registerID)
	if err == nil {
		r.sessions[registerID] = s
	}
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	go r.keepAlive(keepCtx, registerID, s)

	zctx.From(ctx).Info("Register session opened",
		zap.String("register", registerID),
		zap.String("operator", operator.ID),
		zap.String("quotation", s.orch.View().Quotation),
	)
	return s.orch, nil
}

// start acquires the register lock and creates the orchestrator. The lock
// is released again if the orchestrator cannot be created.
func (r *Registers) start(ctx context.Context, registerID string, operator *staff.Member) (*registerSession, error) {
	lock, err := r.locker.Acquire(ctx, registerID)
	if err != nil {
		return nil, err
	}
	orch, err := r.open(ctx, registerID, operator)
	if err != nil {
		if rerr := lock.Release(ctx); rerr != nil {
			zctx.From(ctx).Warn("Release register lock", zap.Error(rerr))
		}
		return nil, errors.Wrap(err, "open session")
	}
	return &registerSession{orch: orch, operator: operator, lock: lock}, nil
}

// Get returns the orchestrator of the session operator holds on registerID.
func (r *Registers) Get(registerID string, operator *staff.Member) (*checkout.Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[registerID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.operator.ID != operator.ID {
		return nil, checkout.ErrRegisterBusy
	}
	return s.orch, nil
}

// Close ends the session on registerID. A session in the middle of sale
// completion cannot be closed.
func (r *Registers) Close(ctx context.Context, registerID string, operator *staff.Member) error {
	r.mu.Lock()
	s, ok := r.sessions[registerID]
	switch {
	case !ok:
		r.mu.Unlock()
		return ErrSessionNotFound
	case s.operator.ID != operator.ID:
		r.mu.Unlock()
		return checkout.ErrRegisterBusy
	case s.orch.State() != checkout.StateCollectingItems:
		r.mu.Unlock()
		return checkout.ErrCheckoutInProgress
	}
	delete(r.sessions, registerID)
	r.mu.Unlock()

	s.stop()
	if err := s.lock.Release(ctx); err != nil {
		return errors.Wrap(err, "release register")
	}
	zctx.From(ctx).Info("Register session closed", zap.String("register", registerID))
	return nil
}

// CloseAll releases every register held by this instance.
func (r *Registers) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*registerSession)
	r.mu.Unlock()

	for id, s := range sessions {
		s.stop()
		if err := s.lock.Release(ctx); err != nil {
			zctx.From(ctx).Warn("Release register lock",
				zap.String("register", id), zap.Error(err))
		}
	}
}

// keepAlive refreshes the register lock until stopped. A lost lock drops
// the session so this instance stops serving a register someone else owns.
func (r *Registers) keepAlive(ctx context.Context, registerID string, s *registerSession) {
	t := time.NewTicker(r.refresh)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := s.lock.Refresh(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}

		lg := zctx.From(r.base).With(zap.String("register", registerID))
		if !errors.Is(err, checkout.ErrRegisterBusy) {
			lg.Warn("Refresh register lock", zap.Error(err))
			continue
		}
		lg.Error("Register lock lost, dropping session",
			zap.String("state", string(s.orch.State())))
		r.mu.Lock()
		if r.sessions[registerID] == s {
			delete(r.sessions, registerID)
		}
		r.mu.Unlock()
		s.stop()
		return
	}
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(_ context.Context, registerID string) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[registerID]; ok {
		return nil, checkout.ErrRegisterBusy
	}
	l.held[registerID] = struct{}{}
	return &localLock{owner: l, id: registerID}, nil
}

type localLock struct {
	owner *LocalLocker
	id    string
	once  sync.Once
}

func (l *localLock) Refresh(context.Context) error { return nil }

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.id)
		l.owner.mu.Unlock()
	})
	return nil
}
