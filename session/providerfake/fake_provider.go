package providerfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-inventory-client/session"
)

var _ session.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory session.Provider with programmable failures.
type FakeProvider struct {
	lock       sync.Mutex
	current    *session.Session
	getErr     error
	signOutErr error
	getCalls   int
	signOuts   int
	listeners  session.Listeners
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// SetSession replaces the current session without emitting an event.
func (f *FakeProvider) SetSession(s *session.Session) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.current = s
}

// SetToken is shorthand for a staff session carrying token.
func (f *FakeProvider) SetToken(token string) {
	f.SetSession(&session.Session{
		UserID:      "user-1",
		Email:       "staff@example.com",
		Role:        session.RoleStaff,
		AccessToken: token,
	})
}

func (f *FakeProvider) SetGetError(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.getErr = err
}

func (f *FakeProvider) SetSignOutError(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.signOutErr = err
}

// Emit pushes a session-change event to subscribers, updating the current session.
func (f *FakeProvider) Emit(event session.Event, s *session.Session) {
	f.SetSession(s)
	f.listeners.Emit(event, s)
}

func (f *FakeProvider) GetSession(ctx context.Context) (*session.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.getCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.current == nil {
		return nil, nil
	}
	copied := *f.current
	return &copied, nil
}

func (f *FakeProvider) OnSessionChange(listener session.Listener) func() {
	return f.listeners.Add(listener)
}

func (f *FakeProvider) SignOut(ctx context.Context) error {
	f.lock.Lock()
	f.signOuts++
	err := f.signOutErr
	if err == nil {
		f.current = nil
	}
	f.lock.Unlock()

	if err != nil {
		return err
	}
	f.listeners.Emit(session.EventSignedOut, nil)
	return nil
}

func (f *FakeProvider) GetSessionCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.getCalls
}

func (f *FakeProvider) SignOutCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.signOuts
}

func (f *FakeProvider) Subscribers() int {
	return f.listeners.Len()
}
