package notifications_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/queue"
)

// noon on a Monday, outside the default quiet hours
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// taskRecorder is a queue.EnqueuerRepository that keeps every created task
// and can be told to fail.
type taskRecorder struct {
	mu    sync.Mutex
	tasks []*queue.Task
	fail  func(*queue.Task) error
}

func (r *taskRecorder) CreateTask(ctx context.Context, task *queue.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail != nil {
		if err := r.fail(task); err != nil {
			return err
		}
	}
	for _, t := range r.tasks {
		if t.ID == task.ID {
			return queue.ErrDuplicateTask
		}
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *taskRecorder) Tasks() []*queue.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*queue.Task(nil), r.tasks...)
}

func (r *taskRecorder) ForQueue(name string) []*queue.Task {
	var out []*queue.Task
	for _, t := range r.Tasks() {
		if t.Queue == name {
			out = append(out, t)
		}
	}
	return out
}

type testEnv struct {
	store      *notifications.MemoryStorage
	dir        *notifications.MemoryDirectory
	tasks      *taskRecorder
	gate       *notifications.Gate
	agg        *notifications.Aggregator
	dispatcher *notifications.Dispatcher
	manager    *notifications.Manager
	clock      *clock
}

func newTestEnv(t *testing.T, opts ...notifications.DispatcherOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store: notifications.NewMemoryStorage(),
		dir:   notifications.NewMemoryDirectory(),
		tasks: &taskRecorder{},
		clock: newClock(testNow),
	}
	env.gate = notifications.NewGate(env.store, notifications.WithGateClock(env.clock.Now))
	env.agg = notifications.NewAggregator(env.store)
	require.NoError(t, env.agg.Start(context.Background()))
	t.Cleanup(func() { _ = env.agg.Stop() })

	enq, err := queue.NewEnqueuer(env.tasks)
	require.NoError(t, err)

	opts = append([]notifications.DispatcherOption{notifications.WithClock(env.clock.Now)}, opts...)
	env.dispatcher, err = notifications.NewDispatcher(env.store, notifications.NewResolver(env.dir), env.gate, enq, env.agg, opts...)
	require.NoError(t, err)

	env.manager = notifications.NewManager(env.store, env.store, env.gate, notifications.WithManagerClock(env.clock.Now))
	return env
}

func (e *testEnv) addUsers(users ...notifications.User) {
	for _, u := range users {
		e.dir.Put(u)
	}
}

func (e *testEnv) record(t *testing.T, id string) *notifications.Record {
	t.Helper()
	rec, err := e.store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func activeUser(id string, opts ...func(*notifications.User)) notifications.User {
	u := notifications.User{
		ID:     id,
		Email:  id + "@shop.test",
		Mobile: "+15550000001",
		Active: true,
	}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func inBranch(branchID string) func(*notifications.User) {
	return func(u *notifications.User) { u.BranchIDs = append(u.BranchIDs, branchID) }
}

func withRoles(roles ...string) func(*notifications.User) {
	return func(u *notifications.User) { u.Roles = append(u.Roles, roles...) }
}

func numberedUsers(prefix string, n int, opts ...func(*notifications.User)) []notifications.User {
	users := make([]notifications.User, n)
	for i := range users {
		users[i] = activeUser(fmt.Sprintf("%s-%03d", prefix, i), opts...)
	}
	return users
}

func billPayload(spec notifications.RecipientSpec, channels ...notifications.Channel) notifications.Payload {
	return notifications.Payload{
		Type:         notifications.TypeBillCreated,
		Channels:     channels,
		Priority:     notifications.PriorityHigh,
		Recipients:   spec,
		Subject:      "Your bill",
		TemplateID:   "bill-created",
		TemplateData: map[string]any{"bill_no": "B-100"},
	}
}

// failingStore makes CreateRecord fail for chosen recipients.
type failingStore struct {
	*notifications.MemoryStorage
	failFor func(*notifications.Record) bool
}

var errStoreDown = errors.New("store down")

func (s *failingStore) CreateRecord(ctx context.Context, rec *notifications.Record) error {
	if s.failFor(rec) {
		return errStoreDown
	}
	return s.MemoryStorage.CreateRecord(ctx, rec)
}

// flakyStore fails preference reads while prefsDown is set, and fails the
// next failUpdates[ch] entry updates of channel ch.
type flakyStore struct {
	*notifications.MemoryStorage
	prefsDown atomic.Bool

	mu          sync.Mutex
	failUpdates map[notifications.Channel]int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryStorage: notifications.NewMemoryStorage(),
		failUpdates:   map[notifications.Channel]int{},
	}
}

func (s *flakyStore) failNextUpdate(ch notifications.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates[ch]++
}

func (s *flakyStore) GetPreference(ctx context.Context, userID string) (*notifications.Preference, error) {
	if s.prefsDown.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStorage.GetPreference(ctx, userID)
}

func (s *flakyStore) UpdateChannel(ctx context.Context, id string, from notifications.Status, entry notifications.ChannelEntry) (*notifications.Record, error) {
	s.mu.Lock()
	fail := s.failUpdates[entry.Channel] > 0
	if fail {
		s.failUpdates[entry.Channel]--
	}
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.MemoryStorage.UpdateChannel(ctx, id, from, entry)
}
