package task

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

// memTaskRepo is an in-memory Repository with the same ordering and
// absence semantics as the Postgres repo.
type memTaskRepo struct {
	mu       sync.Mutex
	tasks    map[string]entity.Task
	clock    time.Time
	err      error
	findOnes int
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{
		tasks: make(map[string]entity.Task),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memTaskRepo) Create(ctx context.Context, t *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("duplicate id %s", t.ID)
	}
	r.clock = r.clock.Add(time.Second)
	t.CreatedAt = r.clock
	r.tasks[t.ID] = *t
	return nil
}

func (r *memTaskRepo) Save(ctx context.Context, t *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if prev, ok := r.tasks[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
		t.OwnerID = prev.OwnerID
	}
	r.tasks[t.ID] = *t
	return nil
}

func matches(t entity.Task, f entity.Filter) bool {
	switch {
	case f.ID != "" && t.ID != f.ID:
		return false
	case f.OwnerID != "" && t.OwnerID != f.OwnerID:
		return false
	case f.Title != "" && t.Title != f.Title:
		return false
	case f.Priority != "" && t.Priority != f.Priority:
		return false
	case f.Completed != nil && t.Completed != *f.Completed:
		return false
	}
	return true
}

func (r *memTaskRepo) sorted(f entity.Filter) []entity.Task {
	var out []entity.Task
	for _, t := range r.tasks {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memTaskRepo) FindOne(ctx context.Context, f entity.Filter) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findOnes++
	if r.err != nil {
		return nil, r.err
	}
	all := r.sorted(f)
	if len(all) == 0 {
		return nil, sql.ErrNoRows
	}
	t := all[0]
	return &t, nil
}

func (r *memTaskRepo) FindAndCount(ctx context.Context, f entity.Filter, skip, take int) ([]entity.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, 0, r.err
	}
	all := r.sorted(f)
	out := []entity.Task{}
	for i := skip; i < len(all) && i < skip+take; i++ {
		out = append(out, all[i])
	}
	return out, len(all), nil
}

func (r *memTaskRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.tasks, id)
	return nil
}

func (r *memTaskRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

type fakeSource struct {
	records []ExternalTask
	err     error
	calls   int
}

func (s *fakeSource) Fetch(ctx context.Context) ([]ExternalTask, error) {
	s.calls++
	return s.records, s.err
}

type recordedEvent struct {
	name string
	task entity.Task
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBus) Publish(ctx context.Context, name string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := payload.(*entity.Task)
	b.events = append(b.events, recordedEvent{name: name, task: *t})
}

func (b *recordingBus) Subscribe(name string, h event.Handler) {}
