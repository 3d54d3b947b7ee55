package task

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

const (
	EventCreated   = "task.created"
	EventCompleted = "task.completed"

	defaultPage  = 1
	defaultLimit = 10
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrUnauthorized = errors.New("not allowed")
	ErrInvalidTask  = errors.New("invalid task")
)

// Repository is the persistence boundary; absence is sql.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, t *entity.Task) error
	Save(ctx context.Context, t *entity.Task) error
	FindOne(ctx context.Context, f entity.Filter) (*entity.Task, error)
	FindAndCount(ctx context.Context, f entity.Filter, skip, take int) ([]entity.Task, int, error)
	DeleteByID(ctx context.Context, id string) error
}

// ExternalTask is one record of the bulk import feed.
type ExternalTask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Source fetches the bulk import feed.
type Source interface {
	Fetch(ctx context.Context) ([]ExternalTask, error)
}

// CreateInput carries the client supplied fields of a new task.
type CreateInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    entity.Priority `json:"priority"`
}

// Patch merges present fields into an existing task.
type Patch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Priority    *entity.Priority `json:"priority"`
	Completed   *bool            `json:"completed"`
}

// Query holds the list filters as received; Page and Limit stay raw so the
// defaults apply to anything unparsable.
type Query struct {
	Priority  entity.Priority
	Completed *bool
	Page      string
	Limit     string
}

type Meta struct {
	Total       int `json:"total"`
	LastPage    int `json:"lastPage"`
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
}

type Page struct {
	Data []entity.Task `json:"data"`
	Meta Meta          `json:"meta"`
}

type PopulateResult struct {
	Created    int `json:"created"`
	Duplicated int `json:"duplicated"`
}

// Service implements task CRUD, listing and bulk import for one owner at a
// time. Admins only gain the right to delete foreign tasks.
type Service struct {
	repo   Repository
	source Source
	bus    event.Bus
	apiKey string
	logger *zap.SugaredLogger
	newID  func() string
}

func NewService(repo Repository, source Source, bus event.Bus, apiKey string, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		repo:   repo,
		source: source,
		bus:    bus,
		apiKey: apiKey,
		logger: logger,
		newID:  utilities.NewSnowflakeID,
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput, ownerID string) (*entity.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrInvalidTask
	}
	if in.Priority == "" {
		in.Priority = entity.PriorityLow
	}
	if !in.Priority.Valid() {
		return nil, ErrInvalidTask
	}
	t := &entity.Task{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		OwnerID:     ownerID,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, EventCreated, t)
	return t, nil
}

// BulkPopulate imports the external feed for ownerID, skipping titles the
// owner already has. Imported tasks do not publish events.
func (s *Service) BulkPopulate(ctx context.Context, ownerID, apiKey string) (*PopulateResult, error) {
	if apiKey == "" || s.apiKey == "" || !user.ConstantTimeCompare(apiKey, s.apiKey) {
		return nil, ErrUnauthorized
	}
	records, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	res := &PopulateResult{}
	for _, rec := range records {
		if strings.TrimSpace(rec.Title) == "" {
			s.logger.Warnw("skipping untitled external task", "owner_id", ownerID)
			continue
		}
		_, err := s.repo.FindOne(ctx, entity.Filter{Title: rec.Title, OwnerID: ownerID})
		if err == nil {
			res.Duplicated++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		t := &entity.Task{
			ID:        s.newID(),
			Title:     rec.Title,
			Priority:  entity.PriorityLow,
			Completed: rec.Completed,
			OwnerID:   ownerID,
		}
		if err := s.repo.Create(ctx, t); err != nil {
			return nil, err
		}
		res.Created++
	}
	s.logger.Infow("tasks populated", "owner_id", ownerID, "created", res.Created, "duplicated", res.Duplicated)
	return res, nil
}

func (s *Service) FindAll(ctx context.Context, ownerID string, q Query) (*Page, error) {
	page := parsePositive(q.Page, defaultPage)
	limit := parsePositive(q.Limit, defaultLimit)

	tasks, total, err := s.repo.FindAndCount(ctx, entity.Filter{
		OwnerID:   ownerID,
		Priority:  q.Priority,
		Completed: q.Completed,
	}, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []entity.Task{}
	}
	return &Page{
		Data: tasks,
		Meta: Meta{
			Total:       total,
			LastPage:    (total + limit - 1) / limit,
			CurrentPage: page,
			PerPage:     limit,
		},
	}, nil
}

// parsePositive reads the integer part of raw, so "2.5" is page 2.
func parsePositive(raw string, def int) int {
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// FindOne hides foreign tasks behind ErrNotFound.
func (s *Service) FindOne(ctx context.Context, id, ownerID string) (*entity.Task, error) {
	t, err := s.repo.FindOne(ctx, entity.Filter{ID: id, OwnerID: ownerID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, id, ownerID string, p Patch) (*entity.Task, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, ErrInvalidTask
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return nil, ErrInvalidTask
	}
	t, err := s.FindOne(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	wasCompleted := t.Completed
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, err
	}
	if p.Completed != nil && *p.Completed && !wasCompleted {
		s.publish(ctx, EventCompleted, t)
	}
	return t, nil
}

// Remove deletes the task if actor owns it or is an admin.
func (s *Service) Remove(ctx context.Context, id string, actor userentity.Identity) error {
	t, err := s.repo.FindOne(ctx, entity.Filter{ID: id})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !actor.IsAdmin() && t.OwnerID != actor.ID {
		return ErrUnauthorized
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("task removed", "task_id", id, "actor_id", actor.ID)
	return nil
}

func (s *Service) publish(ctx context.Context, name string, t *entity.Task) {
	if s.bus == nil {
		return
	}
	cp := *t
	s.bus.Publish(ctx, name, &cp)
}
