package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
)

var (
	ErrPersonNotFound = errors.New("person not found")
	ErrChoreNotFound  = errors.New("chore not found")
)

const (
	settingAllCompleted = "snapshot_all_completed"
	settingPeopleDone   = "snapshot_people_done"
	settingEvaluatedAt  = "snapshot_evaluated_at"
)

// CommandResult describes the effect of one command. Events holds everything
// emitted while handling it, including transitions that were due by time alone.
type CommandResult struct {
	Changed  bool           `json:"changed"`
	Instance *InstanceView  `json:"instance,omitempty"`
	Events   []models.Event `json:"-"`
}

// ChoreService owns the catalog, the instance store and the engine. A single
// mutex serializes ticks and commands. A command is accepted once its
// definition or log entry is stored; its evaluation follows under the same lock.
type ChoreService struct {
	mutex   sync.Mutex
	catalog *Catalog
	store   *InstanceStore
	engine  *StatusEngine
	tracker *CompletionTracker

	personRepo   repository.PersonRepository
	choreRepo    repository.ChoreRepository
	instanceRepo repository.InstanceRepository
	logRepo      repository.CompletionLogRepository
	outboxRepo   repository.OutboxRepository
	settingsRepo repository.SettingsRepository

	clock            func() time.Time
	notify           chan struct{}
	persistedVersion uint64
}

func NewChoreService(
	personRepo repository.PersonRepository,
	choreRepo repository.ChoreRepository,
	instanceRepo repository.InstanceRepository,
	logRepo repository.CompletionLogRepository,
	outboxRepo repository.OutboxRepository,
	settingsRepo repository.SettingsRepository,
	location *time.Location,
) *ChoreService {
	catalog := NewCatalog()
	store := NewInstanceStore()
	return &ChoreService{
		catalog:      catalog,
		store:        store,
		engine:       NewStatusEngine(catalog, store, location),
		tracker:      NewCompletionTracker(catalog, store),
		personRepo:   personRepo,
		choreRepo:    choreRepo,
		instanceRepo: instanceRepo,
		logRepo:      logRepo,
		outboxRepo:   outboxRepo,
		settingsRepo: settingsRepo,
		clock:        time.Now,
		notify:       make(chan struct{}, 1),
	}
}

// SetClock replaces the time source.
func (service *ChoreService) SetClock(clock func() time.Time) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	service.clock = clock
}

// Notifications receives a signal whenever new events reach the outbox.
func (service *ChoreService) Notifications() <-chan struct{} {
	return service.notify
}

func (service *ChoreService) Location() *time.Location {
	return service.engine.Location()
}

// Load restores definitions, instances and the last snapshot from storage.
func (service *ChoreService) Load(ctx context.Context) error {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	people, err := service.personRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("loading people: %w", err)
	}
	for _, person := range people {
		service.catalog.putPerson(person)
	}

	chores, err := service.choreRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("loading chores: %w", err)
	}
	for _, chore := range chores {
		service.catalog.putChore(chore)
	}

	stored, err := service.instanceRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("loading instances: %w", err)
	}
	snapshot := newSnapshot()
	instances := make([]models.ChoreInstance, 0, len(stored))
	for _, entry := range stored {
		instances = append(instances, entry.Instance)
		snapshot.Statuses[entry.Instance.Key] = entry.Status
	}
	service.store.Restore(instances)
	service.persistedVersion = service.store.Version()

	allCompleted, err := service.setting(ctx, settingAllCompleted)
	if err != nil {
		return err
	}
	snapshot.AllCompleted = allCompleted == "true"

	peopleDone, err := service.setting(ctx, settingPeopleDone)
	if err != nil {
		return err
	}
	for _, personID := range strings.Split(peopleDone, ",") {
		if personID != "" {
			snapshot.PeopleDone[personID] = true
		}
	}
	service.engine.Restore(snapshot)

	evaluatedAt, err := service.setting(ctx, settingEvaluatedAt)
	if err != nil {
		return err
	}
	if evaluatedAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, evaluatedAt); err == nil {
			service.engine.lastEvaluated = at.In(service.engine.Location())
		}
	}

	slog.Info("loaded chore state",
		"people", len(people), "chores", len(chores), "instances", len(instances))
	return nil
}

// ApplyHousehold upserts configured people and adds configured chores that
// do not exist yet. Chores already present keep their stored definition.
func (service *ChoreService) ApplyHousehold(ctx context.Context, people []models.Person, chores []ChoreInput) error {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	for _, person := range people {
		if _, err := service.putPerson(ctx, person); err != nil {
			return fmt.Errorf("applying person %q: %w", person.ID, err)
		}
	}

	now := service.clock()
	for _, input := range chores {
		id := NormalizeID(input.ID)
		if id == "" {
			id = NormalizeID(input.Name)
		}
		if _, exists := service.catalog.Chore(id); exists {
			continue
		}
		input.ID = id
		chore, err := service.addChore(ctx, input, now)
		if err != nil {
			return fmt.Errorf("applying chore %q: %w", input.Name, err)
		}
		slog.Info("added chore from household file", "chore", chore.ID)
	}
	return nil
}

// Tick evaluates the engine at the current time.
func (service *ChoreService) Tick(ctx context.Context) (Evaluation, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	return service.evaluate(ctx)
}

// RunTicker calls Tick every interval until ctx is done.
func (service *ChoreService) RunTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := service.Tick(ctx); err != nil {
			slog.Error("evaluating chores", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (service *ChoreService) CompleteChore(ctx context.Context, instanceID string, personID string) (CommandResult, error) {
	return service.setCompleted(ctx, instanceID, personID, true)
}

func (service *ChoreService) ResetChore(ctx context.Context, instanceID string, personID string) (CommandResult, error) {
	return service.setCompleted(ctx, instanceID, personID, false)
}

func (service *ChoreService) setCompleted(ctx context.Context, instanceID string, personID string, completed bool) (CommandResult, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	before, err := service.evaluate(ctx)
	if err != nil {
		return CommandResult{}, err
	}

	key, _ := models.ParseInstanceKey(instanceID)
	var previous models.Completion
	var existed bool
	if instance, ok := service.store.Get(key); ok {
		previous, existed = instance.Completions[personID]
	}

	var entry *models.CompletionLogEntry
	if completed {
		entry, err = service.tracker.Complete(instanceID, personID, service.clock())
	} else {
		entry, err = service.tracker.Reset(instanceID, personID, service.clock())
	}
	if err != nil {
		return CommandResult{}, err
	}

	result := CommandResult{Changed: entry != nil, Events: before.Events}
	if entry != nil {
		if _, err := service.logRepo.Append(ctx, *entry); err != nil {
			service.store.restoreCompletion(key, personID, previous, existed)
			return CommandResult{}, err
		}
		result.Events = append(result.Events, service.settle(ctx).Events...)
	}

	if instance, ok := service.store.Get(key); ok {
		view := service.views().instance(instance)
		result.Instance = &view
	}
	return result, nil
}

func (service *ChoreService) AddChore(ctx context.Context, input ChoreInput) (ChoreView, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	chore, err := service.addChore(ctx, input, service.clock())
	if err != nil {
		return ChoreView{}, err
	}
	slog.Info("added chore", "chore", chore.ID, "period", chore.TimePeriod, "recurrence", chore.Recurrence.Type)

	service.settle(ctx)
	return service.views().chore(chore), nil
}

func (service *ChoreService) addChore(ctx context.Context, input ChoreInput, now time.Time) (models.Chore, error) {
	chore, err := service.tracker.AddChore(input, now)
	if err != nil {
		return models.Chore{}, err
	}
	if err := service.choreRepo.Upsert(ctx, chore); err != nil {
		service.tracker.RemoveChore(chore.ID)
		return models.Chore{}, err
	}
	return chore, nil
}

// RemoveChore deletes a chore and its instances. Unknown ids are a no-op.
func (service *ChoreService) RemoveChore(ctx context.Context, choreID string) error {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	if err := service.choreRepo.Delete(ctx, choreID); err != nil {
		return err
	}
	removed := service.tracker.RemoveChore(choreID)
	slog.Info("removed chore", "chore", choreID, "instances", removed)

	service.settle(ctx)
	return nil
}

func (service *ChoreService) PutPerson(ctx context.Context, person models.Person) (models.Person, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	saved, err := service.putPerson(ctx, person)
	if err != nil {
		return models.Person{}, err
	}
	service.settle(ctx)
	return saved, nil
}

func (service *ChoreService) putPerson(ctx context.Context, person models.Person) (models.Person, error) {
	previous, existed := service.catalog.Person(NormalizeID(person.ID))
	saved, err := service.tracker.PutPerson(person)
	if err != nil {
		return models.Person{}, err
	}
	if err := service.personRepo.Upsert(ctx, saved); err != nil {
		if existed {
			service.catalog.putPerson(previous)
		} else {
			service.tracker.RemovePerson(saved.ID)
		}
		return models.Person{}, err
	}
	return saved, nil
}

// RemovePerson deletes a person. Chores keep the id in their assignment and
// treat it as satisfied from then on.
func (service *ChoreService) RemovePerson(ctx context.Context, personID string) error {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	if _, ok := service.catalog.Person(personID); !ok {
		return fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	}
	if err := service.personRepo.Delete(ctx, personID); err != nil {
		return err
	}
	service.tracker.RemovePerson(personID)
	slog.Info("removed person", "person", personID)

	service.settle(ctx)
	return nil
}

func (service *ChoreService) Summary() Summary {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	return service.views().summary()
}

func (service *ChoreService) People() []PersonView {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	builder := service.views()
	people := service.catalog.People()
	views := make([]PersonView, 0, len(people))
	for _, person := range people {
		views = append(views, builder.person(person))
	}
	return views
}

func (service *ChoreService) Person(personID string) (PersonView, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	person, ok := service.catalog.Person(personID)
	if !ok {
		return PersonView{}, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	}
	return service.views().person(person), nil
}

func (service *ChoreService) Chores() []ChoreView {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	builder := service.views()
	chores := service.catalog.Chores()
	views := make([]ChoreView, 0, len(chores))
	for _, chore := range chores {
		views = append(views, builder.chore(chore))
	}
	return views
}

func (service *ChoreService) Chore(choreID string) (ChoreView, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	chore, ok := service.catalog.Chore(choreID)
	if !ok {
		return ChoreView{}, fmt.Errorf("%w: %s", ErrChoreNotFound, choreID)
	}
	return service.views().chore(chore), nil
}

func (service *ChoreService) Instances() []InstanceView {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	builder := service.views()
	instances := service.store.All()
	views := make([]InstanceView, 0, len(instances))
	for _, instance := range instances {
		views = append(views, builder.instance(instance))
	}
	return views
}

func (service *ChoreService) Instance(instanceID string) (InstanceView, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	key, err := models.ParseInstanceKey(instanceID)
	if err != nil {
		return InstanceView{}, fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
	}
	instance, ok := service.store.Get(key)
	if !ok {
		return InstanceView{}, fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
	}
	return service.views().instance(instance), nil
}

// CompletionLog returns the most recent complete and reset commands.
func (service *ChoreService) CompletionLog(ctx context.Context, limit int) ([]models.CompletionLogEntry, error) {
	entries, err := service.logRepo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading completion log: %w", err)
	}
	return entries, nil
}

// InstanceLog returns the complete and reset commands applied to one instance.
func (service *ChoreService) InstanceLog(ctx context.Context, instanceID string) ([]models.CompletionLogEntry, error) {
	entries, err := service.logRepo.FindByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("loading log for %s: %w", instanceID, err)
	}
	return entries, nil
}

func (service *ChoreService) views() viewBuilder {
	return newViewBuilder(service.catalog, service.store, service.engine, service.clock())
}

// evaluate prepares an evaluation, writes its events to the outbox and
// persists its state, and only then commits it. A failed pass leaves the
// engine where it was, so the next pass reports the same transitions.
func (service *ChoreService) evaluate(ctx context.Context) (Evaluation, error) {
	evaluation := service.engine.Prepare(service.clock())
	if err := service.enqueue(ctx, evaluation.Events); err != nil {
		return evaluation, err
	}
	if evaluation.Changed || service.store.Version() != service.persistedVersion {
		if err := service.persist(ctx, evaluation); err != nil {
			return evaluation, err
		}
	}
	service.engine.Commit(evaluation)
	return evaluation, nil
}

// settle evaluates after a command has been stored. A failure only defers
// the command's events to the next tick.
func (service *ChoreService) settle(ctx context.Context) Evaluation {
	evaluation, err := service.evaluate(ctx)
	if err != nil {
		slog.Error("evaluation after command deferred to next tick", "error", err)
		return Evaluation{At: evaluation.At}
	}
	return evaluation
}

func (service *ChoreService) persist(ctx context.Context, evaluation Evaluation) error {
	snapshot := evaluation.snapshot
	instances := service.store.All()
	stored := make([]repository.StoredInstance, 0, len(instances))
	for _, instance := range instances {
		stored = append(stored, repository.StoredInstance{
			Instance: *instance,
			Status:   snapshot.Status(instance.Key),
		})
	}
	if err := service.instanceRepo.ReplaceAll(ctx, stored); err != nil {
		return fmt.Errorf("persisting instances: %w", err)
	}

	var peopleDone []string
	for _, person := range service.catalog.People() {
		if snapshot.PeopleDone[person.ID] {
			peopleDone = append(peopleDone, person.ID)
		}
	}
	err := service.settingsRepo.SetMany(ctx, map[string]string{
		settingAllCompleted: fmt.Sprint(snapshot.AllCompleted),
		settingPeopleDone:   strings.Join(peopleDone, ","),
		settingEvaluatedAt:  evaluation.At.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	service.persistedVersion = service.store.Version()
	return nil
}

func (service *ChoreService) enqueue(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	outbox := make([]models.OutboxEvent, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event.Payload())
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", event.Type, err)
		}
		outbox = append(outbox, models.OutboxEvent{
			Type:       event.Type,
			Payload:    payload,
			Automation: event.Automation,
			OccurredAt: event.OccurredAt,
		})
		slog.Info("emitting event", "type", event.Type)
	}
	if err := service.outboxRepo.Append(ctx, outbox); err != nil {
		return fmt.Errorf("writing events to outbox: %w", err)
	}

	select {
	case service.notify <- struct{}{}:
	default:
	}
	return nil
}

func (service *ChoreService) setting(ctx context.Context, key string) (string, error) {
	value, err := service.settingsRepo.Get(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", key, err)
	}
	return value, nil
}
