package outbox

import (
	"context"
	"sort"
	"testing"
	"time"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
	"github.com/ashgrove-games/talespinner/internal/guildsync/storage"
)

type fakeOutbox struct {
	records map[string]*storage.OutboxRecord
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{records: make(map[string]*storage.OutboxRecord)}
}

func (f *fakeOutbox) Enqueue(ctx context.Context, record storage.OutboxRecord) error {
	f.records[record.ID] = &record
	return nil
}

func (f *fakeOutbox) ListDue(ctx context.Context, target string, now time.Time, limit int) ([]storage.OutboxRecord, error) {
	var out []storage.OutboxRecord
	for _, record := range f.records {
		if record.Target == target && record.Status == storage.StatusPending && !record.NextAttemptAt.After(now) {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOutbox) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	record := f.records[id]
	record.Status = storage.StatusProcessed
	record.ProcessedAt = &at
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	record := f.records[id]
	record.AttemptCount = attemptCount
	record.LastError = lastError
	record.NextAttemptAt = nextAttemptAt
	return nil
}

func (f *fakeOutbox) MarkDead(ctx context.Context, id string, lastError string, at time.Time) error {
	record := f.records[id]
	record.Status = storage.StatusDead
	record.LastError = lastError
	return nil
}

func (f *fakeOutbox) Requeue(ctx context.Context, id string, at time.Time) error {
	record := f.records[id]
	record.Status = storage.StatusPending
	record.AttemptCount = 0
	record.NextAttemptAt = at
	return nil
}

func (f *fakeOutbox) ListByStatus(ctx context.Context, status string, limit int) ([]storage.OutboxRecord, error) {
	var out []storage.OutboxRecord
	for _, record := range f.records {
		if record.Status == status {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOutbox) Summary(ctx context.Context) (storage.OutboxSummary, error) {
	var summary storage.OutboxSummary
	for _, record := range f.records {
		switch record.Status {
		case storage.StatusPending:
			summary.PendingCount++
		case storage.StatusProcessed:
			summary.ProcessedCount++
		case storage.StatusDead:
			summary.DeadCount++
		}
	}
	return summary, nil
}

type fakeEntities struct {
	campaigns  map[string]domain.Campaign
	books      map[string]domain.Book
	characters map[string]domain.Character
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		campaigns:  make(map[string]domain.Campaign),
		books:      make(map[string]domain.Book),
		characters: make(map[string]domain.Character),
	}
}

func (s *fakeEntities) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	campaign, ok := s.campaigns[id]
	if !ok {
		return domain.Campaign{}, apperrors.New(apperrors.CodeNotFound, "campaign not found")
	}
	return campaign, nil
}

func (s *fakeEntities) PutCampaign(ctx context.Context, campaign domain.Campaign) error {
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *fakeEntities) ListCampaignsByGuild(ctx context.Context, guildID string) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, campaign := range s.campaigns {
		if campaign.GuildID == guildID {
			out = append(out, campaign)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeEntities) GetBook(ctx context.Context, id string) (domain.Book, error) {
	book, ok := s.books[id]
	if !ok {
		return domain.Book{}, apperrors.New(apperrors.CodeNotFound, "book not found")
	}
	return book, nil
}

func (s *fakeEntities) PutBook(ctx context.Context, book domain.Book) error {
	s.books[book.ID] = book
	return nil
}

func (s *fakeEntities) ListBooks(ctx context.Context, campaignID string) ([]domain.Book, error) {
	return nil, nil
}

func (s *fakeEntities) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	character, ok := s.characters[id]
	if !ok {
		return domain.Character{}, apperrors.New(apperrors.CodeNotFound, "character not found")
	}
	return character, nil
}

func (s *fakeEntities) PutCharacter(ctx context.Context, character domain.Character) error {
	s.characters[character.ID] = character
	return nil
}

func (s *fakeEntities) ListPlayerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return nil, nil
}

func (s *fakeEntities) ListStorytellerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return nil, nil
}

// spyOrchestrator records dispatched operations and fails on demand.
type spyOrchestrator struct {
	calls []string
	fail  error
}

func (s *spyOrchestrator) record(op string) error {
	s.calls = append(s.calls, op)
	return s.fail
}

func (s *spyOrchestrator) ResyncCampaign(ctx context.Context, campaign domain.Campaign) error {
	return s.record("resync:" + campaign.ID)
}

func (s *spyOrchestrator) ConfirmBookChannel(ctx context.Context, book domain.Book, campaign *domain.Campaign) error {
	return s.record("confirm-book:" + book.ID)
}

func (s *spyOrchestrator) ConfirmCharacterChannel(ctx context.Context, character domain.Character, campaign *domain.Campaign) error {
	return s.record("confirm-character:" + character.ID)
}

func (s *spyOrchestrator) DeleteCampaignChannels(ctx context.Context, campaign domain.Campaign) error {
	return s.record("delete-campaign:" + campaign.ID)
}

func (s *spyOrchestrator) DeleteBookChannel(ctx context.Context, book domain.Book) error {
	return s.record("delete-book:" + book.ID)
}

func (s *spyOrchestrator) DeleteCharacterChannel(ctx context.Context, character domain.Character) error {
	return s.record("delete-character:" + character.ID)
}

func newTestConsumer(outbox *fakeOutbox, entities *fakeEntities, orch *spyOrchestrator) (*Consumer, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	consumer := NewConsumer(outbox, entities, orch, "discord")
	consumer.clock = func() time.Time { return now }
	return consumer, &now
}

func pendingRecord(id, objectType, objectID, updateType string, createdAt time.Time) storage.OutboxRecord {
	return storage.OutboxRecord{
		ID:         id,
		Target:     "discord",
		ObjectType: objectType,
		ObjectID:   objectID,
		GuildID:    "g1",
		UpdateType: updateType,
		Status:     storage.StatusPending,
		CreatedAt:  createdAt,
	}
}

func TestDrainDispatchesInArrivalOrder(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{}
	consumer, now := newTestConsumer(outbox, entities, orch)

	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	entities.books["b1"] = domain.Book{ID: "b1", CampaignID: "c1", Number: 1, Name: "Arrival"}
	entities.characters["ch1"] = domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", Alive: true}

	outbox.Enqueue(context.Background(), pendingRecord("r1", storage.ObjectTypeCampaign, "c1", storage.UpdateTypeCreate, now.Add(-3*time.Minute)))
	outbox.Enqueue(context.Background(), pendingRecord("r2", storage.ObjectTypeBook, "b1", storage.UpdateTypeUpdate, now.Add(-2*time.Minute)))
	outbox.Enqueue(context.Background(), pendingRecord("r3", storage.ObjectTypeCharacter, "ch1", storage.UpdateTypeCreate, now.Add(-time.Minute)))

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	want := []string{"resync:c1", "confirm-book:b1", "confirm-character:ch1"}
	if len(orch.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", orch.calls, want)
	}
	for i, call := range want {
		if orch.calls[i] != call {
			t.Fatalf("call %d = %q, want %q", i, orch.calls[i], call)
		}
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		if !outbox.records[id].Processed() {
			t.Fatalf("record %s not processed", id)
		}
	}
}

func TestDrainDispatchesDeletes(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{}
	consumer, now := newTestConsumer(outbox, entities, orch)

	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	outbox.Enqueue(context.Background(), pendingRecord("r1", storage.ObjectTypeCampaign, "c1", storage.UpdateTypeDelete, *now))

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(orch.calls) != 1 || orch.calls[0] != "delete-campaign:c1" {
		t.Fatalf("calls = %v", orch.calls)
	}
}

func TestDrainResyncsGuildForDeletedEntity(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{}
	consumer, now := newTestConsumer(outbox, entities, orch)

	// The web path deleted the character row before the drain ran. The
	// orphaned channel is only reachable through a full resync sweep.
	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	outbox.Enqueue(context.Background(), pendingRecord("r1", storage.ObjectTypeCharacter, "gone", storage.UpdateTypeDelete, *now))

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(orch.calls) != 1 || orch.calls[0] != "resync:c1" {
		t.Fatalf("calls = %v, want guild resync", orch.calls)
	}
	if !outbox.records["r1"].Processed() {
		t.Fatal("record for deleted entity not marked processed")
	}
}

func TestDrainBookDeleteResyncsOwningCampaign(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{}
	consumer, now := newTestConsumer(outbox, entities, orch)

	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	entities.books["b1"] = domain.Book{ID: "b1", CampaignID: "c1", Number: 1, Name: "Arrival", ChannelID: "chan1"}
	outbox.Enqueue(context.Background(), pendingRecord("r1", storage.ObjectTypeBook, "b1", storage.UpdateTypeDelete, *now))

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	want := []string{"delete-book:b1", "resync:c1"}
	if len(orch.calls) != len(want) || orch.calls[0] != want[0] || orch.calls[1] != want[1] {
		t.Fatalf("calls = %v, want %v", orch.calls, want)
	}
}

func TestDrainSchedulesRetryWithBackoff(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{fail: apperrors.New(apperrors.CodeProviderUnavailable, "discord is down")}
	consumer, now := newTestConsumer(outbox, entities, orch)

	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	outbox.Enqueue(context.Background(), pendingRecord("r1", storage.ObjectTypeCampaign, "c1", storage.UpdateTypeUpdate, *now))

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	record := outbox.records["r1"]
	if record.Status != storage.StatusPending {
		t.Fatalf("record status = %q, want pending", record.Status)
	}
	if record.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", record.AttemptCount)
	}
	if want := now.Add(consumer.RetryBackoff); !record.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", record.NextAttemptAt, want)
	}
	if record.LastError == "" {
		t.Fatal("last error not recorded")
	}
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{fail: apperrors.New(apperrors.CodeProviderUnavailable, "discord is down")}
	consumer, now := newTestConsumer(outbox, entities, orch)
	consumer.MaxAttempts = 3

	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	record := pendingRecord("r1", storage.ObjectTypeCampaign, "c1", storage.UpdateTypeUpdate, *now)
	record.AttemptCount = 2
	outbox.Enqueue(context.Background(), record)

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := outbox.records["r1"].Status; got != storage.StatusDead {
		t.Fatalf("record status = %q, want dead", got)
	}
}

func TestDrainDeadLettersUnknownObjectType(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{}
	consumer, now := newTestConsumer(outbox, entities, orch)
	consumer.MaxAttempts = 1

	outbox.Enqueue(context.Background(), pendingRecord("r1", "spaceship", "x1", storage.UpdateTypeCreate, *now))

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := outbox.records["r1"].Status; got != storage.StatusDead {
		t.Fatalf("record status = %q, want dead", got)
	}
	if len(orch.calls) != 0 {
		t.Fatalf("calls = %v, want none", orch.calls)
	}
}

func TestDrainHonorsNextAttemptTime(t *testing.T) {
	outbox := newFakeOutbox()
	entities := newFakeEntities()
	orch := &spyOrchestrator{}
	consumer, now := newTestConsumer(outbox, entities, orch)

	entities.campaigns["c1"] = domain.Campaign{ID: "c1", GuildID: "g1", Name: "Test"}
	record := pendingRecord("r1", storage.ObjectTypeCampaign, "c1", storage.UpdateTypeUpdate, *now)
	record.NextAttemptAt = now.Add(time.Hour)
	outbox.Enqueue(context.Background(), record)

	if err := consumer.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(orch.calls) != 0 {
		t.Fatalf("calls = %v, want none before next attempt time", orch.calls)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	consumer := &Consumer{RetryBackoff: 30 * time.Second, RetryMaxDelay: 4 * time.Minute}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 4 * time.Minute},
		{20, 4 * time.Minute},
	}
	for _, tt := range tests {
		if got := consumer.backoff(tt.attempts); got != tt.want {
			t.Fatalf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
