package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
	"github.com/ashgrove-games/talespinner/internal/guildsync/provider"
)

// fakeProvider is an in-memory guild that records every mutating call so
// tests can assert a pass produced no work.
type fakeProvider struct {
	nextID   int
	channels map[string]*provider.Channel

	creates   int
	edits     int
	deletes   int
	positions int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{channels: make(map[string]*provider.Channel)}
}

func (f *fakeProvider) mutations() int {
	return f.creates + f.edits + f.deletes + f.positions
}

func (f *fakeProvider) resetCounts() {
	f.creates, f.edits, f.deletes, f.positions = 0, 0, 0, 0
}

func (f *fakeProvider) seed(name, categoryID string) string {
	f.nextID++
	id := fmt.Sprintf("ch%d", f.nextID)
	f.channels[id] = &provider.Channel{ID: id, Name: name, CategoryID: categoryID, Position: len(f.channels)}
	return id
}

func (f *fakeProvider) CreateCategory(ctx context.Context, guildID, name string) (provider.Channel, error) {
	f.creates++
	id := f.seed(name, "")
	return *f.channels[id], nil
}

func (f *fakeProvider) EditCategory(ctx context.Context, channelID, name string) error {
	f.edits++
	channel, ok := f.channels[channelID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "channel not found")
	}
	channel.Name = name
	return nil
}

func (f *fakeProvider) GetChannel(ctx context.Context, guildID, channelID string) (provider.Channel, bool, error) {
	channel, ok := f.channels[channelID]
	if !ok {
		return provider.Channel{}, false, nil
	}
	return *channel, true, nil
}

func (f *fakeProvider) ChannelsInCategory(ctx context.Context, guildID, categoryID string) ([]provider.Channel, error) {
	var out []provider.Channel
	for _, channel := range f.channels {
		if channel.CategoryID == categoryID {
			out = append(out, *channel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeProvider) CreateTextChannel(ctx context.Context, guildID, categoryID, name, topic string, overwrites []domain.Overwrite) (provider.Channel, error) {
	f.creates++
	id := f.seed(name, categoryID)
	f.channels[id].Topic = topic
	f.channels[id].Overwrites = overwrites
	return *f.channels[id], nil
}

func (f *fakeProvider) EditTextChannel(ctx context.Context, guildID, channelID string, edit provider.ChannelEdit) error {
	f.edits++
	channel, ok := f.channels[channelID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "channel not found")
	}
	if edit.Name != nil {
		channel.Name = *edit.Name
	}
	if edit.Topic != nil {
		channel.Topic = *edit.Topic
	}
	if edit.CategoryID != nil {
		channel.CategoryID = *edit.CategoryID
	}
	if edit.Overwrites != nil {
		channel.Overwrites = edit.Overwrites
	}
	return nil
}

func (f *fakeProvider) SetPosition(ctx context.Context, guildID, channelID string, position int) error {
	f.positions++
	channel, ok := f.channels[channelID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "channel not found")
	}
	channel.Position = position
	return nil
}

func (f *fakeProvider) DeleteChannel(ctx context.Context, guildID, channelID string) error {
	f.deletes++
	if _, ok := f.channels[channelID]; !ok {
		return apperrors.New(apperrors.CodeNotFound, "channel not found")
	}
	delete(f.channels, channelID)
	return nil
}

// fakeStore is an in-memory entity store.
type fakeStore struct {
	campaigns  map[string]domain.Campaign
	books      map[string]domain.Book
	characters map[string]domain.Character
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:  make(map[string]domain.Campaign),
		books:      make(map[string]domain.Book),
		characters: make(map[string]domain.Character),
	}
}

func (s *fakeStore) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	campaign, ok := s.campaigns[id]
	if !ok {
		return domain.Campaign{}, apperrors.New(apperrors.CodeNotFound, "campaign not found")
	}
	return campaign, nil
}

func (s *fakeStore) PutCampaign(ctx context.Context, campaign domain.Campaign) error {
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *fakeStore) ListCampaignsByGuild(ctx context.Context, guildID string) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, campaign := range s.campaigns {
		if campaign.GuildID == guildID {
			out = append(out, campaign)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetBook(ctx context.Context, id string) (domain.Book, error) {
	book, ok := s.books[id]
	if !ok {
		return domain.Book{}, apperrors.New(apperrors.CodeNotFound, "book not found")
	}
	return book, nil
}

func (s *fakeStore) PutBook(ctx context.Context, book domain.Book) error {
	s.books[book.ID] = book
	return nil
}

func (s *fakeStore) ListBooks(ctx context.Context, campaignID string) ([]domain.Book, error) {
	var out []domain.Book
	for _, book := range s.books {
		if book.CampaignID == campaignID {
			out = append(out, book)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *fakeStore) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	character, ok := s.characters[id]
	if !ok {
		return domain.Character{}, apperrors.New(apperrors.CodeNotFound, "character not found")
	}
	return character, nil
}

func (s *fakeStore) PutCharacter(ctx context.Context, character domain.Character) error {
	s.characters[character.ID] = character
	return nil
}

func (s *fakeStore) listCharacters(campaignID string, storyteller bool) []domain.Character {
	var out []domain.Character
	for _, character := range s.characters {
		if character.CampaignID == campaignID && character.Storyteller == storyteller {
			out = append(out, character)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) ListPlayerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return s.listCharacters(campaignID, false), nil
}

func (s *fakeStore) ListStorytellerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return s.listCharacters(campaignID, true), nil
}

func newTestOrchestrator(store *fakeStore, p *fakeProvider) *Orchestrator {
	orch := NewOrchestrator(store, p, NewReconciler(p, rate.NewLimiter(rate.Inf, 1)))
	orch.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return orch
}
