package reconcile

import (
	"context"
	"testing"

	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
)

func seedCampaign(store *fakeStore) domain.Campaign {
	campaign := domain.Campaign{ID: "c1", GuildID: "g1", Name: "Dust and Echoes"}
	store.campaigns[campaign.ID] = campaign
	return campaign
}

func TestResyncCampaignCreatesFullTopology(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	store.books["b1"] = domain.Book{ID: "b1", CampaignID: "c1", Number: 1, Name: "Arrival"}
	store.characters["ch1"] = domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", OwnerUserID: "u1", Alive: true}
	store.characters["ch2"] = domain.Character{ID: "ch2", CampaignID: "c1", Name: "Mirek", Storyteller: true, Alive: true}

	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}

	updated := store.campaigns["c1"]
	if updated.CategoryChannelID == "" || updated.GeneralChannelID == "" || updated.StorytellerChannelID == "" {
		t.Fatalf("campaign channel ids not written back: %+v", updated)
	}
	if store.books["b1"].ChannelID == "" {
		t.Fatal("book channel id not written back")
	}
	if store.characters["ch1"].ChannelID == "" || store.characters["ch2"].ChannelID == "" {
		t.Fatal("character channel ids not written back")
	}

	names := make(map[string]bool)
	for _, channel := range p.channels {
		names[channel.Name] = true
	}
	for _, want := range []string{"📚-dust-and-echoes", "✨-general", "🔒-storyteller", "📖-01-arrival", "👤-alice", "🔒👤-mirek"} {
		if !names[want] {
			t.Fatalf("channel %q not created, have %v", want, names)
		}
	}
}

func TestResyncCampaignIsIdempotent(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	store.books["b1"] = domain.Book{ID: "b1", CampaignID: "c1", Number: 1, Name: "Arrival"}
	store.characters["ch1"] = domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", Alive: true}

	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("first ResyncCampaign() error = %v", err)
	}

	p.resetCounts()
	if err := orch.ResyncCampaign(context.Background(), store.campaigns["c1"]); err != nil {
		t.Fatalf("second ResyncCampaign() error = %v", err)
	}
	if p.mutations() != 0 {
		t.Fatalf("second pass mutated topology: creates=%d edits=%d deletes=%d positions=%d", p.creates, p.edits, p.deletes, p.positions)
	}
}

func TestResyncCampaignSweepsOrphans(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}

	catID := store.campaigns["c1"].CategoryChannelID
	orphanID := p.seed("👤-deleted-character", catID)
	handmadeID := p.seed("lore-dump", catID)

	if err := orch.ResyncCampaign(context.Background(), store.campaigns["c1"]); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}
	if _, ok := p.channels[orphanID]; ok {
		t.Fatal("orphaned managed channel survived resync")
	}
	if _, ok := p.channels[handmadeID]; !ok {
		t.Fatal("unmanaged channel deleted by resync")
	}
}

func TestResyncCampaignRenamesOnCharacterDeath(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	store.characters["ch1"] = domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", Alive: true}
	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}
	aliveID := store.characters["ch1"].ChannelID

	dead := store.characters["ch1"]
	dead.Alive = false
	store.characters["ch1"] = dead

	if err := orch.ResyncCampaign(context.Background(), store.campaigns["c1"]); err != nil {
		t.Fatalf("ResyncCampaign() after death error = %v", err)
	}
	if got := store.characters["ch1"].ChannelID; got != aliveID {
		t.Fatalf("channel id changed on death: %s -> %s", aliveID, got)
	}
	if got := p.channels[aliveID].Name; got != "💀-alice" {
		t.Fatalf("dead character channel name = %q, want 💀-alice", got)
	}
}

func TestConfirmBookChannelSingleBook(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}

	book := domain.Book{ID: "b1", CampaignID: "c1", Number: 2, Name: "Departure"}
	store.books["b1"] = book
	if err := orch.ConfirmBookChannel(context.Background(), book, nil); err != nil {
		t.Fatalf("ConfirmBookChannel() error = %v", err)
	}
	if store.books["b1"].ChannelID == "" {
		t.Fatal("book channel id not written back")
	}
	if got := p.channels[store.books["b1"].ChannelID].Name; got != "📖-02-departure" {
		t.Fatalf("book channel name = %q", got)
	}
}

func TestConfirmCharacterChannelMissingCampaignSkips(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	character := domain.Character{ID: "ch1", CampaignID: "gone", Name: "Alice", Alive: true}
	if err := orch.ConfirmCharacterChannel(context.Background(), character, nil); err != nil {
		t.Fatalf("ConfirmCharacterChannel() error = %v", err)
	}
	if p.mutations() != 0 {
		t.Fatalf("mutations = %d, want 0 for missing campaign", p.mutations())
	}
}

func TestConfirmCharacterChannelMissingCategorySkips(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	campaign.CategoryChannelID = "deleted-id"
	store.campaigns[campaign.ID] = campaign

	character := domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", Alive: true}
	if err := orch.ConfirmCharacterChannel(context.Background(), character, nil); err != nil {
		t.Fatalf("ConfirmCharacterChannel() error = %v", err)
	}
	if p.mutations() != 0 {
		t.Fatalf("mutations = %d, want 0 for dangling category", p.mutations())
	}
}

func TestDeleteCampaignChannelsTearsDownEverything(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	store.books["b1"] = domain.Book{ID: "b1", CampaignID: "c1", Number: 1, Name: "Arrival"}
	store.characters["ch1"] = domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", Alive: true}
	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}

	if err := orch.DeleteCampaignChannels(context.Background(), store.campaigns["c1"]); err != nil {
		t.Fatalf("DeleteCampaignChannels() error = %v", err)
	}
	if len(p.channels) != 0 {
		t.Fatalf("%d channels remain after teardown", len(p.channels))
	}

	updated := store.campaigns["c1"]
	if updated.CategoryChannelID != "" || updated.GeneralChannelID != "" || updated.StorytellerChannelID != "" {
		t.Fatalf("campaign channel ids not cleared: %+v", updated)
	}
	if store.books["b1"].ChannelID != "" {
		t.Fatal("book channel id not cleared")
	}
	if store.characters["ch1"].ChannelID != "" {
		t.Fatal("character channel id not cleared")
	}
}

func TestDeleteCharacterChannelClearsID(t *testing.T) {
	store := newFakeStore()
	p := newFakeProvider()
	orch := newTestOrchestrator(store, p)

	campaign := seedCampaign(store)
	store.characters["ch1"] = domain.Character{ID: "ch1", CampaignID: "c1", Name: "Alice", Alive: true}
	if err := orch.ResyncCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("ResyncCampaign() error = %v", err)
	}

	character := store.characters["ch1"]
	channelID := character.ChannelID
	if err := orch.DeleteCharacterChannel(context.Background(), character); err != nil {
		t.Fatalf("DeleteCharacterChannel() error = %v", err)
	}
	if _, ok := p.channels[channelID]; ok {
		t.Fatal("character channel still exists")
	}
	if store.characters["ch1"].ChannelID != "" {
		t.Fatal("character channel id not cleared")
	}
}
