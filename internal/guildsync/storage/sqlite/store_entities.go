package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
)

var errNotConfigured = fmt.Errorf("storage is not configured")

const campaignColumns = `
	id,
	guild_id,
	name,
	category_channel_id,
	general_channel_id,
	storyteller_channel_id,
	created_at,
	updated_at
`

func scanCampaign(scan func(dest ...any) error) (domain.Campaign, error) {
	var campaign domain.Campaign
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&campaign.ID,
		&campaign.GuildID,
		&campaign.Name,
		&campaign.CategoryChannelID,
		&campaign.GeneralChannelID,
		&campaign.StorytellerChannelID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Campaign{}, err
	}
	campaign.CreatedAt = fromMillis(createdAt)
	campaign.UpdatedAt = fromMillis(updatedAt)
	return campaign, nil
}

// GetCampaign returns one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Campaign{}, errNotConfigured
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Campaign{}, fmt.Errorf("campaign id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	campaign, err := scanCampaign(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Campaign{}, apperrors.New(apperrors.CodeNotFound, "campaign not found")
		}
		return domain.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return campaign, nil
}

// PutCampaign inserts or updates a campaign.
func (s *Store) PutCampaign(ctx context.Context, campaign domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}
	if err := campaign.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(campaign.ID) == "" {
		return fmt.Errorf("campaign id is required")
	}

	now := time.Now().UTC()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}
	if campaign.UpdatedAt.IsZero() {
		campaign.UpdatedAt = now
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO campaigns (
	id,
	guild_id,
	name,
	category_channel_id,
	general_channel_id,
	storyteller_channel_id,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	guild_id = excluded.guild_id,
	name = excluded.name,
	category_channel_id = excluded.category_channel_id,
	general_channel_id = excluded.general_channel_id,
	storyteller_channel_id = excluded.storyteller_channel_id,
	updated_at = excluded.updated_at
`,
		campaign.ID,
		campaign.GuildID,
		campaign.Name,
		campaign.CategoryChannelID,
		campaign.GeneralChannelID,
		campaign.StorytellerChannelID,
		toMillis(campaign.CreatedAt),
		toMillis(campaign.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put campaign: %w", err)
	}
	return nil
}

// ListCampaignsByGuild returns every campaign recorded for one guild.
func (s *Store) ListCampaignsByGuild(ctx context.Context, guildID string) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, errNotConfigured
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE guild_id = ? ORDER BY created_at ASC, id ASC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// GetBook returns one book by id.
func (s *Store) GetBook(ctx context.Context, id string) (domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return domain.Book{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Book{}, errNotConfigured
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Book{}, fmt.Errorf("book id is required")
	}

	var book domain.Book
	row := s.sqlDB.QueryRowContext(ctx, `SELECT id, campaign_id, number, name, channel_id FROM books WHERE id = ?`, id)
	if err := row.Scan(&book.ID, &book.CampaignID, &book.Number, &book.Name, &book.ChannelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Book{}, apperrors.New(apperrors.CodeNotFound, "book not found")
		}
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// PutBook inserts or updates a book.
func (s *Store) PutBook(ctx context.Context, book domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}
	if err := book.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(book.ID) == "" {
		return fmt.Errorf("book id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO books (id, campaign_id, number, name, channel_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	campaign_id = excluded.campaign_id,
	number = excluded.number,
	name = excluded.name,
	channel_id = excluded.channel_id
`,
		book.ID,
		book.CampaignID,
		book.Number,
		book.Name,
		book.ChannelID,
	)
	if err != nil {
		return fmt.Errorf("put book: %w", err)
	}
	return nil
}

// ListBooks returns a campaign's books ordered by book number.
func (s *Store) ListBooks(ctx context.Context, campaignID string) ([]domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, errNotConfigured
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, campaign_id, number, name, channel_id FROM books WHERE campaign_id = ? ORDER BY number ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var book domain.Book
		if err := rows.Scan(&book.ID, &book.CampaignID, &book.Number, &book.Name, &book.ChannelID); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func scanCharacter(scan func(dest ...any) error) (domain.Character, error) {
	var character domain.Character
	var storyteller int
	var alive int
	if err := scan(
		&character.ID,
		&character.CampaignID,
		&character.Name,
		&character.OwnerUserID,
		&storyteller,
		&alive,
		&character.ChannelID,
	); err != nil {
		return domain.Character{}, err
	}
	character.Storyteller = storyteller != 0
	character.Alive = alive != 0
	return character, nil
}

// GetCharacter returns one character by id.
func (s *Store) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	if err := ctx.Err(); err != nil {
		return domain.Character{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Character{}, errNotConfigured
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Character{}, fmt.Errorf("character id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT id, campaign_id, name, owner_user_id, storyteller, alive, channel_id FROM characters WHERE id = ?`, id)
	character, err := scanCharacter(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Character{}, apperrors.New(apperrors.CodeNotFound, "character not found")
		}
		return domain.Character{}, fmt.Errorf("get character: %w", err)
	}
	return character, nil
}

// PutCharacter inserts or updates a character.
func (s *Store) PutCharacter(ctx context.Context, character domain.Character) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}
	if err := character.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(character.ID) == "" {
		return fmt.Errorf("character id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO characters (id, campaign_id, name, owner_user_id, storyteller, alive, channel_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	campaign_id = excluded.campaign_id,
	name = excluded.name,
	owner_user_id = excluded.owner_user_id,
	storyteller = excluded.storyteller,
	alive = excluded.alive,
	channel_id = excluded.channel_id
`,
		character.ID,
		character.CampaignID,
		character.Name,
		character.OwnerUserID,
		boolToInt(character.Storyteller),
		boolToInt(character.Alive),
		character.ChannelID,
	)
	if err != nil {
		return fmt.Errorf("put character: %w", err)
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func (s *Store) listCharacters(ctx context.Context, campaignID string, storyteller bool) ([]domain.Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, errNotConfigured
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, campaign_id, name, owner_user_id, storyteller, alive, channel_id
FROM characters
WHERE campaign_id = ? AND storyteller = ?
ORDER BY name ASC, id ASC
`, campaignID, boolToInt(storyteller))
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var characters []domain.Character
	for rows.Next() {
		character, err := scanCharacter(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		characters = append(characters, character)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate characters: %w", err)
	}
	return characters, nil
}

// ListPlayerCharacters returns a campaign's player characters.
func (s *Store) ListPlayerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return s.listCharacters(ctx, campaignID, false)
}

// ListStorytellerCharacters returns a campaign's storyteller characters.
func (s *Store) ListStorytellerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return s.listCharacters(ctx, campaignID, true)
}
