package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/repository/base"
)

const uniqueViolation = "23505"

// PartyRepository stores the Telegram chat linked to a family or an educator.
type PartyRepository struct {
	*base.Repository
}

func NewPartyRepository(pool *pgxpool.Pool) *PartyRepository {
	return &PartyRepository{Repository: base.NewRepository(pool)}
}

// Link creates or replaces the chat linked to the party.
func (r *PartyRepository) Link(ctx context.Context, link *model.PartyLink) error {
	query := `
		INSERT INTO party_links (role, party_id, telegram_chat_id, username, language_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role, party_id) DO UPDATE
		SET telegram_chat_id = EXCLUDED.telegram_chat_id,
			username = EXCLUDED.username,
			language_code = EXCLUDED.language_code
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		link.Role,
		link.PartyID,
		link.TelegramChatID,
		link.Username,
		link.LanguageCode,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Conflict("telegram chat %d is already linked to another party", link.TelegramChatID)
		}
		return fmt.Errorf("link party: %w", err)
	}

	return nil
}

// GetByChatID returns nil when the chat is not linked.
func (r *PartyRepository) GetByChatID(ctx context.Context, chatID int64) (*model.PartyLink, error) {
	query := `
		SELECT id, role, party_id, telegram_chat_id, username, language_code, created_at
		FROM party_links
		WHERE telegram_chat_id = $1
	`

	var link model.PartyLink
	err := r.QueryRow(ctx, query, chatID).Scan(
		&link.ID,
		&link.Role,
		&link.PartyID,
		&link.TelegramChatID,
		&link.Username,
		&link.LanguageCode,
		&link.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get party link by chat id: %w", err)
	}

	return &link, nil
}

// GetByParty returns nil when the party has no linked chat.
func (r *PartyRepository) GetByParty(ctx context.Context, role model.PartyRole, partyID int64) (*model.PartyLink, error) {
	query := `
		SELECT id, role, party_id, telegram_chat_id, username, language_code, created_at
		FROM party_links
		WHERE role = $1 AND party_id = $2
	`

	var link model.PartyLink
	err := r.QueryRow(ctx, query, role, partyID).Scan(
		&link.ID,
		&link.Role,
		&link.PartyID,
		&link.TelegramChatID,
		&link.Username,
		&link.LanguageCode,
		&link.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get party link: %w", err)
	}

	return &link, nil
}
