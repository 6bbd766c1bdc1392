package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bazaar-backend/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var log = logging.Logger("repository")

// PostgresStore é a implementação da interface Store para o PostgreSQL
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore cria uma nova instância do PostgresStore e pool de conexões
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("não foi possível criar pool de conexão: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("não foi possível pingar o banco de dados: %w", err)
	}

	log.Info("Pool de conexão com PostgreSQL estabelecido.")
	return &PostgresStore{db: pool}, nil
}

// Pool expõe o pool para componentes que precisam de LISTEN/NOTIFY
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.db
}

// Close fecha o pool de conexões
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// RunMigrations aplica, em ordem, os arquivos .sql do diretório que ainda não
// constam em schema_migrations. Cada arquivo roda na sua própria transação.
func (s *PostgresStore) RunMigrations(ctx context.Context, dir string) ([]string, error) {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar schema_migrations: %w", err)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("falha ao ler diretório de migrações: %w", err)
	}
	sort.Strings(files)

	var applied []string
	for _, f := range files {
		name := filepath.Base(f)

		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}

		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			return applied, err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			return applied, fmt.Errorf("migração vazia: %s", name)
		}

		err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, sqlText); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("falha ao executar migração %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// --- UserStore ---

const userColumns = `id, address, username, bio, avatar_url, nullifier_hash, merkle_root, verification_level, verified_at, created_at`

func (s *PostgresStore) CreateUserIfAbsent(ctx context.Context, user *models.User) (*models.User, error) {
	sql := `
        INSERT INTO users (id, address, username, bio, avatar_url)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (address) DO NOTHING
        RETURNING ` + userColumns

	created := &models.User{}
	err := pgxscan.Get(ctx, s.db, created, sql, user.ID, user.Address, user.Username, user.Bio, user.AvatarURL)
	if err == nil {
		return created, nil
	}
	if !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("falha ao criar usuário: %w", err)
	}

	// Outra requisição criou o mesmo endereço primeiro
	return s.GetUserByAddress(ctx, user.Address)
}

func (s *PostgresStore) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	user := &models.User{}
	err := pgxscan.Get(ctx, s.db, user, `SELECT `+userColumns+` FROM users WHERE address = $1`, address)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("usuário '%s' %w", address, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar usuário por endereço: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := pgxscan.Get(ctx, s.db, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("usuário com ID '%s' %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar usuário por ID: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	sql := `
        UPDATE users
        SET username   = COALESCE($2, username),
            bio        = COALESCE($3, bio),
            avatar_url = COALESCE($4, avatar_url)
        WHERE id = $1
        RETURNING ` + userColumns

	user := &models.User{}
	err := pgxscan.Get(ctx, s.db, user, sql, id, upd.Username, upd.Bio, upd.AvatarURL)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("usuário com ID '%s' %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao atualizar perfil: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) SetHumanityProof(ctx context.Context, id uuid.UUID, proof models.HumanityProof) (*models.User, error) {
	sql := `
        UPDATE users
        SET nullifier_hash = $2, merkle_root = $3, verification_level = $4, verified_at = now()
        WHERE id = $1
        RETURNING ` + userColumns

	user := &models.User{}
	err := pgxscan.Get(ctx, s.db, user, sql, id, proof.NullifierHash, proof.MerkleRoot, proof.VerificationLevel)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("usuário com ID '%s' %w", id, models.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nullifier já vinculado a outro usuário: %w", models.ErrConflict)
		}
		return nil, fmt.Errorf("falha ao gravar prova de humanidade: %w", err)
	}
	return user, nil
}

// --- ItemStore ---

const itemColumns = `id, seller_id, title, description, price::text, image_url, latitude, longitude, place_name,
        status, settlement_ref, settlement_chain_id, settlement_status, settled_at, created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
	item := &models.Item{}
	var (
		price            string
		lat, lng         *float64
		placeName        *string
		settlementStatus *string
	)
	err := row.Scan(
		&item.ID,
		&item.SellerID,
		&item.Title,
		&item.Description,
		&price,
		&item.ImageURL,
		&lat,
		&lng,
		&placeName,
		&item.Status,
		&item.SettlementRef,
		&item.SettlementChainID,
		&settlementStatus,
		&item.SettledAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("preço inválido no banco: %w", err)
	}
	if lat != nil && lng != nil {
		item.Location = &models.Location{Latitude: *lat, Longitude: *lng}
		if placeName != nil {
			item.Location.PlaceName = *placeName
		}
	}
	if settlementStatus != nil {
		st := models.SettlementStatus(*settlementStatus)
		item.SettlementStatus = &st
	}
	return item, nil
}

func locationArgs(loc *models.Location) (lat, lng *float64, place *string) {
	if loc == nil {
		return nil, nil, nil
	}
	return &loc.Latitude, &loc.Longitude, &loc.PlaceName
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *models.Item) error {
	sql := `
        INSERT INTO items (id, seller_id, title, description, price, image_url, latitude, longitude, place_name, status)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
        RETURNING created_at, updated_at`

	lat, lng, place := locationArgs(item.Location)
	err := s.db.QueryRow(ctx, sql,
		item.ID,
		item.SellerID,
		item.Title,
		item.Description,
		item.Price.String(),
		item.ImageURL,
		lat,
		lng,
		place,
		item.Status,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("falha ao criar item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	item, err := scanItem(s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item '%s' %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateItemListing(ctx context.Context, id, sellerID uuid.UUID, listing models.ItemListing) (*models.Item, error) {
	sql := `
        UPDATE items
        SET title = $3, description = $4, price = $5::numeric, image_url = $6,
            latitude = $7, longitude = $8, place_name = $9, updated_at = now()
        WHERE id = $1 AND seller_id = $2 AND status = 'AVAILABLE'
        RETURNING ` + itemColumns

	lat, lng, place := locationArgs(listing.Location)
	item, err := scanItem(s.db.QueryRow(ctx, sql,
		id, sellerID, listing.Title, listing.Description, listing.Price.String(), listing.ImageURL, lat, lng, place))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("falha ao atualizar item: %w", err)
	}

	// A condição falhou: descobrir qual das pré-condições não vale mais
	current, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SellerID != sellerID {
		return nil, fmt.Errorf("item '%s' pertence a outro vendedor: %w", id, models.ErrForbidden)
	}
	return nil, fmt.Errorf("item '%s' não está mais disponível: %w", id, models.ErrInvalidState)
}

func (s *PostgresStore) ListItemsBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Item, error) {
	rows, err := s.db.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar itens do vendedor: %w", err)
	}
	defer rows.Close()

	items := []*models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("falha ao escanear linha de item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar sobre os itens: %w", err)
	}
	return items, nil
}

// --- ConversationStore ---

const conversationColumns = `id, item_id, buyer_id, seller_id, created_at`

func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	sql := `
        INSERT INTO conversations (id, item_id, buyer_id, seller_id)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (item_id, buyer_id) DO NOTHING
        RETURNING ` + conversationColumns

	created := &models.Conversation{}
	err := pgxscan.Get(ctx, s.db, created, sql, conv.ID, conv.ItemID, conv.BuyerID, conv.SellerID)
	if err == nil {
		return created, nil
	}
	if !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("falha ao criar conversa: %w", err)
	}

	existing := &models.Conversation{}
	err = pgxscan.Get(ctx, s.db, existing,
		`SELECT `+conversationColumns+` FROM conversations WHERE item_id = $1 AND buyer_id = $2`,
		conv.ItemID, conv.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar conversa existente: %w", err)
	}
	return existing, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := pgxscan.Get(ctx, s.db, conv, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("conversa '%s' %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar conversa: %w", err)
	}
	return conv, nil
}

type conversationSummaryRow struct {
	models.Conversation
	LastMessageID        *string    `db:"last_message_id"`
	LastMessageSenderID  *uuid.UUID `db:"last_message_sender_id"`
	LastMessageContent   *string    `db:"last_message_content"`
	LastMessageCreatedAt *time.Time `db:"last_message_created_at"`
}

func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationSummary, error) {
	sql := `
        SELECT c.id, c.item_id, c.buyer_id, c.seller_id, c.created_at,
               m.id AS last_message_id, m.sender_id AS last_message_sender_id,
               m.content AS last_message_content, m.created_at AS last_message_created_at
        FROM conversations c
        LEFT JOIN LATERAL (
            SELECT id, sender_id, content, created_at
            FROM messages
            WHERE conversation_id = c.id
            ORDER BY created_at DESC, id DESC
            LIMIT 1
        ) m ON true
        WHERE c.buyer_id = $1 OR c.seller_id = $1
        ORDER BY COALESCE(m.created_at, c.created_at) DESC`

	var rows []conversationSummaryRow
	if err := pgxscan.Select(ctx, s.db, &rows, sql, userID); err != nil {
		return nil, fmt.Errorf("falha ao buscar conversas: %w", err)
	}

	summaries := make([]*models.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		summary := &models.ConversationSummary{Conversation: r.Conversation}
		if r.LastMessageID != nil {
			summary.LastMessage = &models.Message{
				ID:             *r.LastMessageID,
				ConversationID: r.ID,
				SenderID:       *r.LastMessageSenderID,
				Content:        *r.LastMessageContent,
				CreatedAt:      *r.LastMessageCreatedAt,
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *PostgresStore) ListConversationsForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Conversation, error) {
	convs := []*models.Conversation{}
	err := pgxscan.Select(ctx, s.db, &convs,
		`SELECT `+conversationColumns+` FROM conversations WHERE item_id = $1 ORDER BY created_at`, itemID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar conversas do item: %w", err)
	}
	return convs, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	sql := `
        INSERT INTO messages (id, conversation_id, sender_id, content)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at`

	err := s.db.QueryRow(ctx, sql, msg.ID, msg.ConversationID, msg.SenderID, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("conversa '%s' %w", msg.ConversationID, models.ErrNotFound)
		}
		return fmt.Errorf("falha ao criar mensagem: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	msgs := []*models.Message{}
	err := pgxscan.Select(ctx, s.db, &msgs, `
        SELECT id, conversation_id, sender_id, content, created_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar mensagens: %w", err)
	}
	return msgs, nil
}

// --- OfferStore ---

const offerColumns = `id, conversation_id, item_id, buyer_id, seller_id, amount::text, chain_id, status, created_at, updated_at`

func scanOffer(row pgx.Row) (*models.Offer, error) {
	offer := &models.Offer{}
	var amount string
	err := row.Scan(
		&offer.ID,
		&offer.ConversationID,
		&offer.ItemID,
		&offer.BuyerID,
		&offer.SellerID,
		&amount,
		&offer.ChainID,
		&offer.Status,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	offer.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("valor de oferta inválido no banco: %w", err)
	}
	return offer, nil
}

// lockItem trava a linha do item até o fim da transação. Todas as transições
// que tocam ofertas de um item passam por aqui primeiro, então a ordem de
// travamento é sempre item -> ofertas.
func lockItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (models.ItemStatus, *string, error) {
	var (
		status models.ItemStatus
		ref    *string
	)
	err := tx.QueryRow(ctx, `SELECT status, settlement_ref FROM items WHERE id = $1 FOR UPDATE`, itemID).Scan(&status, &ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, fmt.Errorf("item '%s' %w", itemID, models.ErrNotFound)
		}
		return "", nil, fmt.Errorf("falha ao travar item: %w", err)
	}
	return status, ref, nil
}

func (s *PostgresStore) ProposeOffer(ctx context.Context, offer *models.Offer) (int, error) {
	superseded := 0
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		status, _, err := lockItem(ctx, tx, offer.ItemID)
		if err != nil {
			return err
		}
		if status != models.ItemAvailable {
			return fmt.Errorf("item '%s' não aceita novas ofertas: %w", offer.ItemID, models.ErrInvalidState)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM offers WHERE item_id = $1 AND status = 'PENDING'`, offer.ItemID)
		if err != nil {
			return fmt.Errorf("falha ao retirar ofertas anteriores: %w", err)
		}
		superseded = int(tag.RowsAffected())

		offer.Status = models.OfferPending
		err = tx.QueryRow(ctx, `
            INSERT INTO offers (id, conversation_id, item_id, buyer_id, seller_id, amount, chain_id, status)
            VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
            RETURNING created_at, updated_at`,
			offer.ID,
			offer.ConversationID,
			offer.ItemID,
			offer.BuyerID,
			offer.SellerID,
			offer.Amount.String(),
			offer.ChainID,
			offer.Status,
		).Scan(&offer.CreatedAt, &offer.UpdatedAt)
		if err != nil {
			return fmt.Errorf("falha ao criar oferta: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return superseded, nil
}

func (s *PostgresStore) AcceptOffer(ctx context.Context, offerID uuid.UUID) (*models.Offer, error) {
	var accepted *models.Offer
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var itemID uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT item_id FROM offers WHERE id = $1`, offerID).Scan(&itemID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("oferta '%s' %w", offerID, models.ErrNotFound)
			}
			return fmt.Errorf("falha ao buscar oferta: %w", err)
		}

		status, _, err := lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if status != models.ItemAvailable {
			return fmt.Errorf("item '%s' está %s: %w", itemID, status, models.ErrInvalidState)
		}

		offer, err := scanOffer(tx.QueryRow(ctx, `
            UPDATE offers SET status = 'ACCEPTED', updated_at = now()
            WHERE id = $1 AND status = 'PENDING'
            RETURNING `+offerColumns, offerID))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("falha ao aceitar oferta: %w", err)
			}
			// Retirada por uma proposta mais nova ou já aceita
			var current models.OfferStatus
			if err := tx.QueryRow(ctx, `SELECT status FROM offers WHERE id = $1`, offerID).Scan(&current); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("oferta '%s' %w", offerID, models.ErrNotFound)
				}
				return fmt.Errorf("falha ao buscar oferta: %w", err)
			}
			return fmt.Errorf("oferta '%s' está %s: %w", offerID, current, models.ErrInvalidState)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE items SET status = 'SOLD', updated_at = now() WHERE id = $1 AND status = 'AVAILABLE'`, itemID); err != nil {
			return fmt.Errorf("falha ao marcar item como vendido: %w", err)
		}
		accepted = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, err := scanOffer(s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("oferta '%s' %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar oferta: %w", err)
	}
	return offer, nil
}

func (s *PostgresStore) GetAcceptedOffer(ctx context.Context, itemID uuid.UUID) (*models.Offer, error) {
	offer, err := scanOffer(s.db.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE item_id = $1 AND status = 'ACCEPTED'`, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("oferta aceita para o item '%s' %w", itemID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar oferta aceita: %w", err)
	}
	return offer, nil
}

func (s *PostgresStore) queryOffers(ctx context.Context, sql string, args ...any) ([]*models.Offer, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar ofertas: %w", err)
	}
	defer rows.Close()

	offers := []*models.Offer{}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("falha ao escanear linha de oferta: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar sobre as ofertas: %w", err)
	}
	return offers, nil
}

func (s *PostgresStore) ListOffersForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Offer, error) {
	return s.queryOffers(ctx, `SELECT `+offerColumns+` FROM offers WHERE item_id = $1 ORDER BY created_at`, itemID)
}

func (s *PostgresStore) ListOffersForConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Offer, error) {
	return s.queryOffers(ctx, `SELECT `+offerColumns+` FROM offers WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
}

// --- SettlementStore ---

func (s *PostgresStore) RecordSettlement(ctx context.Context, st models.Settlement) (*models.Item, error) {
	var recorded *models.Item
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, ref, err := lockItem(ctx, tx, st.ItemID)
		if err != nil {
			return err
		}
		if ref != nil {
			return fmt.Errorf("item '%s' já possui pagamento registrado: %w", st.ItemID, models.ErrConflict)
		}

		var accepted bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM offers WHERE item_id = $1 AND status = 'ACCEPTED')`, st.ItemID).Scan(&accepted)
		if err != nil {
			return fmt.Errorf("falha ao verificar oferta aceita: %w", err)
		}
		if !accepted {
			return fmt.Errorf("item '%s' sem oferta aceita: %w", st.ItemID, models.ErrInvalidState)
		}

		recorded, err = scanItem(tx.QueryRow(ctx, `
            UPDATE items
            SET status = 'SOLD', settlement_ref = $2, settlement_chain_id = $3, settlement_status = $4,
                settled_at = now(), updated_at = now()
            WHERE id = $1 AND settlement_ref IS NULL
            RETURNING `+itemColumns, st.ItemID, st.Ref, st.ChainID, st.Status))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("referência '%s' já usada em outro item: %w", st.Ref, models.ErrConflict)
			}
			return fmt.Errorf("falha ao gravar pagamento: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func (s *PostgresStore) ListUnconfirmedSettlements(ctx context.Context, limit int) ([]*models.PendingSettlement, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+itemColumns+`
        FROM items
        WHERE settlement_status = 'UNCONFIRMED'
        ORDER BY settled_at
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar pagamentos pendentes: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("falha ao escanear linha de item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao iterar sobre os itens: %w", err)
	}

	pending := make([]*models.PendingSettlement, 0, len(items))
	for _, item := range items {
		offer, err := s.GetAcceptedOffer(ctx, item.ID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				log.Warnf("item %s com pagamento pendente mas sem oferta aceita", item.ID)
				continue
			}
			return nil, err
		}
		pending = append(pending, &models.PendingSettlement{Item: item, Offer: offer})
	}
	return pending, nil
}

func (s *PostgresStore) ConfirmSettlement(ctx context.Context, itemID uuid.UUID, ref string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE items SET settlement_status = 'CONFIRMED', updated_at = now()
        WHERE id = $1 AND settlement_ref = $2`, itemID, ref)
	if err != nil {
		return fmt.Errorf("falha ao confirmar pagamento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referência '%s' não é mais a do item '%s': %w", ref, itemID, models.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) RevokeSettlement(ctx context.Context, itemID uuid.UUID, ref string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE items
        SET settlement_ref = NULL, settlement_chain_id = NULL, settlement_status = NULL,
            settled_at = NULL, updated_at = now()
        WHERE id = $1 AND settlement_ref = $2`, itemID, ref)
	if err != nil {
		return fmt.Errorf("falha ao revogar pagamento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referência '%s' não é mais a do item '%s': %w", ref, itemID, models.ErrConflict)
	}
	return nil
}

// --- FeedbackStore ---

func (s *PostgresStore) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	sql := `
        INSERT INTO feedback (id, item_id, buyer_id, seller_id, rating, comment, signature, proof_token_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at`

	err := s.db.QueryRow(ctx, sql,
		fb.ID,
		fb.ItemID,
		fb.BuyerID,
		fb.SellerID,
		fb.Rating,
		fb.Comment,
		fb.Signature,
		fb.ProofTokenID,
	).Scan(&fb.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("item '%s' já possui avaliação: %w", fb.ItemID, models.ErrConflict)
		}
		return fmt.Errorf("falha ao criar avaliação: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFeedbackByItem(ctx context.Context, itemID uuid.UUID) (*models.Feedback, error) {
	fb := &models.Feedback{}
	err := pgxscan.Get(ctx, s.db, fb, `
        SELECT id, item_id, buyer_id, seller_id, rating, comment, signature, proof_token_id, created_at
        FROM feedback WHERE item_id = $1`, itemID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("avaliação do item '%s' %w", itemID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("falha ao buscar avaliação: %w", err)
	}
	return fb, nil
}
