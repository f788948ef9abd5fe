package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
	"consumption-tracker/internal/report"
)

// Store is the Postgres-backed collaborator of one organization. It serves
// the catalog, persists events and sheet entries, and queues formatted
// reports in an outbox drained by the mailer.
type Store struct {
	db     *sqlx.DB
	orgID  string
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ inventory.Provider  = (*Store)(nil)
	_ inventory.SheetSync = (*Store)(nil)
)

func NewStore(db *sqlx.DB, orgID string, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		orgID:  orgID,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM catalog_category
		WHERE org_id = $1
		ORDER BY position, name
	`

	var names []string
	if err := s.db.SelectContext(ctx, &names, query, s.orgID); err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	if len(names) == 0 {
		return nil, inventory.ErrDataUnavailable
	}
	return names, nil
}

func (s *Store) ListBrands(ctx context.Context, category string) ([]string, error) {
	query := `
		SELECT name
		FROM catalog_brand
		WHERE org_id = $1 AND category = $2
		ORDER BY position, name
	`

	var names []string
	if err := s.db.SelectContext(ctx, &names, query, s.orgID, category); err != nil {
		return nil, errors.Wrapf(err, "failed to list brands of %q", category)
	}
	return names, nil
}

func (s *Store) ListManagerEmails(ctx context.Context) ([]string, error) {
	query := `
		SELECT email
		FROM manager_email
		WHERE org_id = $1
		ORDER BY email
	`

	var emails []string
	if err := s.db.SelectContext(ctx, &emails, query, s.orgID); err != nil {
		return nil, errors.Wrap(err, "failed to list manager emails")
	}
	return emails, nil
}

// UpdateManagerEmails replaces the recipient list in one transaction.
func (s *Store) UpdateManagerEmails(ctx context.Context, emails []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manager_email WHERE org_id = $1`, s.orgID); err != nil {
		return errors.Wrap(err, "failed to clear manager emails")
	}

	for _, email := range models.DedupeStrings(emails) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manager_email (org_id, email) VALUES ($1, $2)`,
			s.orgID, email,
		); err != nil {
			return errors.Wrapf(err, "failed to insert manager email %q", email)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit manager emails")
	}
	return nil
}

type inventoryRow struct {
	ID             string          `db:"id"`
	Brand          sql.NullString  `db:"brand"`
	Category       sql.NullString  `db:"category"`
	AvailableStock decimal.Decimal `db:"available_stock"`
}

func (s *Store) LoadLiveInventorySnapshot(ctx context.Context, sourceKey string) ([]models.CatalogItem, error) {
	if sourceKey == "" {
		sourceKey = inventory.DefaultSourceKey
	}

	query := `
		SELECT id, brand, category, available_stock
		FROM inventory_item
		WHERE org_id = $1 AND source_key = $2
		ORDER BY category, brand, id
	`

	var rows []inventoryRow
	if err := s.db.SelectContext(ctx, &rows, query, s.orgID, sourceKey); err != nil {
		return nil, errors.Wrap(err, "failed to load inventory snapshot")
	}

	items := make([]models.CatalogItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, models.CatalogItem{
			ID:             r.ID,
			Brand:          r.Brand.String,
			Category:       r.Category.String,
			AvailableStock: r.AvailableStock,
		}.Normalize())
	}
	return items, nil
}

func (s *Store) CreateEvent(ctx context.Context, name string) (string, error) {
	id := uuid.New()
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consumption_event (id, org_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, id, s.orgID, name, now)
	if err != nil {
		return "", errors.Wrap(err, "failed to create event")
	}
	return id.String(), nil
}

func (s *Store) UpdateEvent(ctx context.Context, eventID, name string) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return errors.Wrapf(inventory.ErrEventNotFound, "malformed event id %q", eventID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE consumption_event
		SET name = $1, updated_at = $2
		WHERE id = $3 AND org_id = $4
	`, name, s.now().UTC(), id, s.orgID)
	if err != nil {
		return errors.Wrap(err, "failed to update event")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.Wrapf(inventory.ErrEventNotFound, "event %s", eventID)
	}
	return nil
}

// SendFormattedReport renders the report and queues it in the outbox.
func (s *Store) SendFormattedReport(ctx context.Context, eventID string, recipients []string, r models.ConsumptionReport) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return errors.Wrapf(inventory.ErrEventNotFound, "malformed event id %q", eventID)
	}
	if len(recipients) == 0 {
		return errors.New("no report recipients configured")
	}

	msg, err := report.Render(r)
	if err != nil {
		return err
	}

	to, err := json.Marshal(recipients)
	if err != nil {
		return errors.Wrap(err, "failed to encode recipients")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_outbox (id, org_id, event_id, recipients, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), s.orgID, id, string(to), msg.Subject, msg.Body, s.now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to queue report")
	}

	s.logger.Info("report queued",
		"event_id", eventID,
		"recipients", len(recipients),
		"lines", len(r.Lines),
	)
	return nil
}

// PushConsumption upserts the current quantity of one item of an event.
func (s *Store) PushConsumption(ctx context.Context, target, eventID, itemID string, quantity decimal.Decimal) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return errors.Wrapf(inventory.ErrEventNotFound, "malformed event id %q", eventID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consumption_entry (event_id, target, item_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, target, item_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`, id, target, itemID, quantity, s.now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to push consumption")
	}
	return nil
}
