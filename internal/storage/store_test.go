package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(sqlx.NewDb(db, "sqlmock"), "org-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	store.now = func() time.Time { return time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestStore_ListCategories(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ordered names", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery("SELECT name FROM catalog_category WHERE org_id = \\$1").
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Wine").AddRow("Wine").AddRow("Beer"))

		names, err := store.ListCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Wine", "Wine", "Beer"}, names, "dedup belongs to the tracker")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty catalog is data unavailable", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery("SELECT name FROM catalog_category").
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"name"}))

		_, err := store.ListCategories(ctx)
		assert.ErrorIs(t, err, inventory.ErrDataUnavailable)
	})

	t.Run("query error is wrapped", func(t *testing.T) {
		store, mock := newTestStore(t)
		mock.ExpectQuery("SELECT name FROM catalog_category").
			WithArgs("org-1").
			WillReturnError(sql.ErrConnDone)

		_, err := store.ListCategories(ctx)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Contains(t, err.Error(), "failed to list categories")
	})
}

func TestStore_ListBrands(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery("SELECT name FROM catalog_brand WHERE org_id = \\$1 AND category = \\$2").
		WithArgs("org-1", "Spirits").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Gin").AddRow("Rum"))

	brands, err := store.ListBrands(context.Background(), "Spirits")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gin", "Rum"}, brands)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateManagerEmails(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM manager_email WHERE org_id = \\$1").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO manager_email").
		WithArgs("org-1", "gm@bar.test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO manager_email").
		WithArgs("org-1", "chef@bar.test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpdateManagerEmails(context.Background(), []string{"gm@bar.test", "chef@bar.test", "gm@bar.test"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateManagerEmails_RollsBack(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM manager_email").
		WithArgs("org-1").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := store.UpdateManagerEmails(context.Background(), []string{"gm@bar.test"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadLiveInventorySnapshot(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "brand", "category", "available_stock"}).
		AddRow("i-1", "Gin", "Spirits", "12.5").
		AddRow("i-2", nil, nil, "-3")
	mock.ExpectQuery("SELECT id, brand, category, available_stock FROM inventory_item").
		WithArgs("org-1", inventory.DefaultSourceKey).
		WillReturnRows(rows)

	items, err := store.LoadLiveInventorySnapshot(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Gin", items[0].Brand)
	assert.True(t, items[0].AvailableStock.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "i-2", items[1].Brand, "missing brand defaults to id")
	assert.Equal(t, models.UncategorizedCategory, items[1].Category)
	assert.True(t, items[1].AvailableStock.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateAndUpdateEvent(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO consumption_event").
		WithArgs(sqlmock.AnyArg(), "org-1", "Event 1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.CreateEvent(ctx, "Event 1")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE consumption_event").
		WithArgs("Saturday Gala", sqlmock.AnyArg(), sqlmock.AnyArg(), "org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.UpdateEvent(ctx, id, "Saturday Gala")
	assert.ErrorIs(t, err, inventory.ErrEventNotFound)

	assert.ErrorIs(t, store.UpdateEvent(ctx, "not-a-uuid", "x"), inventory.ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SendFormattedReport(t *testing.T) {
	store, mock := newTestStore(t)
	eventID := uuid.New()

	mock.ExpectExec("INSERT INTO report_outbox").
		WithArgs(sqlmock.AnyArg(), "org-1", eventID, `["gm@bar.test"]`, "Consumption report: Gala (2026-10-17)", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := models.ConsumptionReport{
		EventID:     eventID.String(),
		EventName:   "Gala",
		Template:    "summary",
		GeneratedAt: time.Date(2026, 10, 17, 21, 0, 0, 0, time.UTC),
		Total:       decimal.NewFromInt(1),
	}

	err := store.SendFormattedReport(context.Background(), eventID.String(), []string{"gm@bar.test"}, r)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SendFormattedReport_NoRecipients(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.SendFormattedReport(context.Background(), uuid.NewString(), nil, models.ConsumptionReport{})
	assert.Error(t, err)
}

func TestStore_PushConsumption(t *testing.T) {
	store, mock := newTestStore(t)
	eventID := uuid.New()

	mock.ExpectExec("INSERT INTO consumption_entry").
		WithArgs(eventID, "sheet-1", "i-1", decimal.NewFromInt(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PushConsumption(context.Background(), "sheet-1", eventID.String(), "i-1", decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
