package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/repository"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/nfe-ingest/migrations"
	"github.com/garyjia/nfe-ingest/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const accessKey = "35240111222333000181550010000001231000001234"

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "nfe.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := database.NewMigrator(db, logger).Run(migrations.FS)
	require.NoError(t, err)
	require.Equal(t, 3, applied)
	return db
}

func sampleInvoice(number, key string) *entity.Invoice {
	inv := entity.NewInvoice(entity.SourceXML)
	inv.Number = number
	inv.Series = "1"
	inv.IssueDate = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	inv.IssuerTaxID = "11.222.333/0001-81"
	inv.IssuerName = "ACME"
	inv.RecipientName = "CLIENTE"
	inv.Total = decimal.RequireFromString("1500.00")
	inv.ICMS = decimal.RequireFromString("180.50")
	inv.AccessKey = key
	inv.OperationNature = "VENDA"
	inv.Origin = entity.OriginEmail
	return inv
}

func TestMigrator_Idempotent(t *testing.T) {
	db := setupDB(t)

	applied, err := database.NewMigrator(db, zap.NewNop()).Run(migrations.FS)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestInvoiceRepository_CreateAndRead(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	inv := sampleInvoice("123", accessKey)
	id, err := repo.Create(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, id, inv.ID)

	exists, err := repo.ExistsByAccessKey(ctx, accessKey)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := repo.GetByAccessKey(ctx, accessKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123", got.Number)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("1500")))
	assert.True(t, got.ICMS.Equal(decimal.RequireFromString("180.5")))
	assert.True(t, got.IssueDate.Equal(inv.IssueDate))
	assert.Equal(t, entity.OriginEmail, got.Origin)
	assert.Equal(t, entity.SourceXML, got.Source)
	assert.Equal(t, "CLIENTE", got.RecipientName)
	assert.Empty(t, got.RecipientTaxID)
	assert.Nil(t, got.DueDate)

	missing, err := repo.GetByAccessKey(ctx, "0")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInvoiceRepository_DuplicateAccessKey(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	_, err := repo.Create(ctx, sampleInvoice("1", accessKey))
	require.NoError(t, err)

	_, err = repo.Create(ctx, sampleInvoice("2", accessKey))
	assert.ErrorIs(t, err, repository.ErrDuplicateAccessKey)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInvoiceRepository_EmptyAccessKeysDoNotCollide(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	for _, number := range []string{"10", "11"} {
		inv := sampleInvoice(number, "")
		inv.Source = entity.SourceTabular
		_, err := repo.Create(ctx, inv)
		require.NoError(t, err)
	}

	exists, err := repo.ExistsByAccessKey(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInvoiceRepository_FindIDByNumber(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	first, err := repo.Create(ctx, sampleInvoice("7", ""))
	require.NoError(t, err)
	second, err := repo.Create(ctx, sampleInvoice("7", ""))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	id, found, err := repo.FindIDByNumber(ctx, "7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, second, id)

	_, found, err = repo.FindIDByNumber(ctx, "404")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestItemRepository_CreateAndList(t *testing.T) {
	db := setupDB(t)
	invoices := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	items := repository.NewItemRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	invoiceID, err := invoices.Create(ctx, sampleInvoice("1", accessKey))
	require.NoError(t, err)

	item := &entity.LineItem{
		Code:        "P001",
		Description: "PARAFUSO",
		NCM:         "73181500",
		Quantity:    decimal.RequireFromString("2.5"),
		UnitValue:   decimal.RequireFromString("4"),
		Total:       decimal.RequireFromString("10"),
	}
	require.NoError(t, items.Create(ctx, invoiceID, item))
	assert.NotZero(t, item.ID)
	assert.Equal(t, invoiceID, item.InvoiceID)

	got, err := items.GetByInvoiceID(ctx, invoiceID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P001", got[0].Code)
	assert.True(t, got[0].Quantity.Equal(decimal.RequireFromString("2.5")))
}

func TestItemRepository_RejectsOrphan(t *testing.T) {
	db := setupDB(t)
	items := repository.NewItemRepository(db.DB, zap.NewNop())

	err := items.Create(context.Background(), 999, &entity.LineItem{Code: "X", Description: "Y"})
	assert.Error(t, err)
}

func TestTransaction_RollsBackInvoiceAndItems(t *testing.T) {
	db := setupDB(t)
	tm := sqlite.NewDB(db.DB, zap.NewNop())
	invoices := repository.NewInvoiceRepository(db.DB, zap.NewNop())
	items := repository.NewItemRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(ctx context.Context) error {
		id, err := invoices.Create(ctx, sampleInvoice("1", accessKey))
		if err != nil {
			return err
		}
		if err := items.Create(ctx, id, &entity.LineItem{Code: "A", Description: "B"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := invoices.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessingLogRepository(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewProcessingLogRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.ProcessingLog{BatchID: "b1", Operation: "import", FileName: "a.xml", Status: "processed"}))
	require.NoError(t, repo.Create(ctx, &entity.ProcessingLog{BatchID: "b1", Operation: "import", FileName: "b.pdf", Status: "failed", Message: "unreadable"}))
	require.NoError(t, repo.Create(ctx, &entity.ProcessingLog{BatchID: "b2", Operation: "import", FileName: "c.csv", Status: "processed"}))

	logs, err := repo.ListByBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a.xml", logs[0].FileName)
	assert.Equal(t, "unreadable", logs[1].Message)
	assert.False(t, logs[1].CreatedAt.IsZero())
}
