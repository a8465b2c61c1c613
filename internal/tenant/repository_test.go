package tenant

import (
	"context"
	"testing"

	"saulto/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	_ = logger.Init("debug", "console", "stdout")
}

func setupTenantDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Tenant{}))
	return db
}

func TestRepository_GetByID(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewRepository(db)

	seeded := &Tenant{Name: "Acme", Slug: "acme", Status: StatusActive}
	require.NoError(t, db.Create(seeded).Error)

	got, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.True(t, got.IsActive())

	_, err = repo.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_VerifyActive(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewRepository(db)

	active := &Tenant{Name: "Acme", Slug: "acme", Status: StatusActive}
	disabled := &Tenant{Name: "Umbrella", Slug: "umbrella", Status: StatusDisabled}
	require.NoError(t, db.Create(active).Error)
	require.NoError(t, db.Create(disabled).Error)

	assert.NoError(t, repo.VerifyActive(context.Background(), active.ID))
	assert.ErrorIs(t, repo.VerifyActive(context.Background(), disabled.ID), ErrDisabled)
	assert.ErrorIs(t, repo.VerifyActive(context.Background(), 999), ErrNotFound)
}
