package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/controllers"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// RequireTestEnvironment fails t unless GO_ENV=test. config.Load reads
// .env.<GO_ENV>, and a developer's file may point at a real orders database.
func RequireTestEnvironment(t testing.TB) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("GO_ENV must be \"test\" for this suite (got %q); run GO_ENV=test go test ./...", env)
	}
}

// NewTestDB opens a migrated in-memory database, installs it as the global
// connection and closes it when t finishes
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase(":memory:")
	require.NoError(t, err, "Failed to open test database")
	require.NoError(t, models.Migrate(db), "Failed to migrate test database")
	config.SetDB(db)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedMenuPlan puts a selling product on the menu of day at price.
// A nil limit means unlimited.
func SeedMenuPlan(t testing.TB, db *gorm.DB, name string, price int64, day string, limit *int) models.MenuPlan {
	t.Helper()

	product := models.Product{Name: name, Price: price, Type: "lunchbox", SaleStatus: models.ProductSelling}
	require.NoError(t, db.Create(&product).Error)

	plan := models.MenuPlan{ProductID: product.ID, MenuDate: day, Price: price, QuantityLimit: limit, Active: true}
	require.NoError(t, db.Create(&plan).Error)
	plan.Product = product
	return plan
}

// SeedUser creates the local profile behind an Auth0 subject
func SeedUser(t testing.TB, db *gorm.DB, auth0ID, role string) models.User {
	t.Helper()

	user := models.User{Auth0ID: auth0ID, Name: auth0ID, Email: strings.TrimPrefix(auth0ID, "auth0|") + "@lunchbox.test", Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// GuestHeaders are what a guest sends to read or act on their order by id
func GuestHeaders(phone, passcode string) map[string]string {
	return map[string]string{
		controllers.OrderPhoneHeader:    phone,
		controllers.OrderPasscodeHeader: passcode,
	}
}
