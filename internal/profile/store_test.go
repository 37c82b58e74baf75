package profile

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitedeploy/internal/crypto"
	"sitedeploy/internal/models"
)

func TestMain(m *testing.M) {
	testKey := make([]byte, 32)
	rand.Read(testKey)
	os.Setenv("SITEDEPLOY_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(testKey))

	if err := crypto.InitEncryption(); err != nil {
		panic("Failed to initialize encryption for tests: " + err.Error())
	}

	code := m.Run()

	os.Unsetenv("SITEDEPLOY_ENCRYPTION_KEY")
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ConnectionProfile{}))
	return NewStore(db)
}

func validProfile() *models.ConnectionProfile {
	return &models.ConnectionProfile{
		Name:       "staging",
		ServerURL:  "https://deploy.example.com",
		Username:   "deploy",
		RemoteRoot: "/var/www/site",
	}
}

// TestValidate tests profile field validation
func TestValidate(t *testing.T) {
	t.Run("Should accept a complete profile", func(t *testing.T) {
		assert.NoError(t, Validate(validProfile()))
	})

	t.Run("Should require a name", func(t *testing.T) {
		p := validProfile()
		p.Name = ""
		err := Validate(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name")
	})

	t.Run("Should require an http or https server URL", func(t *testing.T) {
		p := validProfile()
		p.ServerURL = "ftp://deploy.example.com"
		err := Validate(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ServerURL")

		p.ServerURL = ""
		assert.Error(t, Validate(p))
	})

	t.Run("Should require a username", func(t *testing.T) {
		p := validProfile()
		p.Username = ""
		assert.Error(t, Validate(p))
	})

	t.Run("Validation failures should be permanent", func(t *testing.T) {
		err := Validate(&models.ConnectionProfile{})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.IsPermanent())
	})
}

// TestStore tests the persistence round-trip
func TestStore(t *testing.T) {
	t.Run("Should save and load a profile with the password decrypted", func(t *testing.T) {
		store := newTestStore(t)
		p := validProfile()

		require.NoError(t, store.Save(p, "s3cret"))
		assert.NotEmpty(t, p.ID, "a UUID is assigned on create")
		assert.NotEqual(t, "s3cret", p.PasswordEnc, "the password is stored encrypted")

		loaded, password, err := store.Load("staging")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", password)
		assert.Equal(t, p.ID, loaded.ID)
		assert.Equal(t, "https://deploy.example.com", loaded.ServerURL)
	})

	t.Run("Should reject saving without a password", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Save(validProfile(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Password")
	})

	t.Run("Should upsert by name and keep the original ID", func(t *testing.T) {
		store := newTestStore(t)
		p := validProfile()
		require.NoError(t, store.Save(p, "first"))
		originalID := p.ID

		update := validProfile()
		update.RemoteRoot = "/srv/www"
		require.NoError(t, store.Save(update, "second"))

		loaded, password, err := store.Load("staging")
		require.NoError(t, err)
		assert.Equal(t, originalID, loaded.ID)
		assert.Equal(t, "/srv/www", loaded.RemoteRoot)
		assert.Equal(t, "second", password)

		profiles, err := store.List()
		require.NoError(t, err)
		assert.Len(t, profiles, 1, "upsert must not duplicate the profile")
	})

	t.Run("Should keep the stored password when updating without one", func(t *testing.T) {
		store := newTestStore(t)
		p := validProfile()
		require.NoError(t, store.Save(p, "keepme"))

		update := validProfile()
		update.PasswordEnc = p.PasswordEnc
		require.NoError(t, store.Save(update, ""))

		_, password, err := store.Load("staging")
		require.NoError(t, err)
		assert.Equal(t, "keepme", password)
	})

	t.Run("Should fail loading an unknown profile", func(t *testing.T) {
		store := newTestStore(t)
		_, _, err := store.Load("missing")
		assert.Error(t, err)
	})

	t.Run("Should delete by name and complain about unknown names", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(validProfile(), "pw"))

		require.NoError(t, store.Delete("staging"))
		assert.Error(t, store.Delete("staging"))

		profiles, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, profiles)
	})
}
