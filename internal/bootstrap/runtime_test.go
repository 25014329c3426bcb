package bootstrap

import (
	"path/filepath"
	"testing"

	"plume/internal/config"
	"plume/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bootstrapConfig(t *testing.T, env string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                     "0",
		Env:                      env,
		SQLitePath:               filepath.Join(t.TempDir(), "bootstrap_test.db"),
		DBMaxOpenConns:           1,
		DBMaxIdleConns:           1,
		DBConnMaxLifetimeMinutes: 5,
		MaxUploadSizeMB:          8,
		SchedulerIntervalSeconds: 60,
		PublishTimeoutSeconds:    5,
	}
}

func TestInitRuntime_SeedsEmptyDevelopmentDatabase(t *testing.T) {
	cfg := bootstrapConfig(t, "development")

	db, redisClient, err := InitRuntime(cfg, Options{SeedDemo: true})
	require.NoError(t, err)
	assert.Nil(t, redisClient)

	var count int64
	require.NoError(t, db.Model(&models.Tweet{}).Count(&count).Error)
	assert.EqualValues(t, 25, count)

	// A restart must not duplicate the demo data.
	db2, _, err := InitRuntime(cfg, Options{SeedDemo: true})
	require.NoError(t, err)
	require.NoError(t, db2.Model(&models.Tweet{}).Count(&count).Error)
	assert.EqualValues(t, 25, count)
}

func TestInitRuntime_NoSeedOutsideDevelopment(t *testing.T) {
	cfg := bootstrapConfig(t, "test")

	db, _, err := InitRuntime(cfg, Options{SeedDemo: true})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Tweet{}).Count(&count).Error)
	assert.Zero(t, count)
}
