package database

import (
	"testing"

	modelspkg "plume/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesTweet(t *testing.T) {
	found := false
	for _, model := range PersistentModels() {
		if _, ok := model.(*modelspkg.Tweet); ok {
			found = true
			break
		}
	}
	require.True(t, found, "PersistentModels should include Tweet")
}
