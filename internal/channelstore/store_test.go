package channelstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/llmweaver/gateway/internal/domain"
)

func mustStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestActiveChannelsHydratesMappings(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()

	require.NoError(t, s.db.Create(&channelRow{
		Provider: string(domain.ProviderOpenAI),
		APIBase:  "https://api.openai.com",
		APIKey:   "sk-test",
		Weight:   50,
		Status:   string(domain.ChannelActive),
	}).Error)

	var row channelRow
	require.NoError(t, s.db.First(&row).Error)
	require.NoError(t, s.db.Create(&modelMappingRow{
		ChannelID:     row.ID,
		PublicModelID: "gpt-3.5-turbo",
		UpstreamModel: "gpt-3.5-turbo-0613",
	}).Error)

	channels, err := s.ActiveChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "https://api.openai.com", channels[0].Config.APIBase)
	require.Len(t, channels[0].Mappings, 1)
	assert.Equal(t, "gpt-3.5-turbo-0613", channels[0].Mappings[0].UpstreamModel)
}

func TestActiveChannelsExcludesInactive(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()

	require.NoError(t, s.db.Create(&channelRow{Provider: string(domain.ProviderOpenAI), Status: string(domain.ChannelInactive)}).Error)

	channels, err := s.ActiveChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestCreateCredentialThenAuthenticateByRawKey(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()

	rawKey, created, err := s.CreateCredential(ctx, 7, []string{"gpt-4", "gpt-3.5-turbo"}, 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)

	cred, found, err := s.CredentialByAPIKey(ctx, rawKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.ID, cred.ID)
	assert.Equal(t, int64(7), cred.OwnerID)
	assert.True(t, cred.AllowsModel("gpt-4"))
	assert.False(t, cred.AllowsModel("claude-3-opus"))

	require.NoError(t, s.IncrementBudget(ctx, cred.ID, 0.25))

	updated, found, err := s.CredentialByAPIKey(ctx, rawKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0.25, updated.BudgetUsed)
}

func TestCredentialByAPIKeyRejectsWrongKey(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()

	_, _, err := s.CreateCredential(ctx, 1, nil, 0)
	require.NoError(t, err)

	_, found, err := s.CredentialByAPIKey(ctx, "sk-llmweaver-not-a-real-key-00000000000")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStaticCatalogListsOwnMappings(t *testing.T) {
	ch := domain.Channel{Mappings: []domain.ModelMapping{{PublicModelID: "gpt-4"}, {PublicModelID: "gpt-3.5-turbo"}}}
	models, err := StaticCatalog{}.ListModels(context.Background(), ch)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gpt-4", "gpt-3.5-turbo"}, models)
}
