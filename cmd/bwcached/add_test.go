package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/bwcached/internal/bitwarden"
)

func TestBuildItem(t *testing.T) {
	item, err := buildItem("google", []string{
		"username=user@gmail.com",
		"password=secret",
		"url=https://google.com",
		"notes=personal",
		"recovery-code=abc=def", // value may itself contain '='
	})
	require.NoError(t, err)

	assert.Equal(t, bitwarden.TypeLogin, item.Type)
	assert.Equal(t, "google", item.Name)
	assert.Equal(t, "user@gmail.com", item.Login.Username)
	assert.Equal(t, "secret", item.Login.Password)
	require.Len(t, item.Login.URIs, 1)
	assert.Equal(t, "https://google.com", item.Login.URIs[0].URI)
	assert.Equal(t, "personal", item.Notes)

	require.Len(t, item.Fields, 1)
	assert.Equal(t, "recovery-code", item.Fields[0].Name)
	require.NotNil(t, item.Fields[0].Value)
	assert.Equal(t, "abc=def", *item.Fields[0].Value)
}

func TestBuildItemCustomFieldsOnly(t *testing.T) {
	item, err := buildItem("openai", []string{"api-key=sk-xxx"})
	require.NoError(t, err)

	require.Len(t, item.Fields, 1)
	assert.Equal(t, "api-key", item.Fields[0].Name)
	assert.Equal(t, "sk-xxx", *item.Fields[0].Value)
	assert.Empty(t, item.Login.Password)
}

func TestBuildItemRejectsBareField(t *testing.T) {
	_, err := buildItem("item", []string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field=value")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "11111111", shortID("11111111-2222-3333"))
	assert.Equal(t, "short", shortID("short"))
}
