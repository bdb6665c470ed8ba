package backend

import (
	"encoding/json"
	"testing"

	"github.com/BaSui01/llmrelay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatuses_KeepsConfiguredOrder(t *testing.T) {
	got := Statuses([]string{"b", "a", "c"}, map[string]bool{"a": true})
	assert.Equal(t, []ModelStatus{
		{Name: "b", Installed: false},
		{Name: "a", Installed: true},
		{Name: "c", Installed: false},
	}, got)
}

func TestCatalog_InstalledOnlyWhenKnown(t *testing.T) {
	entries := config.DefaultCatalog()

	plain := Catalog(entries, nil)
	require.Len(t, plain, len(entries))
	for _, m := range plain {
		assert.Nil(t, m.Installed)
	}
	raw, err := json.Marshal(plain[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "installed")

	annotated := Catalog(entries, map[string]bool{"gemma:2b": true})
	for _, m := range annotated {
		require.NotNil(t, m.Installed)
		assert.Equal(t, m.Name == "gemma:2b", *m.Installed)
	}
}
