package screens

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

func TestDefaultCatalogLoads(t *testing.T) {
	catalog := loadDefaultCatalog(t)

	names := make([]string, 0)
	for _, screen := range catalog.List() {
		names = append(names, screen.Name)
	}
	require.Equal(t, []string{"products", "orders", "subscriptions", "admins"}, names)
}

func TestScreenEngineConfig(t *testing.T) {
	catalog := loadDefaultCatalog(t)
	orders, err := catalog.Lookup("orders")
	require.NoError(t, err)

	cfg := orders.EngineConfig(EngineDefaults{Debounce: 750 * time.Millisecond, Location: time.UTC})
	require.Equal(t, "/admin/orders", cfg.Resource)
	require.Equal(t, 20, cfg.Limit)
	require.Equal(t, []int{10, 20, 50}, cfg.Limits)
	require.Equal(t, listsync.Sort{By: "createdAt", Order: "desc"}, cfg.Sort)
	require.Equal(t, time.UTC, cfg.Location)

	byName := make(map[string]listsync.FieldSpec)
	for _, spec := range cfg.Fields {
		byName[spec.Name] = spec
	}
	assert.Equal(t, 750*time.Millisecond, byName["search"].Debounce)
	assert.False(t, byName["search"].Immediate)
	assert.True(t, byName["status"].Immediate)
	assert.Equal(t, listsync.KindDateTo, byName["toDate"].Kind)
	assert.Equal(t, "dateTo", byName["toDate"].ParamName())
}

func TestScreenOwnDebounceWins(t *testing.T) {
	catalog := loadDefaultCatalog(t)
	subs, err := catalog.Lookup("subscriptions")
	require.NoError(t, err)

	cfg := subs.EngineConfig(EngineDefaults{Debounce: time.Second})
	require.Equal(t, 300*time.Millisecond, cfg.Fields[0].Debounce)
}

func TestCompositeSortKey(t *testing.T) {
	catalog := loadDefaultCatalog(t)
	admins, err := catalog.Lookup("admins")
	require.NoError(t, err)

	cfg := admins.EngineConfig(EngineDefaults{})
	params := listsync.Builder{SortKeys: cfg.SortKeys}.Build(nil, cfg.Sort, 1, cfg.Limit)
	require.Equal(t, "page=1&limit=10&sort=name_asc", params.Encode())
}

func TestLookupUnknownScreen(t *testing.T) {
	catalog := loadDefaultCatalog(t)

	_, err := catalog.Lookup("invoices")
	require.ErrorIs(t, err, ErrUnknownScreen)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestParseCatalogRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"empty": `screens: []`,
		"unknown kind": `
screens:
  - name: a
    resource: /a
    sort: {by: id}
    fields:
      - {name: q, kind: fuzzy}
`,
		"duplicate field": `
screens:
  - name: a
    resource: /a
    sort: {by: id}
    fields:
      - {name: q, kind: text}
      - {name: q, kind: select}
`,
		"duplicate screen": `
screens:
  - {name: a, resource: /a, sort: {by: id}}
  - {name: a, resource: /b, sort: {by: id}}
`,
		"limit outside limits": `
screens:
  - {name: a, resource: /a, sort: {by: id}, limit: 15, limits: [10, 20]}
`,
		"missing sort": `
screens:
  - {name: a, resource: /a}
`,
		"bad order": `
screens:
  - {name: a, resource: /a, sort: {by: id, order: up}}
`,
		"unknown key": `
screens:
  - {name: a, resource: /a, sort: {by: id}, colour: red}
`,
		"order key without by key": `
screens:
  - {name: a, resource: /a, sort: {by: id}, sort_keys: {order: dir}}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			require.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.yaml")
	doc := `
screens:
  - name: coupons
    title: Coupons
    resource: /admin/coupons
    sort: {by: code, order: asc}
    fields:
      - {name: code, kind: text, debounce: 250ms, required: true}
      - {name: active, kind: bool, immediate: true, default: true}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	screen, err := catalog.Lookup("coupons")
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, screen.Fields[0].Debounce)
	require.True(t, screen.Fields[0].Required)
	require.Equal(t, true, screen.Fields[1].Default)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
