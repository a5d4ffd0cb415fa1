package catalog_test

import (
	"context"
	"testing"

	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/catalog"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const index = `{"leads":[
  {"slug":"acme","name":"Ana Souza","company":"Acme","location":"Recife"},
  {"slug":"solo","name":"Bruno Lima","location":"Austin"},
  {"slug":"acme-2","name":"Carla Dias","company":"Acme","title":"CTO","phone":5551234567}
]}`

func TestLoad(t *testing.T) {
	store := memory.NewStore()
	store.Seed("sales/index", []byte(index))

	leads, err := catalog.Load(context.Background(), store, "sales")
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "acme", leads[0].Identity)
	assert.Equal(t, "Acme", leads[0].Organization)
	assert.Equal(t, "5551234567", leads[2].Phone, "numeric phones are tolerated")

	_, err = catalog.Load(context.Background(), store, "other")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestFilter(t *testing.T) {
	leads, err := catalog.Parse([]byte(index))
	require.NoError(t, err)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"acme", "solo", "acme-2"}},
		{"ACME", []string{"acme", "acme-2"}},
		{"austin", []string{"solo"}},
		{"carla", []string{"acme-2"}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got []string
			for _, s := range catalog.Filter(leads, tt.query) {
				got = append(got, s.Identity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupByOrganization(t *testing.T) {
	leads, err := catalog.Parse([]byte(index))
	require.NoError(t, err)

	groups := catalog.GroupByOrganization(leads)
	require.Len(t, groups, 2)
	assert.Equal(t, "Acme", groups[0].Organization)
	assert.Len(t, groups[0].Subjects, 2)
	assert.Equal(t, catalog.UnknownOrganization, groups[1].Organization)
}

func TestRebuild(t *testing.T) {
	store := memory.NewStore()
	store.Seed("sales/leads/zeta", []byte(`{"name":"Zed","company":"Zeta Inc","flow":{"start":"a","nodes":{}}}`))
	store.Seed("sales/leads/acme", []byte(`{"slug":"ignored","name":"Ana Souza"}`))

	leads, err := catalog.Rebuild(context.Background(), store, store, "sales")
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, domain.SubjectSummary{Identity: "acme", Name: "Ana Souza"}, leads[0])
	assert.Equal(t, "Zeta Inc", leads[1].Organization)

	body, err := catalog.Encode(leads)
	require.NoError(t, err)
	parsed, err := catalog.Parse(body)
	require.NoError(t, err)
	assert.Equal(t, leads, parsed)
}
