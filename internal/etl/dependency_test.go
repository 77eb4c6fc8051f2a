package etl

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"pgregory.net/rapid"
)

type helperT interface {
	require.TestingT
	Helper()
}

func mustPrepare(t helperT, translations ...*models.TableTranslation) []*unit {
	t.Helper()
	units := make([]*unit, 0, len(translations))
	for _, tt := range translations {
		u, err := prepare(tt)
		require.NoError(t, err)
		units = append(units, u)
	}
	return units
}

func unitLabels(units []*unit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.FromTable)
	}
	return out
}

func TestOrderUnits(t *testing.T) {
	t.Parallel()

	translator := func(coll string) *models.ColumnTranslation {
		return models.Translated("ownerId", &models.Translator{SourceCollection: coll, SourceIDField: "_legacyId"})
	}

	tests := []struct {
		name         string
		translations []*models.TableTranslation
		wantOrder    []string
		wantErr      error
		wantChain    []string
	}{
		{
			name: "independent units keep input order",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "a"},
				{FromSchema: "public", FromTable: "b"},
			},
			wantOrder: []string{"a", "b"},
		},
		{
			name: "translator source runs first",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "posts", Columns: map[string]*models.ColumnTranslation{"owner_id": translator("users")}},
				{FromSchema: "public", FromTable: "users"},
			},
			wantOrder: []string{"users", "posts"},
		},
		{
			name: "embed waits for parent collection",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "user_tags", ToCollection: "users", EmbedIn: "tags", EmbedSourceIDColumn: "user_id"},
				{FromSchema: "public", FromTable: "users"},
			},
			wantOrder: []string{"users", "user_tags"},
		},
		{
			name: "several embeds share a parent in input order",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "profiles", ToCollection: "users", EmbedIn: "profile", EmbedSingle: true, EmbedSourceIDColumn: "user_id"},
				{FromSchema: "public", FromTable: "users"},
				{FromSchema: "public", FromTable: "user_tags", ToCollection: "users", EmbedIn: "tags", EmbedSourceIDColumn: "user_id"},
			},
			wantOrder: []string{"users", "profiles", "user_tags"},
		},
		{
			name: "deep embed depends on the unit embedding its parent path",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "order_lines", ToCollection: "users", EmbedIn: "orders.lines", EmbedSourceIDColumn: "order_id", OnPersist: noopPersist},
				{FromSchema: "public", FromTable: "orders", ToCollection: "users", EmbedIn: "orders", EmbedSourceIDColumn: "user_id"},
				{FromSchema: "public", FromTable: "users"},
			},
			wantOrder: []string{"users", "orders", "order_lines"},
		},
		{
			name: "units sharing a collection merge their dependencies",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "people", ToCollection: "contacts"},
				{FromSchema: "public", FromTable: "companies", ToCollection: "contacts", AddedDependencies: []string{"regions"}},
				{FromSchema: "public", FromTable: "regions"},
			},
			wantOrder: []string{"regions", "people", "companies"},
		},
		{
			name: "unknown dependencies are treated as existing collections",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "a", AddedDependencies: []string{"legacy"}},
			},
			wantOrder: []string{"a"},
		},
		{
			name: "ignored dependencies still run",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "a", IgnoreDependencies: true, AddedDependencies: []string{"b"}},
				{FromSchema: "public", FromTable: "b", AddedDependencies: []string{"a"}},
			},
			wantOrder: []string{"a", "b"},
		},
		{
			name: "cycle",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "a", AddedDependencies: []string{"b"}},
				{FromSchema: "public", FromTable: "b", AddedDependencies: []string{"c"}},
				{FromSchema: "public", FromTable: "c", AddedDependencies: []string{"a"}},
			},
			wantErr:   ErrConfig,
			wantChain: []string{"a", "b", "c", "a"},
		},
		{
			name: "self dependency",
			translations: []*models.TableTranslation{
				{FromSchema: "public", FromTable: "a", AddedDependencies: []string{"a"}},
			},
			wantErr:   ErrConfig,
			wantChain: []string{"a", "a"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := orderUnits(mustPrepare(t, tc.translations...))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				var cycleErr *CycleError
				require.ErrorAs(t, err, &cycleErr)
				require.Equal(t, tc.wantChain, cycleErr.Chain)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantOrder, unitLabels(got))
		})
	}
}

func TestOrderUnits_AcyclicProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		deps := make([][]string, n)
		for i := 1; i < n; i++ {
			// only point at lower indexes so the graph stays acyclic
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", i, j)) {
					deps[i] = append(deps[i], fmt.Sprintf("t%d", j))
				}
			}
		}
		perm := rapid.Permutation(indexes(n)).Draw(t, "order")

		translations := make([]*models.TableTranslation, 0, n)
		for _, i := range perm {
			translations = append(translations, &models.TableTranslation{
				FromSchema:        "public",
				FromTable:         fmt.Sprintf("t%d", i),
				AddedDependencies: deps[i],
			})
		}

		first, err := orderUnits(mustPrepare(t, translations...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := orderUnits(mustPrepare(t, translations...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		order := unitLabels(first)
		if !slices.Equal(order, unitLabels(second)) {
			t.Fatalf("order is not deterministic: %v vs %v", order, unitLabels(second))
		}
		if len(order) != n {
			t.Fatalf("expected %d units, got %d", n, len(order))
		}
		for _, u := range first {
			pos := slices.Index(order, u.FromTable)
			for _, d := range u.AddedDependencies {
				if slices.Index(order, d) > pos {
					t.Fatalf("%s runs before its dependency %s: %v", u.FromTable, d, order)
				}
			}
		}
	})
}

func TestOrderUnits_CycleProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		perm := rapid.Permutation(indexes(n)).Draw(t, "order")

		translations := make([]*models.TableTranslation, 0, n)
		for _, i := range perm {
			translations = append(translations, &models.TableTranslation{
				FromSchema:        "public",
				FromTable:         fmt.Sprintf("t%d", i),
				AddedDependencies: []string{fmt.Sprintf("t%d", (i+1)%n)},
			})
		}

		got, err := orderUnits(mustPrepare(t, translations...))
		if err == nil {
			t.Fatalf("expected a cycle error, got order %v", unitLabels(got))
		}
		var cycleErr *CycleError
		if !errors.As(err, &cycleErr) {
			t.Fatalf("expected CycleError, got %v", err)
		}
		chain := cycleErr.Chain
		if chain[0] != chain[len(chain)-1] {
			t.Fatalf("chain does not close: %v", chain)
		}
		if got != nil {
			t.Fatalf("partial order returned: %v", unitLabels(got))
		}
	})
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
