package query

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/api/internal/lifecycle"
)

func at(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time {
	return &t
}

func fixtures() []lifecycle.Document {
	return []lifecycle.Document{
		{ID: "1", Name: "Acme onboarding", State: lifecycle.StateSent, CreatedAt: at("2024-01-05T09:00:00Z"), DueDate: ptr(at("2024-01-31T00:00:00Z"))},
		{ID: "2", Name: "Quarterly review", State: lifecycle.StateDraft, CreatedAt: at("2024-01-10T23:59:00Z"),
			Assignment: lifecycle.Assignment{RecipientName: "Jane ACME", RecipientEmail: "jane@acme.io"}},
		{ID: "3", Name: "Exit survey", State: lifecycle.StateCompleted, CreatedAt: at("2024-02-01T00:00:00Z"), CompletedAt: ptr(at("2024-02-03T10:00:00Z"))},
		{ID: "4", Name: "Renewal", State: lifecycle.StateOverdue, CreatedAt: at("2024-01-10T00:00:00Z"),
			Assignment: lifecycle.Assignment{RecipientEmail: "ops@example.com"}},
	}
}

func identity(doc lifecycle.Document) lifecycle.Document {
	return doc
}

func docIDs(docs []lifecycle.Document) []string {
	out := []string{}
	for _, doc := range docs {
		out = append(out, doc.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	jan10 := at("2024-01-10T00:00:00Z")
	jan31 := at("2024-01-31T00:00:00Z")
	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"empty query keeps everything", Query{}, []string{"1", "2", "3", "4"}},
		{"text matches name and recipient case-insensitively", Query{Text: "acme"}, []string{"1", "2"}},
		{"text matches email", Query{Text: "EXAMPLE.COM"}, []string{"4"}},
		{"state set", Query{States: []lifecycle.State{lifecycle.StateSent, lifecycle.StateOverdue}}, []string{"1", "4"}},
		{"single day shorthand", Query{Dates: []DateRange{{Field: FieldCreated, From: jan10}}}, []string{"2", "4"}},
		{"inclusive range", Query{Dates: []DateRange{{Field: FieldCreated, From: at("2024-01-05T00:00:00Z"), To: &jan10}}}, []string{"1", "2", "4"}},
		{"missing date never matches", Query{Dates: []DateRange{{Field: FieldDue, From: jan31}}}, []string{"1"}},
		{"predicates compose", Query{Text: "acme", States: []lifecycle.State{lifecycle.StateDraft}}, []string{"2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(fixtures(), tc.q, identity)
			assert.Equal(t, tc.want, docIDs(got))
		})
	}
}

func TestApplyPaginatesAfterFiltering(t *testing.T) {
	page := Apply(fixtures(), Query{States: []lifecycle.State{lifecycle.StateSent, lifecycle.StateDraft, lifecycle.StateOverdue}, Page: 2, PageSize: 2}, identity)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"4"}, docIDs(page.Items))

	beyond := Apply(fixtures(), Query{Page: 9, PageSize: 2}, identity)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 4, beyond.Total)
}

func TestFromValuesRoundTrip(t *testing.T) {
	values, err := url.ParseQuery("q=acme&state=sent,overdue&created=2024-01-01..2024-01-31&due=2024-02-01&page=2&pageSize=10")
	require.NoError(t, err)

	q, err := FromValues(values, []lifecycle.State{lifecycle.StateSent, lifecycle.StateOverdue})
	require.NoError(t, err)
	assert.Equal(t, "acme", q.Text)
	assert.Equal(t, []lifecycle.State{lifecycle.StateSent, lifecycle.StateOverdue}, q.States)
	require.Len(t, q.Dates, 2)
	assert.Equal(t, FieldCreated, q.Dates[0].Field)
	assert.NotNil(t, q.Dates[0].To)
	assert.Nil(t, q.Dates[1].To)

	again, err := FromValues(q.Values(), nil)
	require.NoError(t, err)
	assert.Equal(t, q.Values(), again.Values())
}

func TestFromValuesErrors(t *testing.T) {
	cases := []string{
		"state=shipped",
		"created=yesterday",
		"due=2024-02-10..2024-02-01",
		"page=-1",
	}
	for _, raw := range cases {
		values, err := url.ParseQuery(raw)
		require.NoError(t, err)
		_, err = FromValues(values, []lifecycle.State{lifecycle.StateDraft})
		assert.Error(t, err, raw)
	}
}

func TestApplyPageBeyondEndIsEmpty(t *testing.T) {
	for _, raw := range []string{"3", "500000000000000000", "9223372036854775807"} {
		q, err := FromValues(url.Values{"page": {raw}, "pageSize": {"2"}}, nil)
		require.NoError(t, err)
		var page Page[lifecycle.Document]
		require.NotPanics(t, func() { page = Apply(fixtures(), q, identity) }, "page=%s", raw)
		assert.Empty(t, page.Items, "page=%s", raw)
		assert.Equal(t, 4, page.Total)
	}
}
