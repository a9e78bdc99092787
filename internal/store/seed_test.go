package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompetitorsCSV(t *testing.T) {
	t.Parallel()

	csv := "name,URL\nAcme,https://acme.test/\nGlobex,https://globex.test/\nNoURL,\n"
	competitors, err := ParseCompetitorsCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, competitors, 2, "rows without a url are skipped")
	assert.Equal(t, "Acme", competitors[0].Name)
	assert.Equal(t, "https://globex.test/", competitors[1].URL)
}

func TestParseCompetitorsCSVMissingColumn(t *testing.T) {
	t.Parallel()

	_, err := ParseCompetitorsCSV(strings.NewReader("name\nAcme\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestParseKeywordsCSV(t *testing.T) {
	t.Parallel()

	csv := "Keyword,Patent\ngold shilajit,US1234\nshilajit resin,\n,US0000\n"
	keywords, err := ParseKeywordsCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, keywords, 2, "rows without a phrase are skipped")
	assert.Equal(t, "gold shilajit", keywords[0].Phrase)
	assert.Equal(t, "US1234", keywords[0].Patent)
	assert.Empty(t, keywords[1].Patent)
}

func TestParseKeywordsCSVWithoutPatentColumn(t *testing.T) {
	t.Parallel()

	keywords, err := ParseKeywordsCSV(strings.NewReader("keyword\ngold shilajit\n"))
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Empty(t, keywords[0].Patent)
}

func TestParseEmptyCSV(t *testing.T) {
	t.Parallel()

	_, err := ParseCompetitorsCSV(strings.NewReader(""))
	require.Error(t, err)
}
