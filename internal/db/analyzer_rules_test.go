package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzerRuleListByProfileVersion_ParsesCitationsArray(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	ruleDB := NewAnalyzerRuleDB(sqlDB)
	rows := sqlmock.NewRows([]string{"id", "profile_version", "kind", "name", "pattern", "severity", "citations"}).
		AddRow("rule1", "v1", "deadline", "30-day response", `\d{2}-day`, "high", "{\"Fed. R. Civ. P. 12\",\"Local Rule 7\"}")

	mock.ExpectQuery("SELECT (.+) FROM analyzer_rules WHERE profile_version").
		WithArgs("v1").WillReturnRows(rows)

	rules, err := ruleDB.ListByProfileVersion(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "rule1", rules[0].ID)
	assert.Equal(t, []string{"Fed. R. Civ. P. 12", "Local Rule 7"}, rules[0].Citations)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyzerRuleListByProfileVersion_EmptyResultSetReturnsNilSlice(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	ruleDB := NewAnalyzerRuleDB(sqlDB)
	mock.ExpectQuery("SELECT (.+) FROM analyzer_rules WHERE profile_version").
		WithArgs("v999").WillReturnRows(sqlmock.NewRows([]string{"id", "profile_version", "kind", "name", "pattern", "severity", "citations"}))

	rules, err := ruleDB.ListByProfileVersion(context.Background(), "v999")
	require.NoError(t, err)
	assert.Empty(t, rules)
	require.NoError(t, mock.ExpectationsWereMet())
}
