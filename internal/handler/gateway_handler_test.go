package handler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/model"
)

func appRows(n int) []model.App {
	rows := make([]model.App, n)
	for i := range rows {
		rows[i] = model.App{AppID: fmt.Sprintf("app-%03d", i)}
	}
	return rows
}

func TestPageOf_PagesAreDisjoint(t *testing.T) {
	rows := appRows(appPageSize * 2)

	first := pageOf(rows, 1)
	second := pageOf(rows, 2)

	require.Len(t, first, appPageSize)
	require.Len(t, second, appPageSize)
	assert.Equal(t, "app-000", first[0].AppID)
	assert.Equal(t, fmt.Sprintf("app-%03d", appPageSize), second[0].AppID)

	seen := make(map[string]bool)
	for _, app := range first {
		seen[app.AppID] = true
	}
	for _, app := range second {
		assert.False(t, seen[app.AppID], "page 2 repeats %s from page 1", app.AppID)
	}
}

func TestPageOf_PartialAndEmptyPages(t *testing.T) {
	rows := appRows(appPageSize + 7)

	assert.Len(t, pageOf(rows, 1), appPageSize)
	assert.Len(t, pageOf(rows, 2), 7)
	assert.Empty(t, pageOf(rows, 3))
	assert.Empty(t, pageOf(nil, 1))
}
