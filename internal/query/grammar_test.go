package query

import (
	"testing"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStepPage(t *testing.T) {
	cond, err := ParseStep("page:/pricing")
	require.NoError(t, err)
	assert.True(t, cond(models.Event{Pathname: "/pricing"}))
	assert.False(t, cond(models.Event{Pathname: "/other"}))
}

func TestParseStepEvent(t *testing.T) {
	cond, err := ParseStep("event:signup")
	require.NoError(t, err)
	assert.True(t, cond(models.Event{EventName: "signup"}))
}

func TestParseStepRejectsUnknownPrefix(t *testing.T) {
	_, err := ParseStep("href:/pricing")
	assert.Error(t, err)
}

func TestParseStepRejectsMissingColon(t *testing.T) {
	_, err := ParseStep("pricing")
	assert.Error(t, err)
}

func TestParseStepEscapesValue(t *testing.T) {
	cond, err := ParseStep("page:it's-a-path")
	require.NoError(t, err)
	assert.True(t, cond(models.Event{Pathname: "it''s-a-path"}))
}

func TestParseWindowValid(t *testing.T) {
	d, err := ParseWindow("30 minutes")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	d, err = ParseWindow("1 day")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
}

func TestParseWindowRejectsOutOfRangeN(t *testing.T) {
	_, err := ParseWindow("0 minutes")
	assert.Error(t, err)

	_, err = ParseWindow("366 days")
	assert.Error(t, err)
}

func TestParseWindowRejectsUnknownUnit(t *testing.T) {
	_, err := ParseWindow("5 fortnights")
	assert.Error(t, err)
}

func TestParseWindowRejectsMalformed(t *testing.T) {
	_, err := ParseWindow("justanumber")
	assert.Error(t, err)
}
