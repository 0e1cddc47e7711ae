package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesmith/internal/browser"
	"tunesmith/internal/browser/browsertest"
)

func TestCheckHealthReportsEachGroup(t *testing.T) {
	session := browsertest.New(browser.SiteGenerator)
	session.Element("prompt_input")
	session.Element("project_card")

	results := browser.CheckHealth(context.Background(), session, []browser.HealthCheck{
		{Group: "prompt_input", URL: "https://gen.test/create"},
		{Group: "generate_button", URL: "https://gen.test/create"},
		{Group: "project_card", URL: "https://gen.test/home"},
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.Equal(t, "fake:prompt_input", results[0].Locator)
	assert.False(t, results[1].OK)
	assert.Equal(t, "no candidate visible", results[1].Error)
	assert.True(t, results[2].OK)
	assert.Equal(t, browser.SiteGenerator, results[2].Site)
	assert.Equal(t, []string{"https://gen.test/create", "https://gen.test/home"}, session.Visited())
}

func TestCheckHealthFailsChecksOnUnreachablePage(t *testing.T) {
	session := browsertest.New(browser.SiteDistributor)
	session.Element("dk_title")
	session.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	results := browser.CheckHealth(context.Background(), session, []browser.HealthCheck{
		{Group: "dk_title", URL: "https://dist.test/new"},
		{Group: "dk_submit", URL: "https://dist.test/new"},
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.OK)
		assert.Contains(t, r.Error, "page did not load")
	}
}
