package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/answer"
	"github.com/Mickaeljc/app-bofip/internal/config"
	"github.com/Mickaeljc/app-bofip/internal/kb"
	"github.com/Mickaeljc/app-bofip/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30d", formatDuration(30*24*time.Hour))
	assert.Equal(t, "1d", formatDuration(36*time.Hour))
	assert.Equal(t, "12h", formatDuration(12*time.Hour))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ask", "sync", "stats", "clear", "history", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	prune, _, err := rootCmd.Find([]string{"history", "prune"})
	require.NoError(t, err)
	assert.Equal(t, "prune", prune.Name())
	assert.NotNil(t, prune.Flags().Lookup("older-than"))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		API:       config.APIConfig{URL: "https://example.com/records", PageSize: 50},
		Fields:    config.FieldsConfig{Title: "titre", Description: "resume", Subject: "theme"},
		Knowledge: config.KnowledgeConfig{Keywords: []string{"TVA"}, Filter: true, Template: "short"},
		Cache:     config.CacheConfig{Path: filepath.Join(t.TempDir(), "bofip_data.json")},
	}
}

func TestNewAppWiresConfig(t *testing.T) {
	cfg := testConfig(t)

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, cfg.Cache.Path, a.store.Path())
	assert.Equal(t, kb.TemplateShort, a.build.Template)
	assert.Nil(t, a.history)
	assert.Nil(t, a.recorder())
	assert.Zero(t, a.answerTimeout())

	// the configured field names drive the snapshot format
	require.NoError(t, a.store.Save(store.Dataset{
		Records:  []store.Record{{Title: store.Str("A"), Subject: store.Str("TVA")}},
		Complete: true,
	}))
	out := a.pipeline.Prepare(context.Background(), false)
	assert.True(t, out.FromCache)
	require.Len(t, out.KB, 1)
	assert.Equal(t, "Titre: A\nDescription: Description indisponible", out.KB[0].Content)
}

func TestNewAppRejectsUnknownTemplate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Knowledge.Template = "verbose"

	_, err := newApp(cfg)
	assert.Error(t, err)
}

func TestAnswererWithoutAIStillServesSentinels(t *testing.T) {
	a, err := newApp(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	ans := a.answerer()
	got, err := ans.Answer(context.Background(), " ", kb.KnowledgeBase{{Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, answer.InvalidQuestion, got)

	_, err = ans.Answer(context.Background(), "Taux ?", kb.KnowledgeBase{{Content: "x"}})
	assert.Error(t, err)
}
