package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schwabgw/internal/schwab"
	"schwabgw/internal/testutils"
)

func sampleRecord() TokenRecord {
	state := "state-1"
	return TokenRecord{
		Code:    "code-1",
		State:   &state,
		Tokens:  schwab.TokenPayload{"access_token": "a", "refresh_token": "r", "expires_in": 1800.0},
		SavedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFileSinkWritesRecord(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.Path(".schwab_tokens.json")

	require.NoError(t, NewFileSink(path).Save(context.Background(), sampleRecord()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var got map[string]any
	require.NoError(t, json.Unmarshal(testutils.ReadTestFile(t, path), &got))
	assert.Equal(t, "code-1", got["code"])
	assert.Equal(t, "state-1", got["state"])
	assert.Equal(t, "r", got["tokens"].(map[string]any)["refresh_token"])
	assert.Equal(t, "2024-01-01T00:00:00Z", got["saved_at"])
}

func TestFileSinkWritesNullState(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.Path(".schwab_tokens.json")

	rec := sampleRecord()
	rec.State = nil
	require.NoError(t, NewFileSink(path).Save(context.Background(), rec))

	var got map[string]any
	require.NoError(t, json.Unmarshal(testutils.ReadTestFile(t, path), &got))
	require.Contains(t, got, "state")
	assert.Nil(t, got["state"])
}

func TestFileSinkOverwrites(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.CreateTempFile("tokens.json", "old")

	rec := sampleRecord()
	rec.Code = "code-2"
	require.NoError(t, NewFileSink(path).Save(context.Background(), rec))
	assert.Contains(t, string(testutils.ReadTestFile(t, path)), `"code-2"`)

	entries, err := os.ReadDir(suite.TempDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileSinkUnwritableDirectory(t *testing.T) {
	err := NewFileSink(filepath.Join(t.TempDir(), "missing", "tokens.json")).Save(context.Background(), sampleRecord())
	assert.Error(t, err)
}

func TestDefaultPaths(t *testing.T) {
	assert.Equal(t, DefaultTokenFile, NewFileSink("").Path)
	assert.Equal(t, ".env", NewEnvFileRotator("").Path)
}

type failingSink struct{ err error }

func (f failingSink) Save(context.Context, TokenRecord) error { return f.err }

type countingSink struct{ n int }

func (c *countingSink) Save(context.Context, TokenRecord) error { c.n++; return nil }

func TestMultiSinkJoinsErrors(t *testing.T) {
	counter := &countingSink{}
	boom := fmt.Errorf("boom")
	sink := MultiSink{failingSink{boom}, counter, failingSink{fmt.Errorf("bang")}}

	err := sink.Save(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bang")
	assert.Equal(t, 1, counter.n, "later sinks still run")

	assert.NoError(t, MultiSink{counter}.Save(context.Background(), sampleRecord()))
}

func TestEnvFileRotatorReplacesLine(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.CreateTempFile(".env", "# credentials\nSCHWAB_CLIENT_ID=abc\nSCHWAB_REFRESH_TOKEN=old\nOTHER=1")

	updated, err := NewEnvFileRotator(path).RotateRefreshToken(context.Background(), "new-token")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "# credentials\nSCHWAB_CLIENT_ID=abc\nSCHWAB_REFRESH_TOKEN=new-token\nOTHER=1\n",
		string(testutils.ReadTestFile(t, path)))
}

func TestEnvFileRotatorAppendsWhenAbsent(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.CreateTempFile(".env", "SCHWAB_CLIENT_ID=abc\n")

	updated, err := NewEnvFileRotator(path).RotateRefreshToken(context.Background(), "new-token")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "SCHWAB_CLIENT_ID=abc\nSCHWAB_REFRESH_TOKEN=new-token\n", string(testutils.ReadTestFile(t, path)))
}

func TestEnvFileRotatorLeavesLookalikes(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.CreateTempFile(".env", "SCHWAB_REFRESH_TOKEN_OLD=keep\r\nSCHWAB_REFRESH_TOKEN=old\r\n")

	_, err := NewEnvFileRotator(path).RotateRefreshToken(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "SCHWAB_REFRESH_TOKEN_OLD=keep\nSCHWAB_REFRESH_TOKEN=new\n", string(testutils.ReadTestFile(t, path)))
}

func TestEnvFileRotatorMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	updated, err := NewEnvFileRotator(path).RotateRefreshToken(context.Background(), "new")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.False(t, testutils.FileExists(path))
}

func TestEnvFileRotatorEmptyToken(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	path := suite.CreateTempFile(".env", "SCHWAB_REFRESH_TOKEN=old\n")

	updated, err := NewEnvFileRotator(path).RotateRefreshToken(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "SCHWAB_REFRESH_TOKEN=old\n", string(testutils.ReadTestFile(t, path)))
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("GATEWAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GATEWAY_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	sink, err := NewRedisSink(ctx, RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Save(ctx, sampleRecord()))
	rec, err := sink.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "code-1", rec.Code)
	assert.Equal(t, "r", rec.Tokens.RefreshToken())
}

func TestRedisSinkUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisSink(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
