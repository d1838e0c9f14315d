package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.jsonl.gz",
		`{"code":"save10","title":"10% off","type":"PERCENT","value":10,"maxDiscount":"500"}`,
		``,
		`{"code":"FLAT200","title":"Rs.200 off","type":"FLAT","value":"200.00","minOrder":1000}`,
	)
	b := writeGz(t, dir, "b.jsonl.gz",
		`{"id":"ship-1","code":"SHIPFREE","title":"Free shipping","type":"FREESHIP","globalUsageLimit":100}`,
	)

	got, bad, err := parseFiles(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Empty(t, bad)
	require.Len(t, got, 3)

	assert.Equal(t, "SAVE10", got[0].Code)
	assert.Equal(t, int64(10), got[0].Value)
	assert.EqualValues(t, 50000, got[0].MaxDiscount)
	assert.Equal(t, stableID("SAVE10"), got[0].ID)

	assert.Equal(t, coupon.TypeFlat, got[1].Type)
	assert.Equal(t, int64(20000), got[1].Value)
	assert.EqualValues(t, 100000, got[1].MinOrder)

	assert.Equal(t, "ship-1", got[2].ID)
	assert.Equal(t, int64(100), got[2].GlobalUsageLimit)
}

func TestParseFiles_Rejects(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.jsonl.gz",
		`{"code":"DUP","title":"x","type":"FLAT","value":"50"}`,
		`{"code":"BADPCT","title":"x","type":"PERCENT","value":"12.5"}`,
		`{"code":"OVER","title":"x","type":"PERCENT","value":150}`,
	)
	b := writeGz(t, dir, "b.jsonl.gz",
		`{"code":"dup","title":"again","type":"FLAT","value":"60"}`,
		`not json`,
	)

	got, bad, err := parseFiles(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DUP", got[0].Code)

	require.Len(t, bad, 4)
	lines := make(map[string][]int)
	for _, le := range bad {
		lines[filepath.Base(le.file)] = append(lines[filepath.Base(le.file)], le.line)
	}
	assert.ElementsMatch(t, []int{2, 3}, lines["a.jsonl.gz"])
	assert.ElementsMatch(t, []int{1, 2}, lines["b.jsonl.gz"])
}

func TestStableID(t *testing.T) {
	assert.Equal(t, stableID("SAVE10"), stableID("SAVE10"))
	assert.NotEqual(t, stableID("SAVE10"), stableID("SAVE20"))
}

func TestRun_NoFiles(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "*.gz"), "", true)
	require.ErrorContains(t, err, "no files match")
}
