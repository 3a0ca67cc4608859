package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutAndLatest(t *testing.T) {
	c := New()
	now := time.Unix(1000, 0)

	fv := c.Put("report.pdf", 12, "application/pdf", []ChunkLocation{{Index: 0, PartitionID: 3, Key: []byte("k0")}}, now)
	require.Equal(t, 1, fv.Version)

	latest, err := c.Latest("report.pdf")
	require.NoError(t, err)
	require.Equal(t, fv, latest)
}

func TestPut_SecondVersionIncrements(t *testing.T) {
	c := New()
	now := time.Unix(1000, 0)

	c.Put("report.pdf", 12, "application/pdf", nil, now)
	second := c.Put("report.pdf", 20, "application/pdf", nil, now.Add(time.Minute))

	require.Equal(t, 2, second.Version)

	latest, err := c.Latest("report.pdf")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
}

func TestVersion_SpecificLookup(t *testing.T) {
	c := New()
	now := time.Unix(1000, 0)
	c.Put("report.pdf", 12, "application/pdf", nil, now)
	c.Put("report.pdf", 20, "application/pdf", nil, now)

	fv, err := c.Version("report.pdf", 1)
	require.NoError(t, err)
	require.Equal(t, int64(12), fv.TotalSize)

	_, err = c.Version("report.pdf", 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLatest_UnknownFile(t *testing.T) {
	c := New()
	_, err := c.Latest("missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	c := New()
	c.Put("report.pdf", 12, "application/pdf", nil, time.Unix(1000, 0))

	require.NoError(t, c.Delete("report.pdf"))
	_, err := c.Latest("report.pdf")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, c.Delete("report.pdf"), ErrNotFound)
}

func TestList_ReturnsLatestPerFile(t *testing.T) {
	c := New()
	now := time.Unix(1000, 0)
	c.Put("a.txt", 1, "text/plain", nil, now)
	c.Put("b.txt", 2, "text/plain", nil, now)
	c.Put("a.txt", 3, "text/plain", nil, now)

	list := c.List()
	require.Len(t, list, 2)

	byName := map[string]FileVersion{}
	for _, fv := range list {
		byName[fv.Name] = fv
	}
	require.Equal(t, 2, byName["a.txt"].Version)
	require.Equal(t, 1, byName["b.txt"].Version)
}
