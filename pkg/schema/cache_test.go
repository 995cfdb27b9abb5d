package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirpath-go/fhirpath/pkg/schema"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

func TestCacheSetAndGet(t *testing.T) {
	c := schema.New(schema.WithHotCapacity(2), schema.WithWarmCapacity(2), schema.WithColdCapacity(4))
	defer c.Close()

	info := types.NewClassInfo("FHIR", "Patient", nil)
	c.Set("Patient", info)

	got, ok := c.Get("Patient")
	require.True(t, ok)
	assert.Equal(t, "Patient", got.Name)
}

func TestCacheMiss(t *testing.T) {
	c := schema.New()
	defer c.Close()

	_, ok := c.Get("NoSuchType")
	assert.False(t, ok)
}

func TestCachePromotionToWarmAndHot(t *testing.T) {
	c := schema.New(schema.WithHotCapacity(1), schema.WithWarmCapacity(1), schema.WithPromotionThreshold(2))
	defer c.Close()

	c.Set("Patient", types.NewClassInfo("FHIR", "Patient", nil))

	// First Get promotes cold -> warm.
	_, ok := c.Get("Patient")
	require.True(t, ok)

	// Enough repeated warm hits promote it into the lock-free hot tier.
	for i := 0; i < 3; i++ {
		_, ok = c.Get("Patient")
		require.True(t, ok)
	}
}

func TestCacheInvalidateMakesEntryStale(t *testing.T) {
	c := schema.New()
	defer c.Close()

	c.Set("Patient", types.NewClassInfo("FHIR", "Patient", nil))
	_, ok := c.Get("Patient")
	require.True(t, ok)

	c.Invalidate()
	_, ok = c.Get("Patient")
	assert.False(t, ok, "expected a version-stale entry to read as a miss")
}

func TestCacheColdTTLExpiry(t *testing.T) {
	c := schema.New(schema.WithColdTTL(1 * time.Nanosecond))
	defer c.Close()

	c.Set("Patient", types.NewClassInfo("FHIR", "Patient", nil))
	time.Sleep(time.Millisecond)

	_, ok := c.Get("Patient")
	assert.False(t, ok, "expected cold entry past its TTL to be treated as absent")
}

func TestTrackerRecordsAccessCounts(t *testing.T) {
	tr := schema.NewTracker(100, time.Minute)
	tr.Record("Patient")
	tr.Record("Patient")
	tr.Record("HumanName")

	assert.Equal(t, int64(2), tr.AccessCount("Patient"))
	assert.Equal(t, int64(1), tr.AccessCount("HumanName"))
	assert.Equal(t, int64(0), tr.AccessCount("Unseen"))
}

func TestTrackerRelatedToCoOccurrence(t *testing.T) {
	tr := schema.NewTracker(100, time.Minute)
	tr.Record("Patient")
	tr.Record("HumanName")
	tr.Record("Address")

	related := tr.RelatedTo("Patient")
	assert.Contains(t, related, "HumanName")
	assert.Contains(t, related, "Address")
	assert.NotContains(t, related, "Patient", "a type should never be related to itself")
}
