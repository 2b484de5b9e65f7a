package settings

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/wxstatusd/internal/kv"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New(kv.NewMemoryBucket(BucketName), Defaults{CacheEnabled: true})
	require.NoError(t, err)

	assert.Equal(t, DefaultBlinkFrequency, s.BlinkFrequency())
	assert.True(t, s.CacheEnabled())
	assert.False(t, s.Debug())
}

func TestNew_RejectsBadDefault(t *testing.T) {
	_, err := New(kv.NewMemoryBucket(BucketName), Defaults{BlinkFrequency: 300})
	assert.ErrorIs(t, err, ErrInvalidBlinkFrequency)
}

func TestOverridesArePersisted(t *testing.T) {
	bucket := kv.NewMemoryBucket(BucketName)

	s, err := New(bucket, Defaults{BlinkFrequency: 5, CacheEnabled: true})
	require.NoError(t, err)
	require.NoError(t, s.SetBlinkFrequency(12))
	require.NoError(t, s.SetCacheEnabled(false))

	reloaded, err := New(bucket, Defaults{BlinkFrequency: 5, CacheEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 12, reloaded.BlinkFrequency())
	assert.False(t, reloaded.CacheEnabled())
}

func TestSetBlinkFrequency_Range(t *testing.T) {
	s, err := New(kv.NewMemoryBucket(BucketName), Defaults{})
	require.NoError(t, err)

	for _, bad := range []int{0, -1, 256} {
		assert.ErrorIs(t, s.SetBlinkFrequency(bad), ErrInvalidBlinkFrequency)
	}
	assert.Equal(t, DefaultBlinkFrequency, s.BlinkFrequency())

	require.NoError(t, s.SetBlinkFrequency(1))
	require.NoError(t, s.SetBlinkFrequency(255))
	assert.Equal(t, 255, s.BlinkFrequency())
}

func TestOnCacheToggle(t *testing.T) {
	s, err := New(kv.NewMemoryBucket(BucketName), Defaults{CacheEnabled: true})
	require.NoError(t, err)

	var seen []bool
	s.OnCacheToggle(func(enabled bool) { seen = append(seen, enabled) })

	require.NoError(t, s.SetCacheEnabled(true)) // unchanged
	require.NoError(t, s.SetCacheEnabled(false))
	require.NoError(t, s.SetCacheEnabled(true))
	assert.Equal(t, []bool{false, true}, seen)
}

func TestSetDebug_RestoresLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	s, err := New(kv.NewMemoryBucket(BucketName), Defaults{LogLevel: zerolog.WarnLevel})
	require.NoError(t, err)

	require.NoError(t, s.SetDebug(true))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	require.NoError(t, s.SetDebug(false))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestApply_ValidatesFirst(t *testing.T) {
	s, err := New(kv.NewMemoryBucket(BucketName), Defaults{CacheEnabled: true})
	require.NoError(t, err)

	bad := 0
	off := false
	err = s.Apply(Update{BlinkFrequency: &bad, CacheEnabled: &off})
	assert.ErrorIs(t, err, ErrInvalidBlinkFrequency)
	assert.True(t, s.CacheEnabled(), "nothing applied on validation failure")

	freq := 9
	require.NoError(t, s.Apply(Update{BlinkFrequency: &freq, CacheEnabled: &off}))
	assert.Equal(t, Values{BlinkFrequency: 9, CacheEnabled: false}, s.Values())
}
