package idgen

import (
	"sort"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, kind := range []string{"", KindULID, KindKSUID, KindNanoID, KindCUID2, KindUUID} {
		t.Run("kind "+kind, func(t *testing.T) {
			r := require.New(t)
			gen, err := New(kind)
			r.NoError(err)

			seen := make(map[string]struct{})
			for i := 0; i < 100; i++ {
				id, err := gen.Generate()
				r.NoError(err)
				valid, reason := gen.Validate(id)
				r.True(valid, reason)
				seen[id] = struct{}{}
			}
			r.Len(seen, 100)
		})
	}

	_, err := New("snowflake")
	require.Error(t, err)
}

func TestULIDGenerator_SortsInGenerationOrder(t *testing.T) {
	r := require.New(t)
	gen := NewULIDGenerator()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gen.now = func() time.Time { return fixed }

	ids := make([]string, 500)
	for i := range ids {
		id, err := gen.Generate()
		r.NoError(err)
		ids[i] = id
	}

	r.True(sort.StringsAreSorted(ids))
	parsed, err := ulid.ParseStrict(ids[0])
	r.NoError(err)
	r.Equal(ulid.Timestamp(fixed), parsed.Time())
}

func TestValidateRejects(t *testing.T) {
	nano, err := NewNanoIDGenerator(8, "ab")
	require.NoError(t, err)

	tests := []struct {
		name string
		gen  Generator
		id   string
	}{
		{"ulid too short", NewULIDGenerator(), "01ARZ3NDEK"},
		{"ulid bad alphabet", NewULIDGenerator(), "01ARZ3NDEKTSV4RRFFQ69G5FA!"},
		{"ksuid length", NewKSUIDGenerator(), "abc"},
		{"nanoid alphabet", nano, "abababac"},
		{"uuid garbage", NewUUIDGenerator(), "not-a-uuid"},
		{"uuid wrong version", NewUUIDGenerator(), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := tt.gen.Validate(tt.id)
			require.False(t, valid)
			require.NotEmpty(t, reason)
		})
	}
}

func TestGeneratorOptions(t *testing.T) {
	_, err := NewNanoIDGenerator(0, DefaultNanoIDAlphabet)
	require.Error(t, err)
	_, err = NewNanoIDGenerator(10, "a")
	require.Error(t, err)
	_, err = NewCUID2Generator(1)
	require.Error(t, err)
	_, err = NewCUID2Generator(33)
	require.Error(t, err)
}
