package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

func TestMemoryRoomCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss, set and bounded append", func(t *testing.T) {
		r := require.New(t)
		c := NewMemoryRoomCache(Options{Limit: 2, TTL: time.Minute})

		_, err := c.GetRecent(ctx, "general")
		r.ErrorIs(err, ErrCacheMiss)
		r.ErrorIs(c.Append(ctx, "general", message("general", 1)), ErrCacheMiss)

		r.NoError(c.SetRecent(ctx, "general", nil))
		r.NoError(c.Append(ctx, "general", message("general", 1)))
		r.NoError(c.Append(ctx, "general", message("general", 2)))
		r.NoError(c.Append(ctx, "general", message("general", 3)))

		got, err := c.GetRecent(ctx, "general")
		r.NoError(err)
		r.Equal([]string{"m002", "m003"}, ids(got))

		r.NoError(c.Invalidate(ctx, "general"))
		_, err = c.GetRecent(ctx, "general")
		r.ErrorIs(err, ErrCacheMiss)
	})

	t.Run("append refreshes the ttl", func(t *testing.T) {
		r := require.New(t)
		c := NewMemoryRoomCache(Options{TTL: 300 * time.Millisecond})

		r.NoError(c.SetRecent(ctx, "general", nil))
		time.Sleep(180 * time.Millisecond)
		r.NoError(c.Append(ctx, "general", message("general", 1)))
		time.Sleep(180 * time.Millisecond)

		got, err := c.GetRecent(ctx, "general")
		r.NoError(err)
		r.Len(got, 1)

		r.Eventually(func() bool {
			_, err := c.GetRecent(ctx, "general")
			return errors.Is(err, ErrCacheMiss)
		}, time.Second, 20*time.Millisecond)
		r.ErrorIs(c.Append(ctx, "general", message("general", 2)), ErrCacheMiss)
	})

	t.Run("least recently used room is evicted", func(t *testing.T) {
		r := require.New(t)
		c := NewMemoryRoomCache(Options{MaxRooms: 2})

		r.NoError(c.SetRecent(ctx, "a", nil))
		r.NoError(c.SetRecent(ctx, "b", nil))
		r.NoError(c.SetRecent(ctx, "c", nil))

		_, err := c.GetRecent(ctx, "a")
		r.ErrorIs(err, ErrCacheMiss)
		_, err = c.GetRecent(ctx, "c")
		r.NoError(err)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		r := require.New(t)
		c := NewMemoryRoomCache(Options{})
		r.NoError(c.SetRecent(ctx, "general", []domain.ChatMessage{message("general", 1)}))

		got, err := c.GetRecent(ctx, "general")
		r.NoError(err)
		got[0].Message = "tampered"

		again, err := c.GetRecent(ctx, "general")
		r.NoError(err)
		r.Equal("hello 1", again[0].Message)
	})

	t.Run("presence mirror", func(t *testing.T) {
		r := require.New(t)
		c := NewMemoryRoomCache(Options{})

		r.NoError(c.AddMember(ctx, "general", "alice"))
		r.NoError(c.AddMember(ctx, "general", "bob"))
		r.NoError(c.RemoveMember(ctx, "general", "alice"))
		r.NoError(c.RemoveUser(ctx, "alice"))

		room, total := c.Members("general")
		r.Equal(1, room)
		r.Equal(1, total)
	})
}
