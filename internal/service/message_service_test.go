package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisperbox/internal/models"
)

func confirmedReceiver() *userRepoStub {
	users := noopUserRepo()
	users.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, IsConfirmed: true}, nil
	}
	return users
}

func TestMessageService_Send(t *testing.T) {
	t.Parallel()

	t.Run("anonymous when no sender", func(t *testing.T) {
		t.Parallel()
		svc := NewMessageService(confirmedReceiver(), noopMessageRepo())

		message, err := svc.Send(context.Background(), nil, 2, "hello there")
		require.NoError(t, err)
		assert.True(t, message.IsAnonymous)
		assert.Nil(t, message.SenderID)
	})

	t.Run("identified when sender present", func(t *testing.T) {
		t.Parallel()
		svc := NewMessageService(confirmedReceiver(), noopMessageRepo())

		sender := uint(1)
		message, err := svc.Send(context.Background(), &sender, 2, "hello there")
		require.NoError(t, err)
		assert.False(t, message.IsAnonymous)
		require.NotNil(t, message.SenderID)
		assert.Equal(t, uint(1), *message.SenderID)
	})

	t.Run("cannot message yourself", func(t *testing.T) {
		t.Parallel()
		svc := NewMessageService(confirmedReceiver(), noopMessageRepo())

		sender := uint(2)
		_, err := svc.Send(context.Background(), &sender, 2, "hello me")
		assertAppErrorCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("unknown, frozen and unconfirmed receivers look identical", func(t *testing.T) {
		t.Parallel()
		receivers := []func(context.Context, uint) (*models.User, error){
			func(context.Context, uint) (*models.User, error) { return nil, nil },
			func(_ context.Context, id uint) (*models.User, error) {
				return &models.User{ID: id, IsConfirmed: true, IsDeleted: true}, nil
			},
			func(_ context.Context, id uint) (*models.User, error) {
				return &models.User{ID: id}, nil
			},
		}

		var messages []string
		for _, getByID := range receivers {
			users := noopUserRepo()
			users.getByIDFn = getByID
			svc := NewMessageService(users, noopMessageRepo())
			_, err := svc.Send(context.Background(), nil, 2, "hello")
			assertAppErrorCode(t, err, "NOT_FOUND")
			messages = append(messages, err.Error())
		}
		assert.Equal(t, messages[0], messages[1])
		assert.Equal(t, messages[0], messages[2])
	})

	t.Run("content bounds", func(t *testing.T) {
		t.Parallel()
		svc := NewMessageService(confirmedReceiver(), noopMessageRepo())

		_, err := svc.Send(context.Background(), nil, 2, "   ")
		assertAppErrorCode(t, err, "VALIDATION_ERROR")

		_, err = svc.Send(context.Background(), nil, 2, strings.Repeat("x", models.MessageMaxLen+1))
		assertAppErrorCode(t, err, "VALIDATION_ERROR")
	})
}

func TestMessageService_ListInbox_Pagination(t *testing.T) {
	t.Parallel()

	messages := noopMessageRepo()
	var gotLimit, gotOffset int
	messages.listInboxFn = func(_ context.Context, _ uint, limit, offset int) ([]models.Message, int64, error) {
		gotLimit, gotOffset = limit, offset
		return make([]models.Message, limit), 25, nil
	}
	svc := NewMessageService(noopUserRepo(), messages)

	t.Run("middle page", func(t *testing.T) {
		_, meta, err := svc.ListInbox(context.Background(), 1, 2, 10)
		require.NoError(t, err)
		assert.Equal(t, 10, gotLimit)
		assert.Equal(t, 10, gotOffset)
		assert.Equal(t, int64(25), meta.TotalMessages)
		assert.Equal(t, 3, meta.TotalPages)
		assert.Equal(t, 2, meta.CurrentPage)
		assert.True(t, meta.HasNextPage)
		assert.True(t, meta.HasPrevPage)
	})

	t.Run("last page", func(t *testing.T) {
		_, meta, err := svc.ListInbox(context.Background(), 1, 3, 10)
		require.NoError(t, err)
		assert.False(t, meta.HasNextPage)
		assert.True(t, meta.HasPrevPage)
	})

	t.Run("defaults and clamping", func(t *testing.T) {
		_, meta, err := svc.ListInbox(context.Background(), 1, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, meta.CurrentPage)
		assert.Equal(t, DefaultPageSize, meta.ItemsPerPage)
		assert.False(t, meta.HasPrevPage)

		_, meta, err = svc.ListInbox(context.Background(), 1, 1, 500)
		require.NoError(t, err)
		assert.Equal(t, MaxPageSize, meta.ItemsPerPage)
	})

	t.Run("empty inbox past the first page", func(t *testing.T) {
		empty := noopMessageRepo()
		svc := NewMessageService(noopUserRepo(), empty)

		_, meta, err := svc.ListInbox(context.Background(), 1, 2, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(0), meta.TotalMessages)
		assert.False(t, meta.HasNextPage)
		assert.True(t, meta.HasPrevPage, "prev-page flag depends only on the page number")
	})
}

func TestMessageService_MarkRead(t *testing.T) {
	t.Parallel()

	t.Run("receiver can mark a message viewed", func(t *testing.T) {
		t.Parallel()
		messages := noopMessageRepo()
		stored := &models.Message{ID: 1, ReceiverID: 5}
		messages.getByIDFn = func(context.Context, uint) (*models.Message, error) { return stored, nil }
		updated := false
		messages.updateFn = func(context.Context, *models.Message) error { updated = true; return nil }
		svc := NewMessageService(noopUserRepo(), messages)

		message, err := svc.MarkRead(context.Background(), 5, 1)
		require.NoError(t, err)
		assert.True(t, message.IsViewed)
		assert.True(t, updated)
	})

	t.Run("marking twice does not rewrite", func(t *testing.T) {
		t.Parallel()
		messages := noopMessageRepo()
		stored := &models.Message{ID: 1, ReceiverID: 5, IsViewed: true}
		messages.getByIDFn = func(context.Context, uint) (*models.Message, error) { return stored, nil }
		messages.updateFn = func(context.Context, *models.Message) error {
			t.Fatal("no update expected for an already viewed message")
			return nil
		}
		svc := NewMessageService(noopUserRepo(), messages)

		_, err := svc.MarkRead(context.Background(), 5, 1)
		require.NoError(t, err)
	})

	t.Run("only the receiver may touch it", func(t *testing.T) {
		t.Parallel()
		messages := noopMessageRepo()
		messages.getByIDFn = func(context.Context, uint) (*models.Message, error) {
			return &models.Message{ID: 1, ReceiverID: 5}, nil
		}
		svc := NewMessageService(noopUserRepo(), messages)

		_, err := svc.MarkRead(context.Background(), 7, 1)
		assertAppErrorCode(t, err, "FORBIDDEN")
	})
}

func TestMessageService_SoftDelete(t *testing.T) {
	t.Parallel()

	t.Run("hides the message", func(t *testing.T) {
		t.Parallel()
		messages := noopMessageRepo()
		stored := &models.Message{ID: 1, ReceiverID: 5}
		messages.getByIDFn = func(context.Context, uint) (*models.Message, error) { return stored, nil }
		var saved *models.Message
		messages.updateFn = func(_ context.Context, m *models.Message) error { saved = m; return nil }
		svc := NewMessageService(noopUserRepo(), messages)

		require.NoError(t, svc.SoftDelete(context.Background(), 5, 1))
		require.NotNil(t, saved)
		assert.True(t, saved.IsDeleted)
	})

	t.Run("already deleted reads as missing", func(t *testing.T) {
		t.Parallel()
		messages := noopMessageRepo()
		messages.getByIDFn = func(context.Context, uint) (*models.Message, error) {
			return &models.Message{ID: 1, ReceiverID: 5, IsDeleted: true}, nil
		}
		svc := NewMessageService(noopUserRepo(), messages)

		err := svc.SoftDelete(context.Background(), 5, 1)
		assertAppErrorCode(t, err, "NOT_FOUND")
	})
}
