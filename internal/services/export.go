package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/storage"
	"github.com/calmspace/apiserver/internal/store"
	"github.com/calmspace/apiserver/types"
	"github.com/goccy/go-json"
)

const exportContentType = "application/json"

// ExportDocument is everything stored for one account.
type ExportDocument struct {
	ExportedAt  time.Time           `json:"exportedAt"`
	Profile     types.UserProfile   `json:"profile"`
	Messages    []types.ChatMessage `json:"messages"`
	MoodEntries []types.MoodEntry   `json:"moodEntries"`
}

// ExportResult describes a finished export. Location fields are set when the
// document was uploaded; Document is set when it is returned inline.
type ExportResult struct {
	Key       string          `json:"key,omitempty"`
	Bucket    string          `json:"bucket,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Document  *ExportDocument `json:"document,omitempty"`
}

// ExportService assembles account exports and keeps them in object storage
// when one is configured.
type ExportService struct {
	users   UserRepository
	chats   ChatRepository
	moods   MoodRepository
	objects storage.ObjectStorage
}

// NewExportService builds an ExportService. objects may be nil, in which case
// exports are returned inline and nothing is stored.
func NewExportService(users UserRepository, chats ChatRepository, moods MoodRepository, objects storage.ObjectStorage) *ExportService {
	return &ExportService{users: users, chats: chats, moods: moods, objects: objects}
}

func exportPrefix(userID int64) string {
	return "exports/" + strconv.FormatInt(userID, 10) + "/"
}

// Export builds the document for userID and uploads it if storage is set.
func (s *ExportService) Export(ctx context.Context, userID int64) (ExportResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ExportResult{}, &NotFoundError{Message: msgUserNotFound}
		}
		return ExportResult{}, err
	}
	messages, err := s.chats.History(ctx, userID, nil)
	if err != nil {
		return ExportResult{}, err
	}
	entries, err := s.moods.List(ctx, userID, store.MoodFilter{})
	if err != nil {
		return ExportResult{}, err
	}

	now := time.Now().UTC()
	doc := ExportDocument{
		ExportedAt:  now,
		Profile:     user.Profile(),
		Messages:    messages,
		MoodEntries: entries,
	}
	if s.objects == nil {
		return ExportResult{CreatedAt: now, Document: &doc}, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode export: %w", err)
	}
	key := exportPrefix(userID) + strconv.FormatInt(now.UnixNano(), 10) + ".json"
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return ExportResult{}, fmt.Errorf("upload export: %w", err)
	}
	logging.Ctx(ctx).Info().Int64("user_id", userID).Str("key", key).Msg("account exported")
	return ExportResult{Key: key, Bucket: s.objects.Bucket(), CreatedAt: now}, nil
}

// Purge removes every stored export of userID.
func (s *ExportService) Purge(ctx context.Context, userID int64) error {
	if s.objects == nil {
		return nil
	}
	n, err := s.objects.DeletePrefix(ctx, exportPrefix(userID))
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Ctx(ctx).Info().Int64("user_id", userID).Int("objects", n).Msg("exports purged")
	}
	return nil
}
