package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/z-coach/internal/model/coach"
)

type conversationRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"size:128;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (conversationRow) TableName() string { return "coach_conversations" }

type messageRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	Seq            int64  `gorm:"autoIncrement;uniqueIndex"`
	ConversationID string `gorm:"size:36;not null;index"`
	Role           string `gorm:"size:16;not null"`
	Content        string `gorm:"type:text;not null"`
	AudioURL       *string
	CreatedAt      time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "coach_messages" }

func (r messageRow) toMessage() coach.Message {
	msg := coach.Message{
		ID:        r.ID,
		Role:      coach.Role(r.Role),
		Content:   r.Content,
		Timestamp: r.CreatedAt.UTC(),
	}
	if r.AudioURL != nil {
		msg.AudioURL = *r.AudioURL
	}
	return msg
}

// GormStore persists conversations in Postgres through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the coach tables.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing handle and migrates the coach tables.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&conversationRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate coach tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Create(ctx context.Context, userID string) (Conversation, error) {
	if userID == "" {
		return Conversation{}, ErrUserRequired
	}

	row := conversationRow{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return Conversation{ID: row.ID, UserID: row.UserID, CreatedAt: row.CreatedAt}, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Conversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	return Conversation{ID: row.ID, UserID: row.UserID, CreatedAt: row.CreatedAt.UTC()}, nil
}

func (s *GormStore) Append(ctx context.Context, conversationID string, msg coach.Message) (coach.Message, error) {
	if err := validate(msg); err != nil {
		return coach.Message{}, err
	}
	if _, err := s.Get(ctx, conversationID); err != nil {
		return coach.Message{}, err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	row := messageRow{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.Timestamp,
	}
	if msg.AudioURL != "" {
		row.AudioURL = &msg.AudioURL
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return coach.Message{}, fmt.Errorf("append message: %w", err)
	}
	return row.toMessage(), nil
}

func (s *GormStore) Messages(ctx context.Context, conversationID string, limit int) ([]coach.Message, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []messageRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	messages := make([]coach.Message, len(rows))
	for i, row := range rows {
		// rows are newest first
		messages[len(rows)-1-i] = row.toMessage()
	}
	return messages, nil
}
