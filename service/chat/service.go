package chat

import (
	"context"
	"errors"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"github.com/fitlink-app/fitlink-server/cmd/utils"
	"gorm.io/gorm"
)

// DefaultProfilePhotoURL is shown for accounts without an uploaded photo and
// for system messages.
const DefaultProfilePhotoURL = "https://i.pinimg.com/236x/f4/4c/b9/f44cb9b5f64a60d95b78b3187f459ccd.jpg"

// SystemSenderID marks bot-authored messages.
const SystemSenderID uint = 0

type ChatMessage struct {
	MessageID  uint   `json:"message_id"`
	ChatID     uint   `json:"chat_id"`
	SenderID   uint   `json:"sender_id"`
	SenderRole string `json:"sender_role"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
	PhotoURL   string `json:"photo_url"`
}

type RoomSummary struct {
	ChatID        uint    `json:"chat_id"`
	MemberID      uint    `json:"member_id"`
	MemberName    string  `json:"member_name"`
	LastMessage   *string `json:"last_message"`
	LastMessageAt *string `json:"last_message_at"`
	UnreadCount   int64   `json:"unread_count"`
	PhotoURL      string  `json:"photo_url"`
}

// Service owns chat rooms and their message history. Rooms are created when a
// member is paired with a trainer; the service never creates them itself.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SaveMessage appends a message to a room and bumps the room's activity
// timestamp in the same transaction.
func (s *Service) SaveMessage(ctx context.Context, chatID, senderID uint, content string, isSystem bool) (*models.Message, error) {
	var message models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		if err := tx.First(&chat, chatID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("채팅방을 찾을 수 없습니다.")
			}
			return err
		}

		message = models.Message{
			ChatID:   chatID,
			SenderID: senderID,
			Content:  content,
			IsSystem: isSystem,
			IsRead:   false,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		return tx.Model(&models.Chat{}).Where("id = ?", chatID).
			Update("last_activity_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// PostBotMessage writes a system message into a room. A missing room is a
// no-op so reservation side effects stay best-effort.
func (s *Service) PostBotMessage(ctx context.Context, chatID uint, content string) error {
	_, err := s.SaveMessage(ctx, chatID, SystemSenderID, content, true)
	var derr *models.DomainError
	if errors.As(err, &derr) && derr.Kind == models.ErrKindNotFound {
		return nil
	}
	return err
}

// MarkMessagesRead flips the unread flag on every counterparty message up to
// and including lastReadMessageID. Returns how many rows changed; re-reading
// an already-read range changes zero rows and is not an error.
func (s *Service) MarkMessagesRead(ctx context.Context, chatID, accountID, lastReadMessageID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND id <= ? AND is_read = ?",
			chatID, accountID, lastReadMessageID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// GetChatWithParticipants loads a room with both participant accounts.
func (s *Service) GetChatWithParticipants(ctx context.Context, chatID uint) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).
		Preload("Member.Account").
		Preload("Trainer.Account").
		First(&chat, chatID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("채팅방을 찾을 수 없습니다.")
		}
		return nil, err
	}
	return &chat, nil
}

// OtherParticipantAccountID resolves the counterparty of senderAccountID in a
// loaded chat. Returns false when the sender is neither participant or the
// participants are not loaded.
func OtherParticipantAccountID(chat *models.Chat, senderAccountID uint) (uint, bool) {
	if chat.Member == nil || chat.Member.Account == nil ||
		chat.Trainer == nil || chat.Trainer.Account == nil {
		return 0, false
	}
	switch senderAccountID {
	case chat.Member.Account.ID:
		return chat.Trainer.Account.ID, true
	case chat.Trainer.Account.ID:
		return chat.Member.Account.ID, true
	default:
		return 0, false
	}
}

// GetMessages pages a room's history backwards: newest first, strictly older
// than the cursor when one is given. Only the room's two participants may
// read it.
func (s *Service) GetMessages(ctx context.Context, chatID, accountID uint, role string, cursor uint, limit int) ([]ChatMessage, error) {
	chat, err := s.GetChatWithParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}

	isParticipant := false
	switch role {
	case models.RoleMember:
		isParticipant = chat.Member != nil && chat.Member.AccountID == accountID
	case models.RoleTrainer:
		isParticipant = chat.Trainer != nil && chat.Trainer.AccountID == accountID
	}
	if !isParticipant {
		return nil, models.NewForbiddenError("이 채팅방에 접근할 수 없습니다.")
	}

	query := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit)
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}

	var messages []models.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}

	memberAccountID := uint(0)
	memberPhotoURL := DefaultProfilePhotoURL
	if chat.Member != nil && chat.Member.Account != nil {
		memberAccountID = chat.Member.Account.ID
		if chat.Member.Account.ProfilePhotoURL != "" {
			memberPhotoURL = chat.Member.Account.ProfilePhotoURL
		}
	}

	result := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		dto := ChatMessage{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.In(models.Seoul).Format(time.RFC3339),
		}
		if m.SenderID == memberAccountID && !m.IsSystem {
			dto.SenderRole = models.RoleMember
			dto.PhotoURL = memberPhotoURL
		} else {
			dto.SenderRole = models.RoleTrainer
			dto.PhotoURL = DefaultProfilePhotoURL
		}
		result = append(result, dto)
	}
	return result, nil
}

// GetRoomsForTrainer builds the trainer's room list: every room with that
// trainer, most recently active first, each annotated with the latest message
// preview, its display timestamp and the count of unread member messages.
func (s *Service) GetRoomsForTrainer(ctx context.Context, accountID uint) ([]RoomSummary, error) {
	var trainer models.Trainer
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&trainer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("트레이너 정보를 찾을 수 없습니다.")
		}
		return nil, err
	}

	var chats []models.Chat
	if err := s.db.WithContext(ctx).
		Where("trainer_id = ?", trainer.ID).
		Order("last_activity_at DESC").
		Preload("Member.Account").
		Find(&chats).Error; err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return []RoomSummary{}, nil
	}

	chatIDs := make([]uint, 0, len(chats))
	for _, c := range chats {
		chatIDs = append(chatIDs, c.ID)
	}

	type lastIDRow struct {
		ChatID        uint
		LastMessageID uint
	}
	var lastIDs []lastIDRow
	if err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("chat_id, MAX(id) AS last_message_id").
		Where("chat_id IN ?", chatIDs).
		Group("chat_id").
		Scan(&lastIDs).Error; err != nil {
		return nil, err
	}

	lastByChat := make(map[uint]models.Message, len(lastIDs))
	if len(lastIDs) > 0 {
		ids := make([]uint, 0, len(lastIDs))
		for _, row := range lastIDs {
			ids = append(ids, row.LastMessageID)
		}
		var lastMessages []models.Message
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&lastMessages).Error; err != nil {
			return nil, err
		}
		for _, m := range lastMessages {
			lastByChat[m.ChatID] = m
		}
	}

	type unreadRow struct {
		ChatID      uint
		UnreadCount int64
	}
	var unreads []unreadRow
	if err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("chat_id, COUNT(*) AS unread_count").
		Where("chat_id IN ? AND is_read = ? AND sender_id <> ?", chatIDs, false, accountID).
		Group("chat_id").
		Scan(&unreads).Error; err != nil {
		return nil, err
	}
	unreadByChat := make(map[uint]int64, len(unreads))
	for _, row := range unreads {
		unreadByChat[row.ChatID] = row.UnreadCount
	}

	result := make([]RoomSummary, 0, len(chats))
	for _, c := range chats {
		summary := RoomSummary{
			ChatID:      c.ID,
			MemberID:    c.MemberID,
			MemberName:  "알 수 없음",
			UnreadCount: unreadByChat[c.ID],
			PhotoURL:    DefaultProfilePhotoURL,
		}
		if c.Member != nil && c.Member.Account != nil {
			summary.MemberName = c.Member.Account.Name
			if c.Member.Account.ProfilePhotoURL != "" {
				summary.PhotoURL = c.Member.Account.ProfilePhotoURL
			}
		}
		if last, ok := lastByChat[c.ID]; ok {
			content := last.Content
			formatted := utils.FormatChatTimestamp(last.CreatedAt)
			summary.LastMessage = &content
			summary.LastMessageAt = &formatted
		}
		result = append(result, summary)
	}
	return result, nil
}

// GetRoomForMember returns the member's room id. Each member has at most one
// room; if pairing ever left more than one, the most recently active wins.
func (s *Service) GetRoomForMember(ctx context.Context, accountID uint) (uint, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.NewNotFoundError("해당 계정의 유저를 찾을 수 없습니다.")
		}
		return 0, err
	}

	var chat models.Chat
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", member.ID).
		Order("last_activity_at DESC").
		First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.NewNotFoundError("채팅방이 존재하지 않습니다.")
		}
		return 0, err
	}
	return chat.ID, nil
}

// SenderPhotoURL resolves the avatar shown next to a just-sent message.
func (s *Service) SenderPhotoURL(ctx context.Context, accountID uint) string {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, accountID).Error; err != nil {
		return DefaultProfilePhotoURL
	}
	if account.ProfilePhotoURL == "" {
		return DefaultProfilePhotoURL
	}
	return account.ProfilePhotoURL
}
