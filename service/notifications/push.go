package notifications

import (
	"fmt"
	"log"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"
)

// PushService sends Expo push notifications to accounts. Every send is best
// effort: a missing token is silently skipped and delivery failures are
// logged, never propagated.
type PushService struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

func NewPushService(db *gorm.DB) *PushService {
	return &PushService{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

// SavePushToken stores the account's Expo push token, replacing any previous
// one.
func (p *PushService) SavePushToken(accountID uint, token string) error {
	return p.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("expo_push_token", token).Error
}

// Notify sends one push to an account. Accounts without a stored token are
// skipped without error.
func (p *PushService) Notify(accountID uint, title, body string) {
	var account models.Account
	if err := p.db.First(&account, accountID).Error; err != nil {
		log.Printf("push: account %d lookup failed: %v", accountID, err)
		return
	}
	if account.ExpoPushToken == "" {
		return
	}
	p.send(account.ExpoPushToken, title, body, nil)
}

func (p *PushService) send(tokenString, title, body string, data map[string]string) {
	pushToken, err := expo.NewExponentPushToken(tokenString)
	if err != nil {
		log.Printf("push: invalid token format %s: %v", tokenString, err)
		return
	}

	response, err := p.expoClient.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{pushToken},
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     data,
	})
	if err != nil {
		log.Printf("push: publish failed: %v", err)
		return
	}
	if err := response.ValidateResponse(); err != nil {
		log.Printf("push: delivery rejected: %v", err)
	}
}

// NotifyReservationCreated alerts a trainer that a member booked a session.
func (p *PushService) NotifyReservationCreated(trainerAccountID uint) {
	p.Notify(trainerAccountID, "새로운 예약 알림", "새로운 예약이 생성되었습니다. 오늘 스케줄을 확인해보세요!")
}

// NotifyReservationCancelled alerts the counterparty of a cancellation.
func (p *PushService) NotifyReservationCancelled(toAccountID uint, timeText string) {
	p.Notify(toAccountID, "예약 취소 알림", fmt.Sprintf("오늘 %s에 예정된 예약이 취소되었습니다.", timeText))
}

// NotifyChatMessage pushes a truncated preview of an incoming chat message.
func (p *PushService) NotifyChatMessage(toAccountID uint, content string) {
	preview := content
	if len([]rune(preview)) > 20 {
		preview = string([]rune(preview)[:20]) + "..."
	}

	var account models.Account
	if err := p.db.First(&account, toAccountID).Error; err != nil {
		log.Printf("push: account %d lookup failed: %v", toAccountID, err)
		return
	}
	if account.ExpoPushToken == "" {
		return
	}
	p.send(account.ExpoPushToken, "새 메시지가 도착했어요!", preview, map[string]string{"type": "chat"})
}

// NotifyFirstLogin greets a member on their first login after signup.
func (p *PushService) NotifyFirstLogin(accountID uint) {
	p.Notify(accountID, "환영합니다!", "첫 로그인 PT권 30회 지급!")
}
