package reservation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	msgReservationCreated   = "예약이 완료되었습니다. 일정에 맞춰 준비해주세요!"
	msgReservationCancelled = "예약이 취소되었습니다. 다음에 다시 이용해주세요."
)

// Notifier delivers best-effort push alerts. Implementations swallow and log
// their own failures; the booking flow never sees them.
type Notifier interface {
	NotifyReservationCreated(trainerAccountID uint)
	NotifyReservationCancelled(toAccountID uint, timeText string)
}

// BotMessenger posts a system message into a chat room. Posting into a missing
// room is a no-op.
type BotMessenger interface {
	PostBotMessage(ctx context.Context, chatID uint, content string) error
}

// Service is the booking engine. Every mutation runs inside a single
// transaction so credit balance, slot existence and reservation status are
// never observed half-applied.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	bot      BotMessenger
	now      func() time.Time
}

func NewService(db *gorm.DB, notifier Notifier, bot BotMessenger) *Service {
	return &Service{db: db, notifier: notifier, bot: bot, now: time.Now}
}

// lockForUpdate takes a row lock on postgres. sqlite has no FOR UPDATE syntax
// and serializes writers globally, so the clause only applies there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// findOrCreateSlot resolves the (trainer, date, time) slot row, inserting it
// on first booking. Two members racing the first insert both land on the same
// row: the losing insert is swallowed by ON CONFLICT DO NOTHING under the
// slot unique index and the winner's row is re-read.
func findOrCreateSlot(tx *gorm.DB, trainerID uint, date, startTime string) (*models.Schedule, error) {
	schedule := models.Schedule{
		TrainerID: trainerID,
		Date:      date,
		StartTime: startTime,
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&schedule)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if err := tx.Where("trainer_id = ? AND date = ? AND start_time = ?",
			trainerID, date, startTime).First(&schedule).Error; err != nil {
			return nil, err
		}
	}
	return &schedule, nil
}

// Create books the caller's assigned trainer for the given "YYYY-MM-DD" date
// and "HH:MM" start time. The member row is locked for the duration of the
// transaction, which serializes concurrent bookings by the same member: the
// loser of the race re-reads the winner's reservation and fails with Conflict,
// and the credit is debited exactly once.
func (s *Service) Create(ctx context.Context, accountID uint, date, startTime string) (*models.Reservation, error) {
	if len(startTime) == 5 {
		startTime += ":00"
	}

	var reservation models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.Member
		if err := lockForUpdate(tx).Where("account_id = ?", accountID).First(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("유저 정보가 없습니다.")
			}
			return err
		}
		if member.TrainerID == nil {
			return models.NewInvalidStateError("트레이너가 배정되지 않았습니다.")
		}
		if member.SessionCredits <= 0 {
			return models.NewInsufficientCreditError("보유한 PT권이 없습니다.")
		}

		schedule, err := findOrCreateSlot(tx, *member.TrainerID, date, startTime)
		if err != nil {
			return err
		}

		var existing models.Reservation
		err = tx.Where("schedule_id = ? AND member_id = ? AND status <> ?",
			schedule.ID, member.ID, models.ReservationCancelled).First(&existing).Error
		if err == nil {
			return models.NewConflictError("이미 예약이 존재합니다.")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		reservation = models.Reservation{
			ScheduleID: schedule.ID,
			MemberID:   member.ID,
			Status:     models.ReservationConfirmed,
		}
		if err := tx.Create(&reservation).Error; err != nil {
			return err
		}

		return tx.Model(&models.Member{}).Where("id = ?", member.ID).
			Update("session_credits", gorm.Expr("session_credits - 1")).Error
	})
	if err != nil {
		return nil, err
	}

	go s.afterCreate(accountID)
	return &reservation, nil
}

// afterCreate runs the post-commit side effects: a push to the trainer and a
// bot message in the pair's chat room if one exists. Failures never undo the
// committed reservation.
func (s *Service) afterCreate(accountID uint) {
	ctx := context.Background()

	var member models.Member
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&member).Error; err != nil {
		log.Printf("reservation: post-create lookup failed: %v", err)
		return
	}
	if member.TrainerID == nil {
		return
	}

	var trainer models.Trainer
	if err := s.db.WithContext(ctx).First(&trainer, *member.TrainerID).Error; err == nil {
		s.notifier.NotifyReservationCreated(trainer.AccountID)
	}

	var chat models.Chat
	if err := s.db.WithContext(ctx).
		Where("member_id = ? AND trainer_id = ?", member.ID, *member.TrainerID).
		First(&chat).Error; err == nil {
		if err := s.bot.PostBotMessage(ctx, chat.ID, msgReservationCreated); err != nil {
			log.Printf("reservation: bot message failed: %v", err)
		}
	}
}

// Cancel cancels a confirmed reservation. Members may cancel their own
// reservations up to 24 hours before the start; trainers may cancel any
// reservation on their own slots until the session has ended. Only a
// member-initiated cancellation refunds the credit.
func (s *Service) Cancel(ctx context.Context, reservationID, accountID uint, role string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().In(models.Seoul)

		var memberID, trainerID uint
		switch role {
		case models.RoleMember:
			var member models.Member
			if err := lockForUpdate(tx).Where("account_id = ?", accountID).First(&member).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewNotFoundError("회원 정보를 찾을 수 없습니다.")
				}
				return err
			}
			memberID = member.ID
		case models.RoleTrainer:
			var trainer models.Trainer
			if err := tx.Where("account_id = ?", accountID).First(&trainer).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewNotFoundError("회원 정보를 찾을 수 없습니다.")
				}
				return err
			}
			trainerID = trainer.ID
		default:
			return models.NewForbiddenError("해당 예약을 취소할 권한이 없습니다.")
		}

		var reservation models.Reservation
		if err := tx.Preload("Schedule").First(&reservation, reservationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("예약을 찾을 수 없습니다.")
			}
			return err
		}

		ownsReservation := (role == models.RoleMember && reservation.MemberID == memberID) ||
			(role == models.RoleTrainer && reservation.Schedule.TrainerID == trainerID)
		if !ownsReservation {
			return models.NewForbiddenError("해당 예약을 취소할 권한이 없습니다.")
		}

		if reservation.Status != models.ReservationConfirmed {
			return models.NewInvalidStateError("이미 취소되었거나 완료된 예약입니다.")
		}

		start, err := reservation.Schedule.StartAt()
		if err != nil {
			return err
		}
		end := start.Add(models.SessionDuration)

		if role == models.RoleMember && !now.Before(start.Add(-24*time.Hour)) {
			return models.NewInvalidStateError("예약 24시간 이전까지만 취소할 수 있습니다.")
		}
		if role == models.RoleTrainer && !now.Before(end) {
			return models.NewInvalidStateError("이미 종료된 예약은 취소할 수 없습니다.")
		}

		if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).
			Update("status", models.ReservationCancelled).Error; err != nil {
			return err
		}

		if role == models.RoleMember {
			return tx.Model(&models.Member{}).Where("id = ?", reservation.MemberID).
				Update("session_credits", gorm.Expr("session_credits + 1")).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	go s.afterCancel(reservationID, role)
	return nil
}

func (s *Service) afterCancel(reservationID uint, role string) {
	ctx := context.Background()

	var reservation models.Reservation
	if err := s.db.WithContext(ctx).
		Preload("Member").Preload("Schedule.Trainer").
		First(&reservation, reservationID).Error; err != nil {
		log.Printf("reservation: post-cancel lookup failed: %v", err)
		return
	}

	var targetAccountID uint
	if role == models.RoleMember {
		if reservation.Schedule != nil && reservation.Schedule.Trainer != nil {
			targetAccountID = reservation.Schedule.Trainer.AccountID
		}
	} else if reservation.Member != nil {
		targetAccountID = reservation.Member.AccountID
	}

	if targetAccountID != 0 && reservation.Schedule != nil {
		timeText := reservation.Schedule.StartTime
		if len(timeText) >= 5 {
			timeText = timeText[:5]
		}
		s.notifier.NotifyReservationCancelled(targetAccountID, timeText)
	}

	if reservation.Schedule == nil {
		return
	}
	var chat models.Chat
	if err := s.db.WithContext(ctx).
		Where("member_id = ? AND trainer_id = ?", reservation.MemberID, reservation.Schedule.TrainerID).
		First(&chat).Error; err == nil {
		if err := s.bot.PostBotMessage(ctx, chat.ID, msgReservationCancelled); err != nil {
			log.Printf("reservation: bot message failed: %v", err)
		}
	}
}
