package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"gorm.io/gorm"
)

const unknownName = "알 수 없음"

type ReservationInfo struct {
	ReservationID uint   `json:"reservation_id"`
	TrainerName   string `json:"trainer_name,omitempty"`
	MemberName    string `json:"member_name,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time"`
	Duration      int    `json:"duration"`
	InProgress    bool   `json:"in_progress"`
	Finished      bool   `json:"finished"`
}

type MemberReservations struct {
	Today    []ReservationInfo `json:"today"`
	Upcoming []ReservationInfo `json:"upcoming"`
}

// ListForMember returns the caller's confirmed reservations split into today
// and upcoming by the display-timezone date, ordered by date then start time.
// In-progress and finished flags are computed at read time from the fixed
// session duration.
func (s *Service) ListForMember(ctx context.Context, accountID uint) (*MemberReservations, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("회원 정보를 찾을 수 없습니다.")
		}
		return nil, err
	}

	now := s.now().In(models.Seoul)
	todayStr := now.Format("2006-01-02")

	var reservations []models.Reservation
	if err := s.db.WithContext(ctx).
		Joins("JOIN schedules ON schedules.id = reservations.schedule_id").
		Where("reservations.member_id = ? AND reservations.status = ?", member.ID, models.ReservationConfirmed).
		Order("schedules.date ASC, schedules.start_time ASC").
		Preload("Schedule.Trainer.Account").
		Find(&reservations).Error; err != nil {
		return nil, err
	}

	result := &MemberReservations{
		Today:    []ReservationInfo{},
		Upcoming: []ReservationInfo{},
	}

	for _, res := range reservations {
		if res.Schedule == nil {
			continue
		}
		info := s.annotate(res, now)
		info.TrainerName = unknownName
		if res.Schedule.Trainer != nil && res.Schedule.Trainer.Account != nil {
			info.TrainerName = res.Schedule.Trainer.Account.Name
		}
		info.Date = res.Schedule.Date

		switch {
		case res.Schedule.Date == todayStr:
			result.Today = append(result.Today, info)
		case res.Schedule.Date > todayStr:
			result.Upcoming = append(result.Upcoming, info)
		}
	}

	return result, nil
}

// ListForTrainer returns the trainer's confirmed reservations for one
// "YYYY-MM-DD" date, ordered by start time.
func (s *Service) ListForTrainer(ctx context.Context, accountID uint, date string) ([]ReservationInfo, error) {
	var trainer models.Trainer
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&trainer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("트레이너 정보를 찾을 수 없습니다.")
		}
		return nil, err
	}

	now := s.now().In(models.Seoul)

	var reservations []models.Reservation
	if err := s.db.WithContext(ctx).
		Joins("JOIN schedules ON schedules.id = reservations.schedule_id").
		Where("reservations.status = ? AND schedules.trainer_id = ? AND schedules.date = ?",
			models.ReservationConfirmed, trainer.ID, date).
		Order("schedules.start_time ASC").
		Preload("Schedule").
		Preload("Member.Account").
		Find(&reservations).Error; err != nil {
		return nil, err
	}

	result := make([]ReservationInfo, 0, len(reservations))
	for _, res := range reservations {
		if res.Schedule == nil {
			continue
		}
		info := s.annotate(res, now)
		info.MemberName = unknownName
		if res.Member != nil && res.Member.Account != nil {
			info.MemberName = res.Member.Account.Name
		}
		result = append(result, info)
	}

	return result, nil
}

func (s *Service) annotate(res models.Reservation, now time.Time) ReservationInfo {
	info := ReservationInfo{
		ReservationID: res.ID,
		Duration:      int(models.SessionDuration / time.Minute),
	}

	timeText := res.Schedule.StartTime
	if len(timeText) >= 5 {
		timeText = timeText[:5]
	}
	info.Time = timeText

	if start, err := res.Schedule.StartAt(); err == nil {
		end := start.Add(models.SessionDuration)
		info.InProgress = !now.Before(start) && now.Before(end)
		info.Finished = !now.Before(end)
	}
	return info
}

// FindByDate returns all confirmed reservations on a date with their member
// and trainer accounts loaded. Used by the reminder scheduler.
func (s *Service) FindByDate(ctx context.Context, date string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.WithContext(ctx).
		Joins("JOIN schedules ON schedules.id = reservations.schedule_id").
		Where("reservations.status = ? AND schedules.date = ?", models.ReservationConfirmed, date).
		Preload("Schedule.Trainer.Account").
		Preload("Member.Account").
		Find(&reservations).Error
	return reservations, err
}

// FindBetweenTimes returns confirmed reservations on a date whose start time
// falls in the inclusive "HH:MM".."HH:MM" window.
func (s *Service) FindBetweenTimes(ctx context.Context, date, from, to string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.WithContext(ctx).
		Joins("JOIN schedules ON schedules.id = reservations.schedule_id").
		Where("reservations.status = ? AND schedules.date = ? AND schedules.start_time BETWEEN ? AND ?",
			models.ReservationConfirmed, date, from+":00", to+":00").
		Preload("Schedule.Trainer.Account").
		Preload("Member.Account").
		Find(&reservations).Error
	return reservations, err
}
