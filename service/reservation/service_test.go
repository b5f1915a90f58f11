package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type noopNotifier struct{}

func (noopNotifier) NotifyReservationCreated(trainerAccountID uint)           {}
func (noopNotifier) NotifyReservationCancelled(toAccountID uint, text string) {}

type noopBot struct{}

func (noopBot) PostBotMessage(ctx context.Context, chatID uint, content string) error {
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Account{}, &models.Member{}, &models.Trainer{},
		&models.Schedule{}, &models.Reservation{},
		&models.Chat{}, &models.Message{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, now time.Time) *Service {
	t.Helper()
	svc := NewService(db, noopNotifier{}, noopBot{})
	svc.now = func() time.Time { return now }
	return svc
}

// seedPair creates a trainer, and a member assigned to that trainer with the
// given credit balance. Returns the member and trainer account IDs.
func seedPair(t *testing.T, db *gorm.DB, credits int) (uint, uint) {
	t.Helper()

	trainerAccount := models.Account{Email: "trainer@test.local", Name: "김트레이너", Role: models.RoleTrainer}
	if err := db.Create(&trainerAccount).Error; err != nil {
		t.Fatalf("create trainer account: %v", err)
	}
	trainer := models.Trainer{AccountID: trainerAccount.ID}
	if err := db.Create(&trainer).Error; err != nil {
		t.Fatalf("create trainer: %v", err)
	}

	memberAccount := models.Account{Email: "member@test.local", Name: "홍길동", Role: models.RoleMember}
	if err := db.Create(&memberAccount).Error; err != nil {
		t.Fatalf("create member account: %v", err)
	}
	member := models.Member{AccountID: memberAccount.ID, TrainerID: &trainer.ID, SessionCredits: credits}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}

	return memberAccount.ID, trainerAccount.ID
}

func memberCredits(t *testing.T, db *gorm.DB, accountID uint) int {
	t.Helper()
	var member models.Member
	if err := db.Where("account_id = ?", accountID).First(&member).Error; err != nil {
		t.Fatalf("lookup member: %v", err)
	}
	return member.SessionCredits
}

func assertKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	var derr *models.DomainError
	if !errors.As(err, &derr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if derr.Kind != kind {
		t.Fatalf("expected error kind %q, got %q (%v)", kind, derr.Kind, err)
	}
}

// seoulTime builds a wall-clock instant in the display timezone.
func seoulTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", value, models.Seoul)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

func TestCreate_NoCredits(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 0)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 12:00:00"))

	_, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	assertKind(t, err, models.ErrKindInsufficientCredit)

	if got := memberCredits(t, db, memberAcct); got != 0 {
		t.Fatalf("credits changed on failed booking: %d", got)
	}
}

func TestCreate_NoTrainerAssigned(t *testing.T) {
	db := openTestDB(t)

	account := models.Account{Email: "solo@test.local", Name: "솔로", Role: models.RoleMember}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := db.Create(&models.Member{AccountID: account.ID, SessionCredits: 5}).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}

	svc := newTestService(t, db, seoulTime(t, "2026-03-10 12:00:00"))
	_, err := svc.Create(context.Background(), account.ID, "2026-03-12", "10:00")
	assertKind(t, err, models.ErrKindInvalidState)
}

func TestCreate_BooksSlotAndDebitsCredit(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 12:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if reservation.Status != models.ReservationConfirmed {
		t.Fatalf("unexpected status %q", reservation.Status)
	}

	var schedule models.Schedule
	if err := db.First(&schedule, reservation.ScheduleID).Error; err != nil {
		t.Fatalf("slot was not created: %v", err)
	}
	if schedule.Date != "2026-03-12" || schedule.StartTime != "10:00:00" {
		t.Fatalf("unexpected slot %s %s", schedule.Date, schedule.StartTime)
	}

	if got := memberCredits(t, db, memberAcct); got != 2 {
		t.Fatalf("expected 2 credits after booking, got %d", got)
	}
}

func TestCreate_DuplicateSlotConflicts(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 12:00:00"))

	if _, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00"); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	assertKind(t, err, models.ErrKindConflict)

	if got := memberCredits(t, db, memberAcct); got != 2 {
		t.Fatalf("credit debited more than once: %d", got)
	}

	var count int64
	if err := db.Model(&models.Schedule{}).Count(&count).Error; err != nil {
		t.Fatalf("count slots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single slot, got %d", count)
	}
}

func TestCreate_RebookingAfterCancelSucceeds(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-01 12:00:00"))

	first, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if err := svc.Cancel(context.Background(), first.ID, memberAcct, models.RoleMember); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("rebooking the same slot: %v", err)
	}
	if second.ScheduleID != first.ScheduleID {
		t.Fatalf("rebooking created a new slot")
	}
	if got := memberCredits(t, db, memberAcct); got != 2 {
		t.Fatalf("expected 2 credits after cancel+rebook, got %d", got)
	}
}

func TestCancel_MemberOutsideWindowRefunds(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 10:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	// 48 hours before the start.
	if err := svc.Cancel(context.Background(), reservation.ID, memberAcct, models.RoleMember); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var got models.Reservation
	if err := db.First(&got, reservation.ID).Error; err != nil {
		t.Fatalf("reload reservation: %v", err)
	}
	if got.Status != models.ReservationCancelled {
		t.Fatalf("unexpected status %q", got.Status)
	}
	if credits := memberCredits(t, db, memberAcct); credits != 3 {
		t.Fatalf("expected credit refund to 3, got %d", credits)
	}
}

func TestCancel_MemberInsideWindowRejected(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 10:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	// 23 hours before the start.
	svc.now = func() time.Time { return seoulTime(t, "2026-03-11 11:00:00") }
	err = svc.Cancel(context.Background(), reservation.ID, memberAcct, models.RoleMember)
	assertKind(t, err, models.ErrKindInvalidState)

	if credits := memberCredits(t, db, memberAcct); credits != 2 {
		t.Fatalf("credit refunded on rejected cancel: %d", credits)
	}
}

func TestCancel_MemberAtExactBoundaryRejected(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 09:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	// Exactly 24 hours before the start is already too late.
	svc.now = func() time.Time { return seoulTime(t, "2026-03-11 10:00:00") }
	err = svc.Cancel(context.Background(), reservation.ID, memberAcct, models.RoleMember)
	assertKind(t, err, models.ErrKindInvalidState)
}

func TestCancel_TrainerBeforeEndSucceedsWithoutRefund(t *testing.T) {
	db := openTestDB(t)
	memberAcct, trainerAcct := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 10:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	// Mid-session: the trainer can still cancel, the member gets no credit back.
	svc.now = func() time.Time { return seoulTime(t, "2026-03-12 10:30:00") }
	if err := svc.Cancel(context.Background(), reservation.ID, trainerAcct, models.RoleTrainer); err != nil {
		t.Fatalf("trainer cancel: %v", err)
	}

	if credits := memberCredits(t, db, memberAcct); credits != 2 {
		t.Fatalf("trainer cancel must not refund, got %d credits", credits)
	}
}

func TestCancel_TrainerAfterEndRejected(t *testing.T) {
	db := openTestDB(t)
	memberAcct, trainerAcct := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 10:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	// The 50-minute session ends at 10:50.
	svc.now = func() time.Time { return seoulTime(t, "2026-03-12 10:50:00") }
	err = svc.Cancel(context.Background(), reservation.ID, trainerAcct, models.RoleTrainer)
	assertKind(t, err, models.ErrKindInvalidState)
}

func TestCancel_ForeignReservationForbidden(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 10:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	otherAccount := models.Account{Email: "other@test.local", Name: "다른회원", Role: models.RoleMember}
	if err := db.Create(&otherAccount).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := db.Create(&models.Member{AccountID: otherAccount.ID, SessionCredits: 1}).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}

	err = svc.Cancel(context.Background(), reservation.ID, otherAccount.ID, models.RoleMember)
	assertKind(t, err, models.ErrKindForbidden)
}

func TestCancel_TwiceRejectedWithoutDoubleRefund(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 10:00:00"))

	reservation, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	if err := svc.Cancel(context.Background(), reservation.ID, memberAcct, models.RoleMember); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	err = svc.Cancel(context.Background(), reservation.ID, memberAcct, models.RoleMember)
	assertKind(t, err, models.ErrKindInvalidState)

	if credits := memberCredits(t, db, memberAcct); credits != 3 {
		t.Fatalf("expected single refund back to 3, got %d", credits)
	}
}

func TestListForMember_SplitsTodayAndUpcoming(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 5)
	svc := newTestService(t, db, seoulTime(t, "2026-03-01 10:00:00"))

	if _, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "09:00"); err != nil {
		t.Fatalf("book today slot: %v", err)
	}
	if _, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "15:00"); err != nil {
		t.Fatalf("book today slot: %v", err)
	}
	cancelled, err := svc.Create(context.Background(), memberAcct, "2026-03-13", "09:00")
	if err != nil {
		t.Fatalf("book cancelled slot: %v", err)
	}
	if err := svc.Cancel(context.Background(), cancelled.ID, memberAcct, models.RoleMember); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Create(context.Background(), memberAcct, "2026-03-14", "11:00"); err != nil {
		t.Fatalf("book upcoming slot: %v", err)
	}

	// "Today" is 2026-03-12, mid-way through the 09:00 session.
	svc.now = func() time.Time { return seoulTime(t, "2026-03-12 09:30:00") }
	list, err := svc.ListForMember(context.Background(), memberAcct)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(list.Today) != 2 {
		t.Fatalf("expected 2 today reservations, got %d", len(list.Today))
	}
	if len(list.Upcoming) != 1 {
		t.Fatalf("expected 1 upcoming reservation, got %d", len(list.Upcoming))
	}
	if list.Today[0].Time != "09:00" || list.Today[1].Time != "15:00" {
		t.Fatalf("today not ordered by start time: %q, %q", list.Today[0].Time, list.Today[1].Time)
	}
	if !list.Today[0].InProgress || list.Today[0].Finished {
		t.Fatalf("09:00 session should be in progress at 09:30")
	}
	if list.Today[1].InProgress || list.Today[1].Finished {
		t.Fatalf("15:00 session should be pending at 09:30")
	}
	if list.Today[0].TrainerName != "김트레이너" {
		t.Fatalf("unexpected trainer name %q", list.Today[0].TrainerName)
	}
	if list.Today[0].Duration != 50 {
		t.Fatalf("unexpected duration %d", list.Today[0].Duration)
	}
}

func TestListForTrainer_FiltersByDate(t *testing.T) {
	db := openTestDB(t)
	memberAcct, trainerAcct := seedPair(t, db, 5)
	svc := newTestService(t, db, seoulTime(t, "2026-03-01 10:00:00"))

	if _, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Create(context.Background(), memberAcct, "2026-03-13", "10:00"); err != nil {
		t.Fatalf("book: %v", err)
	}

	list, err := svc.ListForTrainer(context.Background(), trainerAcct, "2026-03-12")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 reservation on 2026-03-12, got %d", len(list))
	}
	if list[0].MemberName != "홍길동" {
		t.Fatalf("unexpected member name %q", list[0].MemberName)
	}
	if list[0].Time != "10:00" {
		t.Fatalf("unexpected time %q", list[0].Time)
	}
}

func TestFindBetweenTimes_InclusiveWindow(t *testing.T) {
	db := openTestDB(t)
	memberAcct, _ := seedPair(t, db, 5)
	svc := newTestService(t, db, seoulTime(t, "2026-03-01 10:00:00"))

	for _, start := range []string{"09:00", "10:00", "11:00"} {
		if _, err := svc.Create(context.Background(), memberAcct, "2026-03-12", start); err != nil {
			t.Fatalf("book %s: %v", start, err)
		}
	}

	found, err := svc.FindBetweenTimes(context.Background(), "2026-03-12", "09:30", "10:30")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 reservation in window, got %d", len(found))
	}
	if found[0].Schedule.StartTime != "10:00:00" {
		t.Fatalf("unexpected slot %q", found[0].Schedule.StartTime)
	}
}

// Two goroutines racing the same slot must produce exactly one confirmed
// reservation and a single debit. The pool is capped at one connection so the
// two transactions serialize instead of tripping sqlite's table lock; the
// loser still runs the full Create path and must come back with a conflict.
func TestCreate_ConcurrentBookingSameSlot(t *testing.T) {
	db := openTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	memberAcct, _ := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 12:00:00"))

	var wg sync.WaitGroup
	var errs [2]error
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
		}(i)
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) != 1 {
		t.Fatalf("expected exactly one booking to fail, got errors %v", errs)
	}
	assertKind(t, failures[0], models.ErrKindConflict)

	if got := memberCredits(t, db, memberAcct); got != 2 {
		t.Fatalf("expected a single debit, credits = %d", got)
	}
	var count int64
	if err := db.Model(&models.Reservation{}).Where("status = ?", models.ReservationConfirmed).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 confirmed reservation, got %d", count)
	}
}

func TestFindOrCreateSlot_ReusesExistingRow(t *testing.T) {
	db := openTestDB(t)
	_, trainerAcct := seedPair(t, db, 3)

	var trainer models.Trainer
	if err := db.Where("account_id = ?", trainerAcct).First(&trainer).Error; err != nil {
		t.Fatalf("lookup trainer: %v", err)
	}
	existing := models.Schedule{TrainerID: trainer.ID, Date: "2026-03-12", StartTime: "10:00"}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	got, err := findOrCreateSlot(db, trainer.ID, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if got.ID != existing.ID {
		t.Fatalf("expected existing slot %d, got %d", existing.ID, got.ID)
	}
	var count int64
	if err := db.Model(&models.Schedule{}).Count(&count).Error; err != nil {
		t.Fatalf("count slots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 slot row, got %d", count)
	}
}

// A slot is shared by everyone who books it: a second member booking the same
// trainer, date and time lands on the first member's schedule row.
func TestCreate_SlotSharedAcrossMembers(t *testing.T) {
	db := openTestDB(t)
	memberAcct, trainerAcct := seedPair(t, db, 3)
	svc := newTestService(t, db, seoulTime(t, "2026-03-10 12:00:00"))

	var trainer models.Trainer
	if err := db.Where("account_id = ?", trainerAcct).First(&trainer).Error; err != nil {
		t.Fatalf("lookup trainer: %v", err)
	}
	secondAccount := models.Account{Email: "member2@test.local", Name: "이회원", Role: models.RoleMember}
	if err := db.Create(&secondAccount).Error; err != nil {
		t.Fatalf("create second account: %v", err)
	}
	if err := db.Create(&models.Member{AccountID: secondAccount.ID, TrainerID: &trainer.ID, SessionCredits: 3}).Error; err != nil {
		t.Fatalf("create second member: %v", err)
	}

	first, err := svc.Create(context.Background(), memberAcct, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second, err := svc.Create(context.Background(), secondAccount.ID, "2026-03-12", "10:00")
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}

	if first.ScheduleID != second.ScheduleID {
		t.Fatalf("bookings landed on different slots: %d vs %d", first.ScheduleID, second.ScheduleID)
	}
	var count int64
	if err := db.Model(&models.Schedule{}).Count(&count).Error; err != nil {
		t.Fatalf("count slots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 slot row, got %d", count)
	}
}
