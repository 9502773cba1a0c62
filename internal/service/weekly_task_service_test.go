package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"weekly-planner/internal/model"
	"weekly-planner/internal/repository"
)

// Saturday 2026-08-29; the surrounding Monday-start week runs
// 2026-08-24 .. 2026-08-30.
var testNow = time.Date(2026, time.August, 29, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*WeeklyTaskService, *gorm.DB) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)

	svc := NewWeeklyTaskService(repository.NewWeeklyTaskRepository(db), repository.NewTaskRepository(db))
	svc.now = func() time.Time { return testNow }
	return svc, db
}

func newTestUser(t *testing.T, db *gorm.DB, telegramID int64) *model.User {
	t.Helper()
	user := model.User{TelegramID: telegramID, FirstName: "Test"}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func clock(hh, mm int) *time.Time {
	v := time.Date(2000, time.January, 1, hh, mm, 0, 0, time.UTC)
	return &v
}

func collect(t *testing.T, seq func(func(bool, error) bool)) []bool {
	t.Helper()
	var results []bool
	for inserted, err := range seq {
		require.NoError(t, err)
		results = append(results, inserted)
	}
	return results
}

func TestFromInputDraftWhenFieldsMissing(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	cases := []struct {
		name  string
		title string
		days  string
		at    *time.Time
	}{
		{"no title", "", "Mon, Wed", clock(8, 0)},
		{"no days", "Gym", "", clock(8, 0)},
		{"no time", "Gym", "Mon, Wed", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := svc.FromInput(user, tc.title, tc.days, "desc", tc.at, true, 0)
			assert.False(t, task.Actionable())
			assert.Empty(t, task.Days)
			assert.Empty(t, task.TaskTime)
			assert.Equal(t, tc.title, task.Title)
			assert.Equal(t, "desc", task.Content)
			assert.True(t, task.IsImportant)
			assert.Equal(t, user.ID, task.UserID)
		})
	}
}

func TestFromInputComplete(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "Mon, Wed", "leg day", clock(9, 5), false, 0)
	assert.True(t, task.Actionable())
	assert.Equal(t, "Mon, Wed", task.Days)
	assert.Equal(t, "09:05", task.TaskTime)
	assert.Zero(t, task.ID)

	edited := svc.FromInput(user, "Gym", "Mon", "", clock(9, 5), false, 42)
	assert.Equal(t, uint(42), edited.ID)
}

func TestFromInputAcceptsSessionIdentity(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	byUser := svc.FromInput(user, "Gym", "Mon", "", clock(8, 0), false, 0)
	bySession := svc.FromInput(model.SessionUser{UserID: user.ID}, "Gym", "Mon", "", clock(8, 0), false, 0)
	assert.Equal(t, byUser.UserID, bySession.UserID)
}

func TestCreateRejectsDraft(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "", "", clock(8, 0), false, 0)
	ok, err := svc.Create(context.Background(), &task)
	require.NoError(t, err)
	assert.False(t, ok)

	var count int64
	require.NoError(t, db.Model(&model.WeeklyTask{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateInsertsActionableTemplate(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "Mon, Wed", "", clock(8, 0), false, 0)
	ok, err := svc.Create(context.Background(), &task)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotZero(t, task.ID)
}

func TestUpdateRejectsForeignOwnerOnIncomingTemplate(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	owner := newTestUser(t, db, 100)
	other := newTestUser(t, db, 200)

	stored := svc.FromInput(owner, "Gym", "Mon", "", clock(8, 0), false, 0)
	ok, err := svc.Create(ctx, &stored)
	require.NoError(t, err)
	require.True(t, ok)

	// Incoming template carries the other user's id: rejected even
	// though the target row exists.
	incoming := svc.FromInput(other, "Hacked", "Tue", "", clock(9, 0), false, stored.ID)
	ok, err = svc.Update(ctx, owner, &incoming)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, err := repository.NewWeeklyTaskRepository(db).FindByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gym", fresh.Title)
}

func TestUpdateChecksIncomingTemplateNotStoredRow(t *testing.T) {
	// The ownership check compares the incoming template's owner id
	// against the requester, not the stored row's owner. A requester
	// who builds the template under their own id can therefore rewrite
	// another user's row; kept as-is to preserve upstream behavior.
	svc, db := newTestService(t)
	ctx := context.Background()
	owner := newTestUser(t, db, 100)
	attacker := newTestUser(t, db, 200)

	stored := svc.FromInput(owner, "Gym", "Mon", "", clock(8, 0), false, 0)
	ok, err := svc.Create(ctx, &stored)
	require.NoError(t, err)
	require.True(t, ok)

	incoming := svc.FromInput(attacker, "Taken over", "Tue", "", clock(9, 0), false, stored.ID)
	ok, err = svc.Update(ctx, attacker, &incoming)
	require.NoError(t, err)
	assert.True(t, ok)

	fresh, err := repository.NewWeeklyTaskRepository(db).FindByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Taken over", fresh.Title)
	// The stored row keeps its original owner.
	assert.Equal(t, owner.ID, fresh.UserID)
}

func TestUpdateMissingTemplateIsAnError(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	incoming := svc.FromInput(user, "Gym", "Mon", "", clock(8, 0), false, 9999)
	_, err := svc.Update(context.Background(), user, &incoming)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateRejectsDraft(t *testing.T) {
	svc, db := newTestService(t)
	user := newTestUser(t, db, 100)

	draft := svc.FromInput(user, "", "Mon", "", clock(8, 0), false, 1)
	ok, err := svc.Update(context.Background(), user, &draft)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMissingTemplate(t *testing.T) {
	svc, _ := newTestService(t)
	ok, err := svc.Delete(context.Background(), 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRemovesTemplate(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "Mon", "", clock(8, 0), false, 0)
	_, err := svc.Create(ctx, &task)
	require.NoError(t, err)

	ok, err := svc.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repository.NewWeeklyTaskRepository(db).FindByID(ctx, task.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGenerateCreatesTasksForCurrentWeek(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "Mon, Wed", "leg day", clock(8, 0), true, 0)
	_, err := svc.Create(ctx, &task)
	require.NoError(t, err)

	results := collect(t, svc.Generate(ctx, user))
	assert.Equal(t, []bool{true, true}, results)

	var tasks []model.Task
	require.NoError(t, db.Order("date ASC").Find(&tasks).Error)
	require.Len(t, tasks, 2)

	monday, wednesday := tasks[0], tasks[1]
	assert.Equal(t, "2026-08-24", monday.Date.UTC().Format("2006-01-02"))
	assert.Equal(t, "2026-08-26", wednesday.Date.UTC().Format("2006-01-02"))
	for _, generated := range tasks {
		assert.Equal(t, "Gym", generated.Title)
		assert.Equal(t, "leg day", generated.Description)
		assert.Equal(t, "08:00", generated.Time)
		assert.False(t, generated.IsDone)
		assert.True(t, generated.IsImportant)
		assert.Equal(t, user.ID, generated.UserID)
	}
}

func TestGenerateSecondRunSkipsEverything(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "Mon, Wed", "", clock(8, 0), false, 0)
	_, err := svc.Create(ctx, &task)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true}, collect(t, svc.Generate(ctx, user)))
	assert.Equal(t, []bool{false, false}, collect(t, svc.Generate(ctx, user)))

	var count int64
	require.NoError(t, db.Model(&model.Task{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestGenerateTitleIsPartOfIdentity(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	gym := svc.FromInput(user, "Gym", "Mon, Wed", "", clock(8, 0), false, 0)
	_, err := svc.Create(ctx, &gym)
	require.NoError(t, err)
	yoga := svc.FromInput(user, "Yoga", "Mon, Wed", "", clock(8, 0), false, 0)
	_, err = svc.Create(ctx, &yoga)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, true, true}, collect(t, svc.Generate(ctx, user)))

	var count int64
	require.NoError(t, db.Model(&model.Task{}).Count(&count).Error)
	assert.EqualValues(t, 4, count)
}

func TestGenerateEditedContentDoesNotUpdateExistingTask(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	task := svc.FromInput(user, "Gym", "Mon", "old", clock(8, 0), false, 0)
	_, err := svc.Create(ctx, &task)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, collect(t, svc.Generate(ctx, user)))

	edited := svc.FromInput(user, "Gym", "Mon", "new", clock(8, 0), true, task.ID)
	ok, err := svc.Update(ctx, user, &edited)
	require.NoError(t, err)
	require.True(t, ok)

	// Same date, time and title: the existing task wins.
	assert.Equal(t, []bool{false}, collect(t, svc.Generate(ctx, user)))

	var generated model.Task
	require.NoError(t, db.First(&generated).Error)
	assert.Equal(t, "old", generated.Description)
	assert.False(t, generated.IsImportant)
}

func TestGenerateEmptyDaysYieldsNothing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	// Bypass Create: drafts can't be inserted through the service.
	require.NoError(t, db.Create(&model.WeeklyTask{UserID: user.ID, Title: "Draftish", Days: "", TaskTime: "08:00"}).Error)

	assert.Empty(t, collect(t, svc.Generate(ctx, user)))

	var count int64
	require.NoError(t, db.Model(&model.Task{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGenerateUnknownDayReportsError(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := newTestUser(t, db, 100)

	require.NoError(t, db.Create(&model.WeeklyTask{UserID: user.ID, Title: "Broken", Days: "Mon, Xyz", TaskTime: "08:00"}).Error)

	var inserted int
	var failures int
	for ok, err := range svc.Generate(ctx, user) {
		if err != nil {
			failures++
			continue
		}
		if ok {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, failures)
}

func TestGenerateScopedToUser(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := newTestUser(t, db, 100)
	bob := newTestUser(t, db, 200)

	task := svc.FromInput(alice, "Gym", "Mon", "", clock(8, 0), false, 0)
	_, err := svc.Create(ctx, &task)
	require.NoError(t, err)

	assert.Empty(t, collect(t, svc.Generate(ctx, bob)))
	assert.Equal(t, []bool{true}, collect(t, svc.Generate(ctx, alice)))
}
