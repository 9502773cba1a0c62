package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"weekly-planner/internal/model"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/service"
	"weekly-planner/internal/weekday"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDays
	stageTime
	stageContent
	stageImportant
)

const (
	btnSkip         = "⏭️ Пропустить"
	btnYes          = "Да"
	btnNo           = "Нет"
	btnDaysDone     = "✅ Готово"
	btnConfirm      = "✅ Подтвердить"
	btnCancel       = "↩️ Отмена"
	btnCancelDialog = "⏪ Отменить ввод"
)

type templateDraft struct {
	title       string
	days        map[time.Weekday]bool
	taskTime    *time.Time
	content     string
	isImportant bool
}

type conversationState struct {
	stage     conversationStage
	editingID uint
	draft     templateDraft
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	weeklySvc     *service.WeeklyTaskService
	summarySvc    *service.SummaryService
	log           zerolog.Logger
	conversations map[int64]*conversationState
	deletions     map[int64]uint
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, weeklySvc *service.WeeklyTaskService, summarySvc *service.SummaryService, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info().Str("account", api.Self.UserName).Msg("bot authorized")

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		weeklySvc:     weeklySvc,
		summarySvc:    summarySvc,
		log:           log,
		conversations: make(map[int64]*conversationState),
		deletions:     make(map[int64]uint),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Msg("handle message")
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearDeletion(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Диалог отменён. Набери /newweekly, чтобы начать заново.")
	}

	if msg.IsCommand() {
		b.log.Info().Int64("from", msg.From.ID).Str("command", msg.Command()).Msg("command")
		return b.handleCommand(ctx, msg)
	}

	if id, ok := b.getDeletion(msg.From.ID); ok {
		return b.handleDeleteConfirmation(ctx, msg, id)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /newweekly, чтобы добавить шаблон, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newweekly":
		return b.startConversation(ctx, msg, 0)
	case "editweekly":
		return b.handleEdit(ctx, msg)
	case "weekly":
		return b.handleListWeekly(ctx, msg)
	case "deleteweekly":
		return b.handleDelete(ctx, msg)
	case "generate":
		return b.handleGenerate(ctx, msg)
	case "week":
		return b.handleWeek(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearDeletion(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Диалог отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик недели: превращаю еженедельные шаблоны в задачи.</b>\n\nКоманды:\n"+
			"• /newweekly — добавить еженедельный шаблон\n"+
			"• /weekly — показать шаблоны\n"+
			"• /editweekly &lt;id&gt; — изменить шаблон\n"+
			"• /deleteweekly &lt;id&gt; — удалить шаблон\n"+
			"• /generate — создать задачи на эту неделю\n"+
			"• /week — план на неделю\n"+
			"• /cancel — отменить текущий ввод",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /newweekly — пошагово создать шаблон: название, дни недели, время\n" +
		"• /weekly — список шаблонов с номерами\n" +
		"• /editweekly &lt;id&gt; — заново заполнить шаблон по номеру\n" +
		"• /deleteweekly &lt;id&gt; — удалить шаблон по номеру\n" +
		"• /generate — развернуть шаблоны в задачи текущей недели (повторный запуск дубликатов не создаёт)\n" +
		"• /week — показать, что уже запланировано\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) startConversation(ctx context.Context, msg *tgbotapi.Message, editingID uint) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{
		stage:     stageTitle,
		editingID: editingID,
		draft:     templateDraft{days: make(map[time.Weekday]bool)},
	})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём еженедельный шаблон.\n<b>Шаг 1:</b> как назвать задачу?", cancelKeyboard())
}

func (b *Bot) handleEdit(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи номер шаблона: /editweekly 3")
	}
	return b.startConversation(ctx, msg, id)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		state.draft.title = text
		state.stage = stageDays
		return b.sendWithReplyMarkup(msg.Chat.ID, "📆 Отметь дни недели по одному и нажми «Готово».", daysKeyboard(state.draft.days))
	case stageDays:
		if text == btnDaysDone {
			if len(state.draft.days) == 0 {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Нужен хотя бы один день недели.", daysKeyboard(state.draft.days))
			}
			state.stage = stageTime
			return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Во сколько? Формат <code>09:05</code>.", cancelKeyboard())
		}
		day, err := weekday.Parse(strings.TrimPrefix(text, "☑️ "))
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери день кнопкой: Mon … Sun, затем «Готово».", daysKeyboard(state.draft.days))
		}
		state.draft.days[day] = !state.draft.days[day]
		if !state.draft.days[day] {
			delete(state.draft.days, day)
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("Выбрано: %s", selectedDaysLabel(state.draft.days)), daysKeyboard(state.draft.days))
	case stageTime:
		parsed, err := time.Parse("15:04", text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать время. Используй формат <code>09:05</code>.", cancelKeyboard())
		}
		state.draft.taskTime = &parsed
		state.stage = stageContent
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь описание (или нажми «Пропустить»).", skipKeyboard())
	case stageContent:
		if !isSkipInput(text) {
			state.draft.content = text
		}
		state.stage = stageImportant
		return b.sendWithReplyMarkup(msg.Chat.ID, "❗️ Пометить задачу важной?", yesNoKeyboard())
	case stageImportant:
		lower := strings.ToLower(text)
		switch {
		case lower == "да" || lower == "yes" || lower == "y":
			state.draft.isImportant = true
		case lower == "нет" || lower == "no" || lower == "n" || lower == "-":
			state.draft.isImportant = false
		default:
			return b.sendWithReplyMarkup(msg.Chat.ID, "Нажми «Да» или «Нет».", yesNoKeyboard())
		}
		err := b.finishConversation(ctx, msg.From, state, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newweekly.")
	}
}

func (b *Bot) finishConversation(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	draft := state.draft
	task := b.weeklySvc.FromInput(user, draft.title, weekday.Encode(draft.days), draft.content, draft.taskTime, draft.isImportant, state.editingID)

	var saved bool
	if state.editingID != 0 {
		saved, err = b.weeklySvc.Update(ctx, user, &task)
	} else {
		saved, err = b.weeklySvc.Create(ctx, &task)
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return b.sendText(chatID, "Шаблон с таким номером не найден.")
	case err != nil:
		return b.sendText(chatID, fmt.Sprintf("Не удалось сохранить шаблон: %s", escape(err.Error())))
	case !saved:
		return b.sendText(chatID, "Шаблон не сохранён: нужны название, дни недели и время.")
	}

	b.log.Info().Uint("template", task.ID).Uint("user", user.ID).Bool("edit", state.editingID != 0).Msg("weekly template saved")

	var summary strings.Builder
	summary.WriteString("✅ <b>Шаблон сохранён</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(normalizeTitle(task.Title))))
	summary.WriteString(fmt.Sprintf("• <b>Дни:</b> %s\n", escape(task.Days)))
	summary.WriteString(fmt.Sprintf("• <b>Время:</b> %s\n", task.TaskTime))
	if task.Content != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Content)))
	}
	if task.IsImportant {
		summary.WriteString("• ❗️ Важная\n")
	}
	summary.WriteString("\nЗапусти /generate, чтобы создать задачи на эту неделю.")

	return b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String()))
}

func (b *Bot) handleListWeekly(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	templates, err := b.weeklySvc.ListTemplates(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить шаблоны: %s", escape(err.Error())))
	}
	if len(templates) == 0 {
		return b.sendText(msg.Chat.ID, "Шаблонов пока нет. Добавь первый через /newweekly.")
	}

	var builder strings.Builder
	builder.WriteString("🔁 <b>Еженедельные шаблоны</b>\n\n")
	for _, tpl := range templates {
		icon := "🟢"
		if tpl.IsImportant {
			icon = "❗️"
		}
		builder.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, tpl.ID, escape(normalizeTitle(tpl.Title))))
		builder.WriteString(fmt.Sprintf("   📆 %s в %s\n", escape(tpl.Days), tpl.TaskTime))
		if tpl.Content != "" {
			builder.WriteString(fmt.Sprintf("   📝 %s\n", escape(tpl.Content)))
		}
		builder.WriteByte('\n')
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи номер шаблона: /deleteweekly 3")
	}
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setDeletion(msg.From.ID, id)
	return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("Удалить шаблон #%d? Созданные задачи останутся.", id), confirmKeyboard())
}

func (b *Bot) handleDeleteConfirmation(ctx context.Context, msg *tgbotapi.Message, id uint) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearDeletion(msg.From.ID)
		deleted, err := b.weeklySvc.Delete(ctx, id)
		if err != nil {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
		}
		if !deleted {
			return b.sendText(msg.Chat.ID, "Шаблон с таким номером не найден.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Шаблон #%d удалён.", id))
	case isCancelInput(text):
		b.clearDeletion(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Удаление отменено.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Подтверди или отмени удаление шаблона.", confirmKeyboard())
	}
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	created, skipped := 0, 0
	for inserted, err := range b.weeklySvc.Generate(ctx, user) {
		if err != nil {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось создать задачи: %s", escape(err.Error())))
		}
		if inserted {
			created++
		} else {
			skipped++
		}
	}

	b.log.Info().Uint("user", user.ID).Int("created", created).Int("skipped", skipped).Msg("generation pass")

	if created == 0 && skipped == 0 {
		return b.sendText(msg.Chat.ID, "Шаблонов для генерации нет. Добавь их через /newweekly.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📌 Создано задач: %d, уже существовало: %d. Смотри /week.", created, skipped))
}

func (b *Bot) handleWeek(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.summarySvc.WeekSummary(ctx, user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сформировать план: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

// GenerateForAllUsers runs the generation pass for every known user;
// the scheduler calls this nightly.
func (b *Bot) GenerateForAllUsers(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		created, skipped := 0, 0
		for inserted, err := range b.weeklySvc.Generate(ctx, &user) {
			if err != nil {
				b.log.Error().Err(err).Uint("user", user.ID).Msg("generation pass")
				break
			}
			if inserted {
				created++
			} else {
				skipped++
			}
		}
		b.log.Info().Uint("user", user.ID).Int("created", created).Int("skipped", skipped).Msg("scheduled generation")
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) getDeletion(userID int64) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.deletions[userID]
	return id, ok
}

func (b *Bot) setDeletion(userID int64, id uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletions[userID] = id
}

func (b *Bot) clearDeletion(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.deletions, userID)
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func yesNoKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
			tgbotapi.NewKeyboardButton(btnNo),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func daysKeyboard(selected map[time.Weekday]bool) tgbotapi.ReplyKeyboardMarkup {
	row := func(days ...time.Weekday) []tgbotapi.KeyboardButton {
		var buttons []tgbotapi.KeyboardButton
		for _, d := range days {
			label := weekday.Abbrev(d)
			if selected[d] {
				label = "☑️ " + label
			}
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		return buttons
	}
	kb := tgbotapi.NewReplyKeyboard(
		row(time.Monday, time.Tuesday, time.Wednesday, time.Thursday),
		row(time.Friday, time.Saturday, time.Sunday),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDaysDone),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func selectedDaysLabel(days map[time.Weekday]bool) string {
	encoded := weekday.Encode(days)
	if encoded == "" {
		return "ничего"
	}
	return encoded
}

func parseID(args string) (uint, error) {
	id64, err := strconv.ParseUint(strings.TrimSpace(args), 10, 64)
	if err != nil || id64 == 0 {
		return 0, fmt.Errorf("invalid id %q", args)
	}
	return uint(id64), nil
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод" || value == "отмена"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
