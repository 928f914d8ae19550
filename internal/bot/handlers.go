package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/config"
	"github.com/netebla/Milky-Tarot/internal/llm"
	"github.com/netebla/Milky-Tarot/internal/metrics"
	"github.com/netebla/Milky-Tarot/internal/models"
	"github.com/netebla/Milky-Tarot/internal/push"
	"github.com/netebla/Milky-Tarot/internal/scheduler"
	"github.com/netebla/Milky-Tarot/internal/services"
)

// broadcastWorkers is the fan-out width of the year-energy broadcast.
const broadcastWorkers = 4

const (
	welcomeText = "👋 Привет! Рада познакомиться и видеть тебя здесь. Я — Милки, твой спутник в мире карт. " +
		"Каждый день я буду присылать твою персональную карту и показывать, на что стоит обратить внимание, " +
		"какие скрытые возможности рядом и где сосредоточена твоя энергия. 🌟 С чего начнем сегодня? ❤️"
	helpText        = "Для связи с админом пишите @netebla"
	startFirstText  = "Сначала нажми /start 🚀"
	errTryLaterText = "Что-то пошло не так. Попробуй немного позже 🌙"
	adviceLimitText = "⚠️ Лимит советов на сегодня исчерпан. Следующие будут доступны завтра 🌙"
	chooseTimeText  = "Выберите время отправки уведомления:"
	noRightsText    = "Недостаточно прав."
	askQuestionText = "Напиши свой вопрос, и я вытяну для тебя расклад на три карты 🃏✨"
	llmFailedText   = "Карты сейчас молчат 🌫 Попробуй немного позже — рыбки уже вернулись на твой баланс."
)

// Handler carries the main bot's dependencies.
type Handler struct {
	cfg     *config.Config
	users   services.UserServiceProvider
	spreads services.SpreadServiceProvider
	sched   *scheduler.Scheduler
	sender  *push.Sender
	reader  *llm.Reader

	// Users who pressed the three-card button and owe us a question.
	mu      sync.Mutex
	pending map[int64]struct{}
}

func (h *Handler) register(b *tele.Bot) {
	b.Handle("/start", h.start)
	b.Handle("/help", h.help)
	b.Handle("/admin_stats", h.adminStats)
	b.Handle("/send_year_energy", h.broadcastYearEnergy)

	b.Handle(&tele.Btn{Text: btnDailyCard}, h.dailyCard)
	b.Handle(&tele.Btn{Text: btnAdvice}, h.adviceCard)
	b.Handle(&tele.Btn{Text: btnYearEnergy}, h.yearEnergy)
	b.Handle(&tele.Btn{Text: btnThreeCards}, h.askThreeCards)
	b.Handle(&tele.Btn{Text: btnSettings}, h.settings)
	b.Handle(&tele.Btn{Text: btnHelp}, h.help)

	b.Handle(&tele.Btn{Unique: cbChangePushTime}, h.changePushTime)
	b.Handle(&tele.Btn{Unique: cbSetTime}, h.setPushTime)
	b.Handle(&tele.Btn{Unique: cbCancelTime}, h.cancelTime)
	b.Handle(&tele.Btn{Unique: cbPushOff}, h.pushOff)
	b.Handle(&tele.Btn{Unique: cbPushOn}, h.pushOn)
	b.Handle(&tele.Btn{Unique: cbHelp}, h.helpCallback)

	b.Handle(tele.OnText, h.onText)
}

// pushTask is the closure every push schedule runs at fire time.
func (h *Handler) pushTask(userID int64) {
	h.sender.SendDailyCard(context.Background(), userID)
}

func (h *Handler) schedulePush(userID int64, pushTime string) {
	if err := h.sched.ScheduleDailyPush(userID, pushTime, h.pushTask); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("push_time", pushTime).
			Msg("Failed to schedule push")
	}
}

// touch marks the user active today; stats-only, so failures just log.
func (h *Handler) touch(ctx context.Context, userID int64) {
	if err := h.users.TouchActivity(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to touch user activity")
	}
}

// start registers the user, restores their push schedule, and shows the
// welcome message with the main menu.
func (h *Handler) start(c tele.Context) error {
	ctx := context.Background()
	from := c.Sender()
	displayName := strings.TrimSpace(from.FirstName + " " + from.LastName)

	user, err := h.users.EnsureUser(ctx, from.ID, from.Username, displayName)
	if err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to ensure user on /start")
		return c.Send(errTryLaterText)
	}
	if user.PushEnabled {
		h.schedulePush(from.ID, user.PushTime)
	}

	photo := &tele.Photo{
		File:    tele.FromURL(cards.ImageBaseURL + "/welcome.jpg"),
		Caption: welcomeText,
	}
	return c.Send(photo, mainMenu())
}

func (h *Handler) help(c tele.Context) error {
	return c.Send(helpText)
}

// helpCallback serves the help button of the settings keyboard.
func (h *Handler) helpCallback(c tele.Context) error {
	if err := c.Send(helpText); err != nil {
		return err
	}
	return c.Respond()
}

// dailyCard sends the card of the day. A user without a row is created on
// the spot, matching the /start behavior.
func (h *Handler) dailyCard(c tele.Context) error {
	ctx := context.Background()
	from := c.Sender()

	if _, err := h.users.EnsureUser(ctx, from.ID, from.Username, ""); err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to ensure user for daily card")
		return c.Send(errTryLaterText)
	}

	card, err := h.spreads.DailyCard(ctx, from.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to draw daily card")
		return c.Send(errTryLaterText)
	}
	metrics.Draws.WithLabelValues("day").Inc()
	h.touch(ctx, from.ID)

	return c.Send(&tele.Photo{
		File:    tele.FromURL(card.ImageURL()),
		Caption: fmt.Sprintf("Карта дня: %s\n\n%s", card.Title, card.Description),
	})
}

// adviceCard sends a random advice card within the daily limit.
func (h *Handler) adviceCard(c tele.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID

	card, err := h.spreads.AdviceCard(ctx, userID)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		return c.Send(startFirstText)
	case errors.Is(err, models.ErrAdviceLimit):
		return c.Send(adviceLimitText)
	case err != nil:
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to draw advice card")
		return c.Send(errTryLaterText)
	}
	metrics.Draws.WithLabelValues("advice").Inc()
	h.touch(ctx, userID)

	return c.Send(&tele.Photo{
		File:    tele.FromURL(card.ImageURL()),
		Caption: fmt.Sprintf("✨ Совет карт: %s\n\n%s", card.Title, card.Description),
	})
}

// yearEnergy delivers the user's sticky "Energy of the Year" card. Delivery
// goes through the push sender, the same path the admin broadcast takes.
func (h *Handler) yearEnergy(c tele.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID

	err := h.sender.SendYearEnergy(ctx, userID)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		return c.Send(startFirstText)
	case errors.Is(err, models.ErrEmptyCatalog):
		log.Error().Msg("Year energy catalog is empty")
		return c.Send(errTryLaterText)
	case err != nil:
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to send year energy card")
		return c.Send(errTryLaterText)
	}
	h.touch(ctx, userID)
	return nil
}

// askThreeCards starts the three-card flow by asking for a question. The
// user's next text message completes it.
func (h *Handler) askThreeCards(c tele.Context) error {
	userID := c.Sender().ID
	if _, err := h.users.GetUserByID(context.Background(), userID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return c.Send(startFirstText)
		}
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for three-card spread")
		return c.Send(errTryLaterText)
	}

	h.mu.Lock()
	h.pending[userID] = struct{}{}
	h.mu.Unlock()
	return c.Send(askQuestionText)
}

// onText catches free-form text: a pending three-card question is consumed,
// anything else is ignored.
func (h *Handler) onText(c tele.Context) error {
	userID := c.Sender().ID

	h.mu.Lock()
	_, pending := h.pending[userID]
	if pending {
		delete(h.pending, userID)
	}
	h.mu.Unlock()
	if !pending {
		return nil
	}
	return h.threeCards(c, c.Text())
}

// threeCards charges the spread, draws three cards, and sends the generated
// reading. A failed generation refunds the charge.
func (h *Handler) threeCards(c tele.Context, question string) error {
	ctx := context.Background()
	userID := c.Sender().ID

	drawn, err := h.spreads.ThreeCards(ctx, userID)
	switch {
	case errors.Is(err, models.ErrInsufficientFish):
		balance := 0
		if user, uerr := h.users.GetUserByID(ctx, userID); uerr == nil {
			balance = user.FishBalance
		}
		return c.Send(insufficientFishText(services.ThreeCardsCost, balance))
	case errors.Is(err, models.ErrUserNotFound):
		return c.Send(startFirstText)
	case err != nil:
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to draw three-card spread")
		return c.Send(errTryLaterText)
	}
	metrics.Draws.WithLabelValues("three_cards").Inc()
	h.touch(ctx, userID)

	// The reading takes the LLM a few seconds.
	if err := c.Notify(tele.Typing); err != nil {
		log.Warn().Err(err).Msg("Failed to send typing action")
	}

	reading, err := h.reader.ThreeCardReading(ctx, drawn, question)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to generate three-card reading")
		if rerr := h.spreads.RefundThreeCards(ctx, userID); rerr != nil {
			log.Error().Err(rerr).Int64("user_id", userID).Msg("Failed to refund three-card spread")
		}
		return c.Send(llmFailedText)
	}
	return c.Send(threeCardsText(drawn, reading))
}

// settings shows the push settings with the inline controls.
func (h *Handler) settings(c tele.Context) error {
	user, err := h.users.GetUserByID(context.Background(), c.Sender().ID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return c.Send(startFirstText)
		}
		log.Error().Err(err).Int64("user_id", c.Sender().ID).Msg("Failed to load user settings")
		return c.Send(errTryLaterText)
	}
	return c.Send(settingsText(user.PushEnabled, user.PushTime), settingsMenu(user.PushEnabled))
}

func (h *Handler) changePushTime(c tele.Context) error {
	if err := c.Edit(chooseTimeText, timeMenu()); err != nil {
		return err
	}
	return c.Respond()
}

// setPushTime reschedules the push first, so an invalid preset never lands
// in the database.
func (h *Handler) setPushTime(c tele.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID
	pushTime := c.Data()

	if err := h.sched.ScheduleDailyPush(userID, pushTime, h.pushTask); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Str("push_time", pushTime).
			Msg("Rejected push time")
		return c.Respond(&tele.CallbackResponse{Text: errTryLaterText})
	}
	if err := h.users.SetPushTime(ctx, userID, pushTime); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to store push time")
		return c.Respond(&tele.CallbackResponse{Text: errTryLaterText})
	}

	if err := c.Edit(fmt.Sprintf("Время пуша обновлено на %s.", pushTime)); err != nil {
		return err
	}
	return c.Respond()
}

func (h *Handler) cancelTime(c tele.Context) error {
	if err := c.Edit("Настройки обновлены."); err != nil {
		return err
	}
	return c.Respond()
}

func (h *Handler) pushOff(c tele.Context) error {
	userID := c.Sender().ID
	if err := h.users.SetPushEnabled(context.Background(), userID, false); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to disable pushes")
		return c.Respond(&tele.CallbackResponse{Text: errTryLaterText})
	}
	h.sched.RemovePush(userID)

	if err := c.Edit("Пуши отключены."); err != nil {
		return err
	}
	return c.Respond()
}

func (h *Handler) pushOn(c tele.Context) error {
	ctx := context.Background()
	userID := c.Sender().ID
	if err := h.users.SetPushEnabled(ctx, userID, true); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to enable pushes")
		return c.Respond(&tele.CallbackResponse{Text: errTryLaterText})
	}

	pushTime := models.DefaultPushTime
	if user, err := h.users.GetUserByID(ctx, userID); err == nil && user.PushTime != "" {
		pushTime = user.PushTime
	}
	h.schedulePush(userID, pushTime)

	if err := c.Edit("Пуши включены."); err != nil {
		return err
	}
	return c.Respond()
}

// adminStats reports the user and draw totals to admins.
func (h *Handler) adminStats(c tele.Context) error {
	if !h.cfg.IsAdmin(c.Sender().ID) {
		return c.Send(noRightsText)
	}
	stats, err := h.users.Stats(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect stats")
		return c.Send(errTryLaterText)
	}
	return c.Send(statsText(stats))
}

// broadcastYearEnergy pushes the year-energy spread to the listed user IDs,
// or to everyone when called without arguments.
func (h *Handler) broadcastYearEnergy(c tele.Context) error {
	if !h.cfg.IsAdmin(c.Sender().ID) {
		return c.Send(noRightsText)
	}

	if args := c.Args(); len(args) > 0 {
		sent, failed := 0, 0
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return c.Send(fmt.Sprintf("Не понимаю ID «%s».", arg))
			}
			if err := h.sender.SendYearEnergy(context.Background(), id); err != nil {
				log.Warn().Err(err).Int64("user_id", id).Msg("Failed to deliver year energy card")
				failed++
				continue
			}
			sent++
		}
		return c.Send(broadcastDoneText(sent, failed))
	}

	if err := c.Send("Запускаю рассылку «Энергия года» всем пользователям…"); err != nil {
		return err
	}
	adminID := c.Sender().ID
	bot := c.Bot()
	go func() {
		sent, failed := h.sender.BroadcastYearEnergy(context.Background(), broadcastWorkers)
		if _, err := bot.Send(tele.ChatID(adminID), broadcastDoneText(sent, failed)); err != nil {
			log.Error().Err(err).Msg("Failed to report broadcast result")
		}
	}()
	return nil
}

func settingsText(pushEnabled bool, pushTime string) string {
	state := "Выключены"
	if pushEnabled {
		state = "Включены"
	}
	return fmt.Sprintf("Настройки пушей:\n\nСостояние: %s\nВремя: %s", state, pushTime)
}

func statsText(s models.Stats) string {
	return fmt.Sprintf("📊 Статистика:\n👥 Пользователей: %d\n🔥 Активны сегодня: %d\n🃏 Вытянуто карт (всего): %d",
		s.TotalUsers, s.ActiveToday, s.TotalDraws)
}

func insufficientFishText(cost, balance int) string {
	return fmt.Sprintf("Недостаточно рыбок 🐟 Расклад стоит %d 🐟, а у тебя %d.\n"+
		"Пополнить баланс можно в @Milky_payment_bot", cost, balance)
}

func threeCardsText(drawn []cards.Card, reading string) string {
	titles := make([]string, len(drawn))
	for i, card := range drawn {
		titles[i] = card.Title
	}
	return fmt.Sprintf("🃏 Твои карты: %s\n\n%s", strings.Join(titles, ", "), reading)
}

func broadcastDoneText(sent, failed int) string {
	return fmt.Sprintf("Рассылка завершена: отправлено %d, ошибок %d.", sent, failed)
}
