package bot

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/config"
	"github.com/netebla/Milky-Tarot/internal/database"
	"github.com/netebla/Milky-Tarot/internal/models"
	"github.com/netebla/Milky-Tarot/internal/push"
	"github.com/netebla/Milky-Tarot/internal/scheduler"
	"github.com/netebla/Milky-Tarot/internal/services"
	"github.com/netebla/Milky-Tarot/internal/yookassa"
)

type sentMessage struct {
	to   string
	what interface{}
}

type fakeBot struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to.Recipient(), what: what})
	return &tele.Message{}, nil
}

func (f *fakeBot) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestMainMenuLayout(t *testing.T) {
	menu := mainMenu()

	require.True(t, menu.ResizeKeyboard)
	assert.Equal(t, "Выберите действие", menu.Placeholder)

	var labels [][]string
	for _, row := range menu.ReplyKeyboard {
		var texts []string
		for _, btn := range row {
			texts = append(texts, btn.Text)
		}
		labels = append(labels, texts)
	}
	assert.Equal(t, [][]string{
		{btnDailyCard},
		{btnAdvice, btnYearEnergy},
		{btnThreeCards},
		{btnSettings, btnHelp},
	}, labels)
}

func TestSettingsMenuToggle(t *testing.T) {
	on := settingsMenu(true)
	require.Len(t, on.InlineKeyboard, 3)
	assert.Equal(t, cbChangePushTime, on.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "Выключить пуши", on.InlineKeyboard[1][0].Text)
	assert.Equal(t, cbPushOff, on.InlineKeyboard[1][0].Unique)
	assert.Equal(t, cbHelp, on.InlineKeyboard[2][0].Unique)

	off := settingsMenu(false)
	assert.Equal(t, "Включить пуши", off.InlineKeyboard[1][0].Text)
	assert.Equal(t, cbPushOn, off.InlineKeyboard[1][0].Unique)
}

func TestTimeMenuPresets(t *testing.T) {
	menu := timeMenu()

	// 7 presets in rows of three plus a cancel row.
	require.Len(t, menu.InlineKeyboard, 4)
	assert.Len(t, menu.InlineKeyboard[0], 3)
	assert.Len(t, menu.InlineKeyboard[1], 3)
	assert.Len(t, menu.InlineKeyboard[2], 1)

	first := menu.InlineKeyboard[0][0]
	assert.Equal(t, "08:00", first.Text)
	assert.Equal(t, cbSetTime, first.Unique)
	assert.Equal(t, "08:00", first.Data)

	cancel := menu.InlineKeyboard[3][0]
	assert.Equal(t, "Отмена", cancel.Text)
	assert.Equal(t, cbCancelTime, cancel.Unique)
}

func TestTariffMenu(t *testing.T) {
	menu := tariffMenu()

	require.Len(t, menu.InlineKeyboard, len(models.Tariffs))
	assert.Equal(t, "50₽ – 350 🐟", menu.InlineKeyboard[0][0].Text)
	assert.Equal(t, cbPayTariff, menu.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "50", menu.InlineKeyboard[0][0].Data)
	assert.Equal(t, "650₽ – 4550 🐟", menu.InlineKeyboard[3][0].Text)
	assert.Equal(t, "650", menu.InlineKeyboard[3][0].Data)
}

func TestPaymentActionsMenu(t *testing.T) {
	menu := paymentActionsMenu(7)

	require.Len(t, menu.InlineKeyboard, 2)
	check := menu.InlineKeyboard[0][0]
	assert.Equal(t, "Я оплатил, проверить", check.Text)
	assert.Equal(t, cbCheckPayment, check.Unique)
	assert.Equal(t, "7", check.Data)
	assert.Equal(t, mainBotURL, menu.InlineKeyboard[1][0].URL)
}

func TestSettingsText(t *testing.T) {
	assert.Equal(t, "Настройки пушей:\n\nСостояние: Включены\nВремя: 10:00", settingsText(true, "10:00"))
	assert.Equal(t, "Настройки пушей:\n\nСостояние: Выключены\nВремя: 21:00", settingsText(false, "21:00"))
}

func TestStatsText(t *testing.T) {
	got := statsText(models.Stats{TotalUsers: 12, ActiveToday: 3, TotalDraws: 88})
	assert.Equal(t, "📊 Статистика:\n👥 Пользователей: 12\n🔥 Активны сегодня: 3\n🃏 Вытянуто карт (всего): 88", got)
}

func TestSelectedTariffText(t *testing.T) {
	plain := selectedTariffText(models.Tariff{AmountRub: 50, TotalFish: 350})
	assert.Contains(t, plain, "Ты выбрал тариф на 50₽.")
	assert.Contains(t, plain, "будет начислено 350 🐟")
	assert.NotContains(t, plain, "бонусные")

	bonus := selectedTariffText(models.Tariff{AmountRub: 150, TotalFish: 1050, BonusFish: 150})
	assert.Contains(t, bonus, "(из них 150 — бонусные 🎁)")
}

func TestThreeCardsText(t *testing.T) {
	drawn := []cards.Card{{Title: "Солнце"}, {Title: "Луна"}, {Title: "Звезда"}}
	got := threeCardsText(drawn, "Свет сменяется тенью.")
	assert.Equal(t, "🃏 Твои карты: Солнце, Луна, Звезда\n\nСвет сменяется тенью.", got)
}

func TestInsufficientFishText(t *testing.T) {
	got := insufficientFishText(150, 20)
	assert.Contains(t, got, "Расклад стоит 150 🐟, а у тебя 20.")
	assert.Contains(t, got, "@Milky_payment_bot")
}

func TestRestorePushSchedules(t *testing.T) {
	db := newTestDB(t)
	users := services.NewUserService(db, time.UTC)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, 1, "a", "")
	require.NoError(t, err)
	_, err = users.EnsureUser(ctx, 2, "b", "")
	require.NoError(t, err)
	require.NoError(t, users.SetPushTime(ctx, 2, "21:00"))
	_, err = users.EnsureUser(ctx, 3, "c", "")
	require.NoError(t, err)
	require.NoError(t, users.SetPushEnabled(ctx, 3, false))

	sched := scheduler.New(time.UTC)
	deck := []cards.Card{{Title: "Солнце", Description: "Ясный день."}}
	spreads := services.NewSpreadService(db, deck, deck, fixedRNG{}, time.UTC)
	sender := push.NewSender(&fakeBot{}, users, spreads, deck, nil)

	require.NoError(t, RestorePushSchedules(ctx, users, sched, sender))

	assert.True(t, sched.HasPush(1))
	assert.True(t, sched.HasPush(2))
	assert.False(t, sched.HasPush(3))
}

type fixedRNG struct{}

func (fixedRNG) Intn(n int) int { return 0 }

// providerStub fakes the payment provider API.
func providerStub(t *testing.T, status string, paid bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"id":             "yk-1",
			"status":         status,
			"paid":           paid,
			"payment_method": map[string]string{"type": "bank_card"},
		})
		require.NoError(t, err)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newPayHandler(t *testing.T, db *sql.DB, providerURL string) *PayHandler {
	t.Helper()
	return &PayHandler{
		cfg:           &config.Config{},
		users:         services.NewUserService(db, time.UTC),
		payments:      services.NewPaymentService(db),
		yk:            yookassa.NewClient(http.DefaultClient, providerURL, "shop", "secret", mainBotURL),
		checkAttempts: 3,
		checkInterval: time.Millisecond,
	}
}

func seedPayment(t *testing.T, h *PayHandler, userID int64, status string) models.Payment {
	t.Helper()
	ctx := context.Background()
	_, err := h.users.EnsureUser(ctx, userID, "payer", "")
	require.NoError(t, err)
	payment, err := h.payments.Create(ctx, models.Payment{
		UserID:     userID,
		YookassaID: "yk-1",
		AmountRub:  50,
		FishAmount: 350,
		Status:     status,
	})
	require.NoError(t, err)
	return payment
}

func TestAutoCheckSettlesPayment(t *testing.T) {
	db := newTestDB(t)
	srv, _ := providerStub(t, models.PaymentSucceeded, true)
	h := newPayHandler(t, db, srv.URL)
	payment := seedPayment(t, h, 42, models.PaymentPending)

	bot := &fakeBot{}
	h.autoCheck(bot, payment.ID, 42)

	user, err := h.users.GetUserByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 350, user.FishBalance)

	stored, err := h.payments.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, stored.Status)
	assert.Equal(t, "bank_card", stored.Method)

	msgs := bot.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].what.(string), "Оплата прошла успешно ✨")
	assert.Contains(t, msgs[0].what.(string), "Тебе начислено 350 🐟.")
	photo, ok := msgs[1].what.(*tele.Photo)
	require.True(t, ok)
	assert.Contains(t, photo.Caption, "Спасибо за рыбки!")
}

func TestAutoCheckReportsCanceled(t *testing.T) {
	db := newTestDB(t)
	srv, _ := providerStub(t, models.PaymentCanceled, false)
	h := newPayHandler(t, db, srv.URL)
	payment := seedPayment(t, h, 42, models.PaymentPending)

	bot := &fakeBot{}
	h.autoCheck(bot, payment.ID, 42)

	stored, err := h.payments.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCanceled, stored.Status)

	user, err := h.users.GetUserByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0, user.FishBalance)

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, payCanceledText, msgs[0].what)
}

func TestAutoCheckGivesUpAfterAttempts(t *testing.T) {
	db := newTestDB(t)
	srv, hits := providerStub(t, models.PaymentPending, false)
	h := newPayHandler(t, db, srv.URL)
	payment := seedPayment(t, h, 42, models.PaymentPending)

	bot := &fakeBot{}
	h.autoCheck(bot, payment.ID, 42)

	assert.Equal(t, h.checkAttempts, int(hits.Load()))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, payTimeoutText, msgs[0].what)
}

func TestAutoCheckSkipsAlreadySettled(t *testing.T) {
	db := newTestDB(t)
	srv, hits := providerStub(t, models.PaymentSucceeded, true)
	h := newPayHandler(t, db, srv.URL)
	payment := seedPayment(t, h, 42, models.PaymentSucceeded)

	bot := &fakeBot{}
	h.autoCheck(bot, payment.ID, 42)

	// The stored status already being terminal means no provider call.
	assert.Equal(t, 0, int(hits.Load()))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].what.(string), "Оплата уже была успешно проведена ✅")
}
