package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/config"
	"github.com/netebla/Milky-Tarot/internal/metrics"
	"github.com/netebla/Milky-Tarot/internal/models"
	"github.com/netebla/Milky-Tarot/internal/push"
	"github.com/netebla/Milky-Tarot/internal/services"
	"github.com/netebla/Milky-Tarot/internal/yookassa"
)

const (
	payAdminOnlyText = "Этот бот сейчас доступен только администраторам для тестирования оплат."
	payGreetingText  = "Привет! Здесь можно пополнить баланс рыбок 🐟\n\n" +
		"Выбери, на сколько хочешь пополнить баланс:"
	payAfterText        = "После того как оплатишь, вернись в этот чат и нажми «Я оплатил, проверить»."
	payCreateFailedText = "Не удалось создать платёж в ЮKassa. " +
		"Попробуй немного позже или напиши администратору."
	payNoURLText      = "Не удалось получить ссылку на оплату. Напиши, пожалуйста, администратору."
	payNotFoundText   = "Платёж не найден. Напиши, пожалуйста, администратору."
	payWrongOwnerText = "Этот платёж привязан к другому пользователю."
	payStatusFailText = "Не удалось получить статус платежа. Попробуй ещё раз через минуту."
	payCanceledText   = "Платёж находится в статусе «отменён» или не был завершён.\n" +
		"Если деньги всё же списались, напиши, пожалуйста, администратору."
	payPendingText = "Платёж ещё не завершён. Если ты только что оплатил, " +
		"подожди 1–2 минуты и нажми «Я оплатил, проверить» ещё раз."
	payTimeoutText = "Платёж всё ещё в ожидании.\n" +
		"Если ты уже оплатил и деньги списались, вернись в этого бота " +
		"и нажми кнопку «Я оплатил, проверить» под последним сообщением об оплате."
	fedMilkyText = "Спасибо за рыбки!💖💖💖\n" +
		"Теперь я снова в порядке — сытая, собранная и готовая продолжать 😻\n" +
		"Пиши свой вопрос — я уже готова вытянуть карты для тебя 🐈‍⬛"
)

// PayHandler carries the payment bot's dependencies.
type PayHandler struct {
	cfg      *config.Config
	users    services.UserServiceProvider
	payments services.PaymentServiceProvider
	yk       *yookassa.Client

	checkAttempts int
	checkInterval time.Duration
}

// NewPayBot builds the payment bot with its handlers registered.
func NewPayBot(cfg *config.Config, users services.UserServiceProvider, payments services.PaymentServiceProvider, yk *yookassa.Client) (*tele.Bot, error) {
	b, err := newBot(cfg.PaymentBotToken)
	if err != nil {
		return nil, fmt.Errorf("create payment bot: %w", err)
	}

	h := &PayHandler{
		cfg:      cfg,
		users:    users,
		payments: payments,
		yk:       yk,
		// ~3 minutes of polling in 10-second steps.
		checkAttempts: 18,
		checkInterval: 10 * time.Second,
	}
	h.register(b)
	return b, nil
}

func (h *PayHandler) register(b *tele.Bot) {
	b.Handle("/start", h.start)
	b.Handle(&tele.Btn{Unique: cbPayTariff}, h.payTariff)
	b.Handle(&tele.Btn{Unique: cbCheckPayment}, h.checkPayment)
}

// start shows the tariff keyboard. The bot is admin-gated while payments are
// in test mode.
func (h *PayHandler) start(c tele.Context) error {
	if !h.cfg.IsAdmin(c.Sender().ID) {
		return c.Send(payAdminOnlyText)
	}
	return c.Send(payGreetingText, tariffMenu())
}

// payTariff creates the provider payment, stores it, and hands the user the
// payment link plus the manual check button. A background checker picks the
// payment up right away.
func (h *PayHandler) payTariff(c tele.Context) error {
	from := c.Sender()
	if !h.cfg.IsAdmin(from.ID) {
		return c.Respond()
	}

	rub, err := strconv.Atoi(c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Не удалось определить тариф. Попробуй ещё раз."})
	}
	tariff, ok := models.TariffByAmount(rub)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Неизвестный тариф, выбери другой."})
	}

	ctx := context.Background()
	description := fmt.Sprintf("Пополнение баланса на %d рыбок (user_id=%d)", tariff.TotalFish, from.ID)
	metadata := map[string]any{
		"telegram_user_id": from.ID,
		"amount_rub":       tariff.AmountRub,
		"fish_total":       tariff.TotalFish,
		"fish_bonus":       tariff.BonusFish,
	}

	created, err := h.yk.CreatePayment(ctx, tariff.AmountRub, description, metadata)
	if err != nil {
		log.Error().Err(err).Int("amount_rub", rub).Msg("Failed to create provider payment")
		if err := c.Send(payCreateFailedText); err != nil {
			return err
		}
		return c.Respond()
	}
	if created.ConfirmationURL() == "" {
		log.Error().Str("provider_id", created.ID).Msg("Provider payment has no confirmation URL")
		if err := c.Send(payNoURLText); err != nil {
			return err
		}
		return c.Respond()
	}

	// The payer may have never opened the main bot.
	if _, err := h.users.EnsureUser(ctx, from.ID, from.Username, ""); err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to ensure user for payment")
		if err := c.Send(errTryLaterText); err != nil {
			return err
		}
		return c.Respond()
	}

	payment, err := h.payments.Create(ctx, models.Payment{
		UserID:      from.ID,
		YookassaID:  created.ID,
		AmountRub:   tariff.AmountRub,
		FishAmount:  tariff.TotalFish,
		Status:      created.Status,
		Description: description,
	})
	if err != nil {
		log.Error().Err(err).Str("provider_id", created.ID).Msg("Failed to store payment")
		if err := c.Send(errTryLaterText); err != nil {
			return err
		}
		return c.Respond()
	}
	metrics.Payments.WithLabelValues(payment.Status).Inc()

	go h.autoCheck(c.Bot(), payment.ID, from.ID)

	if err := c.Send(selectedTariffText(tariff), payMenu(created.ConfirmationURL())); err != nil {
		return err
	}
	if err := c.Send(payAfterText, paymentActionsMenu(payment.ID)); err != nil {
		return err
	}
	return c.Respond()
}

// checkPayment is the manual "I paid" button.
func (h *PayHandler) checkPayment(c tele.Context) error {
	from := c.Sender()
	paymentID, err := strconv.ParseInt(c.Data(), 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Не удалось найти платёж."})
	}

	ctx := context.Background()
	payment, err := h.payments.GetByID(ctx, paymentID)
	if errors.Is(err, models.ErrPaymentNotFound) {
		return c.Respond(&tele.CallbackResponse{Text: payNotFoundText})
	}
	if err != nil {
		log.Error().Err(err).Int64("payment_id", paymentID).Msg("Failed to load payment")
		return c.Respond(&tele.CallbackResponse{Text: errTryLaterText})
	}
	if payment.UserID != from.ID {
		return c.Respond(&tele.CallbackResponse{Text: payWrongOwnerText})
	}

	if payment.Status == models.PaymentSucceeded {
		balance := 0
		if user, uerr := h.users.GetUserByID(ctx, from.ID); uerr == nil {
			balance = user.FishBalance
		}
		if err := c.Send(alreadyPaidText(balance), paymentActionsMenu(paymentID)); err != nil {
			return err
		}
		return c.Respond()
	}

	if err := c.Respond(&tele.CallbackResponse{Text: "Проверяю статус платежа…"}); err != nil {
		return err
	}

	remote, err := h.yk.GetPayment(ctx, payment.YookassaID)
	if err != nil {
		log.Error().Err(err).Str("provider_id", payment.YookassaID).Msg("Failed to fetch payment status")
		return c.Send(payStatusFailText)
	}

	switch {
	case remote.Status == models.PaymentSucceeded && remote.Paid:
		if err := h.settle(ctx, c.Send, payment, remote.MethodType()); err != nil {
			log.Error().Err(err).Int64("payment_id", payment.ID).Msg("Failed to settle payment")
			return c.Send(errTryLaterText)
		}
		return nil
	case remote.Status == models.PaymentCanceled:
		h.recordStatus(ctx, payment.ID, remote)
		metrics.Payments.WithLabelValues(models.PaymentCanceled).Inc()
		return c.Send(payCanceledText, paymentActionsMenu(payment.ID))
	default:
		h.recordStatus(ctx, payment.ID, remote)
		return c.Send(payPendingText, paymentActionsMenu(payment.ID))
	}
}

// autoCheck polls the provider until the payment settles, is canceled, or
// the attempts run out. It races the manual check button; the conditional
// settle keeps the crediting exactly-once.
func (h *PayHandler) autoCheck(bot push.Messenger, paymentID, userID int64) {
	ctx := context.Background()
	to := tele.ChatID(userID)
	send := func(what interface{}, opts ...interface{}) error {
		_, err := bot.Send(to, what, opts...)
		return err
	}

	for attempt := 0; attempt < h.checkAttempts; attempt++ {
		payment, err := h.payments.GetByID(ctx, paymentID)
		if err != nil {
			log.Error().Err(err).Int64("payment_id", paymentID).Msg("Auto-check lost the payment")
			return
		}
		if payment.Status == models.PaymentSucceeded {
			balance := 0
			if user, uerr := h.users.GetUserByID(ctx, userID); uerr == nil {
				balance = user.FishBalance
			}
			if err := send(alreadyPaidAutoText(balance)); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to deliver payment notice")
			}
			return
		}

		remote, err := h.yk.GetPayment(ctx, payment.YookassaID)
		if err != nil {
			log.Warn().Err(err).Str("provider_id", payment.YookassaID).Msg("Auto-check status fetch failed")
			time.Sleep(h.checkInterval)
			continue
		}

		switch {
		case remote.Status == models.PaymentSucceeded && remote.Paid:
			if err := h.settle(ctx, send, payment, remote.MethodType()); err != nil {
				log.Error().Err(err).Int64("payment_id", payment.ID).Msg("Failed to settle payment")
			}
			return
		case remote.Status == models.PaymentCanceled:
			h.recordStatus(ctx, paymentID, remote)
			metrics.Payments.WithLabelValues(models.PaymentCanceled).Inc()
			if err := send(payCanceledText); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to deliver payment notice")
			}
			return
		default:
			h.recordStatus(ctx, paymentID, remote)
		}
		time.Sleep(h.checkInterval)
	}

	if err := send(payTimeoutText); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to deliver payment timeout notice")
	}
}

// settle credits the payment exactly once and tells the user. When another
// check already settled it, only the current balance goes out.
func (h *PayHandler) settle(ctx context.Context, send func(what interface{}, opts ...interface{}) error, payment models.Payment, method string) error {
	credited, balance, err := h.payments.Settle(ctx, payment.ID, method)
	if err != nil {
		return err
	}
	if !credited {
		return send(alreadyPaidAutoText(balance))
	}

	metrics.Payments.WithLabelValues(models.PaymentSucceeded).Inc()
	metrics.FishCredited.Add(float64(payment.FishAmount))
	log.Info().Int64("payment_id", payment.ID).Int64("user_id", payment.UserID).
		Int("fish", payment.FishAmount).Msg("Payment settled")

	if err := send(successText(payment.FishAmount, balance)); err != nil {
		return err
	}
	return send(&tele.Photo{
		File:    tele.FromURL(cards.ImageBaseURL + "/fed_milky.jpg"),
		Caption: fedMilkyText,
	})
}

// recordStatus stores a non-terminal provider status; failures only log.
func (h *PayHandler) recordStatus(ctx context.Context, paymentID int64, remote yookassa.Payment) {
	if remote.Status == "" {
		return
	}
	if err := h.payments.UpdateStatus(ctx, paymentID, remote.Status, remote.MethodType()); err != nil {
		log.Error().Err(err).Int64("payment_id", paymentID).Msg("Failed to record payment status")
	}
}

func selectedTariffText(t models.Tariff) string {
	fish := fmt.Sprintf("После успешной оплаты будет начислено %d 🐟", t.TotalFish)
	if t.BonusFish > 0 {
		fish += fmt.Sprintf(" (из них %d — бонусные 🎁)", t.BonusFish)
	}
	return fmt.Sprintf("Ты выбрал тариф на %d₽.\n%s\n\nНажми кнопку ниже, чтобы перейти на страницу оплаты ЮKassa:",
		t.AmountRub, fish)
}

func successText(fish, balance int) string {
	return fmt.Sprintf("Оплата прошла успешно ✨\nТебе начислено %d 🐟.\nТвой новый баланс: %d 🐟", fish, balance)
}

func alreadyPaidText(balance int) string {
	return fmt.Sprintf("Этот платёж уже был успешно проведён ранее ✅\nТекущий баланс: %d 🐟", balance)
}

func alreadyPaidAutoText(balance int) string {
	return fmt.Sprintf("Оплата уже была успешно проведена ✅\nТекущий баланс: %d 🐟", balance)
}
