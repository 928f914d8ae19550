package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"github.com/netebla/Milky-Tarot/internal/models"
)

// mainBotURL is the public link of the main bot, used by the payment bot to
// send people back after a top-up.
const mainBotURL = "https://t.me/Milky_Tarot_Bot"

// Main-menu button labels. Telegram sends reply-keyboard presses back as
// plain message text, so handlers match on these exact strings.
const (
	btnDailyCard  = "Вытянуть карту дня"
	btnAdvice     = "Узнать совет карт"
	btnYearEnergy = "Энергия года"
	btnThreeCards = "Расклад на три карты"
	btnSettings   = "Мои настройки"
	btnHelp       = "Помощь"
)

// Callback uniques of the inline keyboards.
const (
	cbChangePushTime = "change_push_time"
	cbSetTime        = "set_time"
	cbCancelTime     = "cancel_time"
	cbPushOff        = "push_off"
	cbPushOn         = "push_on"
	cbHelp           = "help"
	cbPayTariff      = "pay_tariff"
	cbCheckPayment   = "check_payment"
)

// pushTimePresets are the selectable push times, laid out three per row.
var pushTimePresets = []string{"08:00", "09:00", "10:00", "11:00", "12:00", "18:00", "21:00"}

// mainMenu builds the persistent reply keyboard.
func mainMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true, Placeholder: "Выберите действие"}
	menu.Reply(
		menu.Row(menu.Text(btnDailyCard)),
		menu.Row(menu.Text(btnAdvice), menu.Text(btnYearEnergy)),
		menu.Row(menu.Text(btnThreeCards)),
		menu.Row(menu.Text(btnSettings), menu.Text(btnHelp)),
	)
	return menu
}

// settingsMenu builds the inline keyboard under the push settings message.
// The toggle button flips between enabling and disabling, depending on the
// current state.
func settingsMenu(pushEnabled bool) *tele.ReplyMarkup {
	sel := &tele.ReplyMarkup{}
	var toggle tele.Btn
	if pushEnabled {
		toggle = sel.Data("Выключить пуши", cbPushOff)
	} else {
		toggle = sel.Data("Включить пуши", cbPushOn)
	}
	sel.Inline(
		sel.Row(sel.Data("Изменить время пуша", cbChangePushTime)),
		sel.Row(toggle),
		sel.Row(sel.Data("Помощь", cbHelp)),
	)
	return sel
}

// timeMenu builds the push-time preset grid with a cancel row at the bottom.
func timeMenu() *tele.ReplyMarkup {
	sel := &tele.ReplyMarkup{}
	var rows []tele.Row
	var row []tele.Btn
	for _, preset := range pushTimePresets {
		row = append(row, sel.Data(preset, cbSetTime, preset))
		if len(row) == 3 {
			rows = append(rows, sel.Row(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, sel.Row(row...))
	}
	rows = append(rows, sel.Row(sel.Data("Отмена", cbCancelTime)))
	sel.Inline(rows...)
	return sel
}

// tariffMenu builds the top-up tariff keyboard of the payment bot.
func tariffMenu() *tele.ReplyMarkup {
	sel := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, t := range models.Tariffs {
		label := fmt.Sprintf("%d₽ – %d 🐟", t.AmountRub, t.TotalFish)
		rows = append(rows, sel.Row(sel.Data(label, cbPayTariff, strconv.Itoa(t.AmountRub))))
	}
	sel.Inline(rows...)
	return sel
}

// payMenu builds the single go-to-payment URL button.
func payMenu(confirmationURL string) *tele.ReplyMarkup {
	sel := &tele.ReplyMarkup{}
	sel.Inline(sel.Row(sel.URL("Перейти к оплате", confirmationURL)))
	return sel
}

// paymentActionsMenu builds the check-payment keyboard with a link back to
// the main bot.
func paymentActionsMenu(paymentID int64) *tele.ReplyMarkup {
	sel := &tele.ReplyMarkup{}
	sel.Inline(
		sel.Row(sel.Data("Я оплатил, проверить", cbCheckPayment, strconv.FormatInt(paymentID, 10))),
		sel.Row(sel.URL("Вернуться в Милки", mainBotURL)),
	)
	return sel
}
