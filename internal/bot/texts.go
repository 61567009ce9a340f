package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/digital-shop/bot/internal/catalog"
	"github.com/digital-shop/bot/internal/services"
)

// Callback data
const (
	cbBuyPrefix         = "buy_"
	cbInfoPrefix        = "info_"
	cbCurrencyPrefix    = "cur_"
	cbDownloadPrefix    = "download_"
	cbDownloadAllPrefix = "download_all_"
	cbIPaid             = "i_paid"
	cbHowToBuyCrypto    = "how_to_buy_crypto"
	cbCancelOrder       = "cancel_order"
	cbMyProducts        = "my_products"
	cbBackToMenu        = "back_to_menu"
)

const (
	textCanceled        = "❌ Отменено."
	textUnavailable     = "Недоступно"
	textAlreadyOwned    = "У тебя уже есть доступ ✅"
	textProductNotFound = "Товар не найден."
	textVolumeNotFound  = "Том не найден."
	textNoProduct       = "Сначала выбери товар. /start"
	textOrderNotFound   = "Заказ не найден. /start"
	textSendProof       = "Отправь чек / скрин или txid.\n\nПосле проверки получишь все тома!"
	textEmptyProof      = "Отправь чек / скрин или txid."
	textProofReceived   = "✅ Чек получен! Проверим и отправим томы!"
	textProofPending    = "Чек уже на проверке. Дождись подтверждения."
	textNoAccess        = "❌ Нет доступа. /start"
	textNoAccessMenu    = "У тебя ещё нет доступа. 😔\n\nНажми «Купить», чтобы получить доступ!"
	textVolumeSent      = "✅ Том отправлен!"
	textAllSent         = "✅ Все тома отправлены!"
	textUnknownCommand  = "Не понимаю. Нажми /start, чтобы открыть меню."
	textInternalError   = "⚠️ Что-то пошло не так. Попробуй ещё раз позже."
	textConfirmUsage    = "Формат: /confirm <order_id> <user_id>"
	textCancelUsage     = "Формат: /cancel <order_id>"
	textNotNumbers      = "Должны быть числа."
	textAdminNotFound   = "❌ Заказ не найден."
	textHowToBuyCrypto  = "<b>💡 Как купить USDT</b>\n\n" +
		"1) Зарегистрируйся на Binance.com\n" +
		"2) Пополни баланс с карты\n" +
		"3) Купи USDT\n" +
		"4) Выбери сеть (TRC20/ERC20)\n" +
		"5) Отправь на адрес из бота\n\n" +
		"После копируй txid и вернись в бот."
)

func price(p *catalog.Product) string {
	return p.Price.String() + " " + catalog.ReferenceCurrency
}

func welcomeText(cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("Привет! 👋\n\nДобро пожаловать в магазин!\n")
	for _, p := range cat.Products() {
		fmt.Fprintf(&b, "\n<b>%s</b>\n", html.EscapeString(p.Name))
		for _, v := range p.Volumes {
			fmt.Fprintf(&b, "• 📕 %s\n", html.EscapeString(v.Title))
		}
		fmt.Fprintf(&b, "<b>Стоимость: %s</b> 💰\n", price(p))
	}
	return b.String()
}

func mainMenu(cat *catalog.Catalog, supportURL string) [][]Button {
	var rows [][]Button
	for _, p := range cat.Products() {
		rows = append(rows,
			[]Button{{Text: "🛍️ Купить " + p.Name, Data: fmt.Sprintf("%s%d", cbBuyPrefix, p.ID)}},
			[]Button{{Text: "📖 О товаре", Data: fmt.Sprintf("%s%d", cbInfoPrefix, p.ID)}},
		)
	}
	rows = append(rows, []Button{{Text: "📚 Мои томы", Data: cbMyProducts}})
	if supportURL != "" {
		rows = append(rows, []Button{{Text: "💬 Поддержка", URL: supportURL}})
	}
	return rows
}

func productInfoText(p *catalog.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📖 %s</b>\n\n💵 <b>Цена: %s</b>\n\n", html.EscapeString(p.Name), price(p))
	if p.Description != "" {
		b.WriteString(html.EscapeString(p.Description) + "\n\n")
	}
	b.WriteString("<b>Содержание:</b>\n\n")
	for _, v := range p.Volumes {
		fmt.Fprintf(&b, "<b>📕 %s</b>\n%s\n\n", html.EscapeString(v.Title), html.EscapeString(v.Description))
	}
	b.WriteString("Нажми «Купить», чтобы начать.")
	return b.String()
}

func chooseCurrencyText(p *catalog.Product) string {
	return fmt.Sprintf("<b>🎓 %s</b>\n\n💵 <b>%s</b>\n\nВыбери валюту:", html.EscapeString(p.Name), price(p))
}

// currencyMenu lays out two currencies per row.
func currencyMenu(codes []string) [][]Button {
	var rows [][]Button
	var row []Button
	for _, code := range codes {
		row = append(row, Button{Text: catalog.CurrencyLabel(code), Data: cbCurrencyPrefix + code})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, []Button{{Text: "❌ Отмена", Data: cbCancelOrder}})
}

func paymentText(d *services.PaymentDetails) string {
	return fmt.Sprintf("<b>💳 Оплата</b>\n\n📚 %s\n🧾 Заказ #%d\n📊 Сумма: <b>%s</b>\n💱 Валюта: %s\n\n📍 Адрес:\n<code>%s</code>\n\n⚠️ Проверь адрес и сеть!",
		html.EscapeString(d.Product.Name),
		d.Order.ID,
		price(d.Product),
		catalog.CurrencyLabel(d.Order.Currency),
		html.EscapeString(d.Order.WalletAddress),
	)
}

func paymentMenu() [][]Button {
	return [][]Button{
		{{Text: "💡 Как купить крипту?", Data: cbHowToBuyCrypto}},
		{{Text: "✅ Я оплатил(а)", Data: cbIPaid}},
		{{Text: "❌ Отмена", Data: cbCancelOrder}},
	}
}

func adminProofText(r *services.ProofReceipt) string {
	var b strings.Builder
	b.WriteString("🔔 <b>НОВАЯ ОПЛАТА</b>\n\n")
	if r.Product != nil {
		fmt.Fprintf(&b, "📚 %s\n", html.EscapeString(r.Product.Name))
	}
	fmt.Fprintf(&b, "👤 %s\n", html.EscapeString(r.Account.DisplayName()))
	fmt.Fprintf(&b, "💵 %s %s (%s)\n", r.Order.Price.String(), catalog.ReferenceCurrency, catalog.CurrencyLabel(r.Order.Currency))
	fmt.Fprintf(&b, "🧾 Заказ #%d\n", r.Order.ID)
	if r.Proof.TxRef != "" {
		fmt.Fprintf(&b, "\n🔗 TXID: <code>%s</code>\n", html.EscapeString(r.Proof.TxRef))
	}
	fmt.Fprintf(&b, "\n✅ /confirm %d %d", r.Order.ID, r.Account.ExternalID)
	return b.String()
}

func ownedText(owned []services.OwnedProduct) (string, [][]Button) {
	var b strings.Builder
	var rows [][]Button
	b.WriteString("<b>✅ У тебя есть доступ!</b>\n")
	for _, o := range owned {
		fmt.Fprintf(&b, "\n<b>%s</b>\n", html.EscapeString(o.Product.Name))
		vols := unlockedVolumes(o)
		for i, v := range vols {
			fmt.Fprintf(&b, "✅ %s\n", html.EscapeString(v.Title))
			rows = append(rows, []Button{{
				Text: "📥 " + v.Title,
				Data: fmt.Sprintf("%s%d_%d", cbDownloadPrefix, o.Product.ID, i+1),
			}})
		}
		if len(vols) > 1 {
			rows = append(rows, []Button{{Text: "📚 Все тома", Data: fmt.Sprintf("%s%d", cbDownloadAllPrefix, o.Product.ID)}})
		}
	}
	rows = append(rows, []Button{{Text: "← Назад", Data: cbBackToMenu}})
	return b.String(), rows
}

func unlockedVolumes(o services.OwnedProduct) []catalog.Volume {
	n := o.Access.Scope
	if n > len(o.Product.Volumes) {
		n = len(o.Product.Volumes)
	}
	return o.Product.Volumes[:n]
}

func confirmedText(p *catalog.Product) string {
	var b strings.Builder
	b.WriteString("🎉 <b>Оплата подтверждена!</b>\n\n")
	for _, v := range p.Volumes {
		fmt.Fprintf(&b, "✅ %s\n", html.EscapeString(v.Title))
	}
	b.WriteString("\nУдачи! 💪")
	return b.String()
}
