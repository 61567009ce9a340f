package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/metrics"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/internal/rbac"
	"github.com/digital-shop/bot/internal/services"
	"github.com/digital-shop/bot/internal/session"
	"github.com/digital-shop/bot/internal/telegram"
)

type Options struct {
	SupportURL        string
	HowToBuyCryptoURL string
}

// adminCommands maps privileged commands to the permission they need.
var adminCommands = map[string]string{
	"confirm": rbac.PermConfirmOrder,
	"cancel":  rbac.PermCancelOrder,
}

// Controller turns chat events into service calls and replies.
type Controller struct {
	orders *services.OrderService
	access *services.AccessService
	authz  *rbac.Authorizer
	msg    Messenger
	opts   Options
	log    *zap.Logger
}

func NewController(
	orders *services.OrderService,
	access *services.AccessService,
	authz *rbac.Authorizer,
	msg Messenger,
	opts Options,
	log *zap.Logger,
) *Controller {
	return &Controller{
		orders: orders,
		access: access,
		authz:  authz,
		msg:    msg,
		opts:   opts,
		log:    log,
	}
}

// Dispatch handles one raw update. It never panics and never returns an
// error: failures are logged and counted.
func (c *Controller) Dispatch(ctx context.Context, u telegram.Update) {
	ev, ok := FromUpdate(u)
	if !ok {
		metrics.UpdatesHandledTotal.WithLabelValues("unsupported", "skipped").Inc()
		return
	}

	log := c.log.With(
		zap.String("correlation_id", uuid.NewString()),
		zap.Int64("update_id", u.UpdateID),
		zap.String("type", string(ev.Type)),
		zap.Int64("actor_id", ev.ActorID),
	)
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			log.Error("panic while handling update", zap.Any("panic", r), zap.Stack("stack"))
		}
		metrics.UpdatesHandledTotal.WithLabelValues(string(ev.Type), outcome).Inc()
		metrics.UpdateLatency.Observe(time.Since(start).Seconds())
	}()

	if err := c.Handle(ctx, ev); err != nil {
		outcome = "error"
		log.Error("failed to handle update", zap.Error(err))
	}
}

// Handle processes one event. Expected user errors are answered in the chat
// and are not returned; anything else gets a generic reply and is returned.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	actor := services.Actor{ExternalID: ev.ActorID, Handle: ev.ActorHandle}
	if _, err := c.orders.Touch(ctx, actor); err != nil {
		return c.fail(ctx, ev, err)
	}

	var err error
	switch ev.Type {
	case EventCommand:
		err = c.handleCommand(ctx, ev, actor)
	case EventCallback:
		err = c.handleCallback(ctx, ev, actor)
	case EventMessage:
		err = c.handleMessage(ctx, ev, actor)
	}
	if err != nil {
		return c.fail(ctx, ev, err)
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, ev Event, err error) error {
	if sendErr := c.msg.SendText(ctx, ev.ChatID, textInternalError); sendErr != nil {
		c.log.Warn("failed to report error to chat", zap.Int64("chat_id", ev.ChatID), zap.Error(sendErr))
	}
	return err
}

// --- commands ---

func (c *Controller) handleCommand(ctx context.Context, ev Event, actor services.Actor) error {
	name, args := parseCommand(ev.Payload)
	if perm, ok := adminCommands[name]; ok && !c.authz.Can(ev.ActorID, perm) {
		// для не-админов команды не существует
		return nil
	}

	switch name {
	case "start":
		if err := c.orders.Reset(ctx, actor); err != nil {
			return err
		}
		return c.sendWelcome(ctx, ev.ChatID)
	case "confirm":
		return c.cmdConfirm(ctx, ev, args)
	case "cancel":
		return c.cmdCancel(ctx, ev, args)
	case "my_books", "my":
		return c.showOwned(ctx, ev.ChatID, actor, textNoAccess)
	}

	// txid, начинающийся со слеша, всё равно считаем чеком
	sess, err := c.orders.Session(ctx, actor)
	if err != nil {
		return err
	}
	if sess.State == session.StateWaitingProof {
		return c.handleProof(ctx, ev, actor)
	}
	return c.msg.SendText(ctx, ev.ChatID, textUnknownCommand)
}

func (c *Controller) sendWelcome(ctx context.Context, chatID int64) error {
	cat := c.orders.Catalog()
	return c.msg.SendMenu(ctx, chatID, welcomeText(cat), mainMenu(cat, c.opts.SupportURL))
}

func (c *Controller) cmdConfirm(ctx context.Context, ev Event, args []string) error {
	if len(args) != 2 {
		return c.msg.SendText(ctx, ev.ChatID, textConfirmUsage)
	}
	orderID, err1 := strconv.ParseInt(args[0], 10, 64)
	userID, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		return c.msg.SendText(ctx, ev.ChatID, textNotNumbers)
	}

	res, err := c.ConfirmAndDeliver(ctx, ev.ActorID, orderID, userID)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return nil
	case errors.Is(err, services.ErrOrderNotFound):
		return c.msg.SendText(ctx, ev.ChatID, textAdminNotFound)
	case errors.Is(err, services.ErrOrderClosed):
		return c.msg.SendText(ctx, ev.ChatID, fmt.Sprintf("Заказ #%d уже закрыт.", orderID))
	case errors.Is(err, services.ErrOrderAccountMismatch):
		return c.msg.SendText(ctx, ev.ChatID, fmt.Sprintf("❌ Заказ #%d оформлен другим пользователем.", orderID))
	case errors.Is(err, models.ErrInvalidTransition):
		return c.msg.SendText(ctx, ev.ChatID, fmt.Sprintf("Заказ #%d ещё не ожидает подтверждения.", orderID))
	case err != nil:
		return err
	}

	if res.DeliveryErr != nil {
		return c.msg.SendText(ctx, ev.ChatID, fmt.Sprintf("❌ Заказ #%d оплачен, но файлы не доставлены: %v", orderID, res.DeliveryErr))
	}
	reply := fmt.Sprintf("✅ Заказ #%d готов!", orderID)
	if res.Grant.AlreadyGranted {
		reply += " (доступ уже был выдан ранее)"
	}
	return c.msg.SendText(ctx, ev.ChatID, reply)
}

// ConfirmResult is the outcome of an admin confirmation. DeliveryErr is set
// when access was granted but the files did not reach the buyer.
type ConfirmResult struct {
	Grant       *services.Grant
	DeliveryErr error
}

// ConfirmAndDeliver confirms the payment, sends the files and congratulates
// the buyer. Shared by the /confirm command and the admin API.
func (c *Controller) ConfirmAndDeliver(ctx context.Context, adminID, orderID, userID int64) (*ConfirmResult, error) {
	grant, err := c.orders.ConfirmPayment(ctx, adminID, orderID, userID)
	if err != nil {
		return nil, err
	}

	res := &ConfirmResult{Grant: grant}
	if err := c.access.DeliverGrant(ctx, grant); err != nil {
		res.DeliveryErr = err
		return res, nil
	}
	if err := c.msg.SendText(ctx, userID, confirmedText(grant.Product)); err != nil {
		c.log.Warn("failed to notify buyer", zap.Int64("order_id", orderID), zap.Error(err))
	}
	return res, nil
}

func (c *Controller) cmdCancel(ctx context.Context, ev Event, args []string) error {
	if len(args) != 1 {
		return c.msg.SendText(ctx, ev.ChatID, textCancelUsage)
	}
	orderID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.msg.SendText(ctx, ev.ChatID, textNotNumbers)
	}

	o, err := c.CancelAndNotify(ctx, ev.ActorID, orderID)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return nil
	case errors.Is(err, services.ErrOrderNotFound):
		return c.msg.SendText(ctx, ev.ChatID, textAdminNotFound)
	case errors.Is(err, services.ErrOrderClosed):
		return c.msg.SendText(ctx, ev.ChatID, fmt.Sprintf("Заказ #%d уже закрыт.", orderID))
	case err != nil:
		return err
	}
	return c.msg.SendText(ctx, ev.ChatID, fmt.Sprintf("Заказ #%d отменён.", o.ID))
}

// CancelAndNotify cancels any open order on behalf of an admin and tells the buyer.
func (c *Controller) CancelAndNotify(ctx context.Context, adminID, orderID int64) (*models.OrderWithAccount, error) {
	o, err := c.orders.CancelOrder(ctx, adminID, orderID)
	if err != nil {
		return nil, err
	}
	if err := c.msg.SendText(ctx, o.AccountExternalID, fmt.Sprintf("❌ Заказ #%d отменён администратором.", o.ID)); err != nil {
		c.log.Warn("failed to notify buyer", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

// --- callbacks ---

type answer struct {
	text  string
	alert bool
}

func (c *Controller) handleCallback(ctx context.Context, ev Event, actor services.Actor) error {
	ans, err := c.routeCallback(ctx, ev, actor)
	if aerr := c.msg.AnswerCallback(ctx, ev.CallbackID, ans.text, ans.alert); aerr != nil {
		c.log.Warn("failed to answer callback", zap.String("data", ev.Payload), zap.Error(aerr))
	}
	return err
}

func (c *Controller) routeCallback(ctx context.Context, ev Event, actor services.Actor) (answer, error) {
	data := ev.Payload
	switch {
	case data == cbIPaid:
		return c.onIPaid(ctx, ev, actor)
	case data == cbHowToBuyCrypto:
		return answer{}, c.onHowToBuy(ctx, ev)
	case data == cbCancelOrder:
		if _, err := c.orders.Cancel(ctx, actor); err != nil {
			return answer{}, err
		}
		return answer{}, c.msg.SendText(ctx, ev.ChatID, textCanceled)
	case data == cbMyProducts:
		return answer{}, c.showOwned(ctx, ev.ChatID, actor, "")
	case data == cbBackToMenu:
		if err := c.orders.Reset(ctx, actor); err != nil {
			return answer{}, err
		}
		return answer{}, c.sendWelcome(ctx, ev.ChatID)
	case strings.HasPrefix(data, cbBuyPrefix):
		id, ok := parseID(strings.TrimPrefix(data, cbBuyPrefix))
		if !ok {
			return answer{text: textProductNotFound, alert: true}, nil
		}
		return c.onBuy(ctx, ev, actor, id)
	case strings.HasPrefix(data, cbInfoPrefix):
		id, ok := parseID(strings.TrimPrefix(data, cbInfoPrefix))
		p, found := c.orders.Catalog().Product(id)
		if !ok || !found {
			return answer{text: textProductNotFound, alert: true}, nil
		}
		return answer{}, c.msg.SendMenu(ctx, ev.ChatID, productInfoText(p), mainMenu(c.orders.Catalog(), c.opts.SupportURL))
	case strings.HasPrefix(data, cbCurrencyPrefix):
		return c.onCurrency(ctx, ev, actor, strings.TrimPrefix(data, cbCurrencyPrefix))
	case strings.HasPrefix(data, cbDownloadAllPrefix):
		id, ok := parseID(strings.TrimPrefix(data, cbDownloadAllPrefix))
		if !ok {
			return answer{text: textProductNotFound, alert: true}, nil
		}
		return c.onDownload(ctx, ev, actor, id, 0)
	case strings.HasPrefix(data, cbDownloadPrefix):
		parts := strings.Split(strings.TrimPrefix(data, cbDownloadPrefix), "_")
		if len(parts) != 2 {
			return answer{text: textVolumeNotFound, alert: true}, nil
		}
		id, ok1 := parseID(parts[0])
		n, ok2 := parseID(parts[1])
		if !ok1 || !ok2 {
			return answer{text: textVolumeNotFound, alert: true}, nil
		}
		return c.onDownload(ctx, ev, actor, id, int(n))
	}

	c.log.Debug("unknown callback", zap.String("data", data))
	return answer{}, nil
}

func (c *Controller) onBuy(ctx context.Context, ev Event, actor services.Actor, productID int64) (answer, error) {
	p, err := c.orders.StartPurchase(ctx, actor, productID)
	switch {
	case errors.Is(err, services.ErrAlreadyOwned):
		return answer{text: textAlreadyOwned, alert: true}, nil
	case errors.Is(err, services.ErrUnknownProduct):
		return answer{text: textProductNotFound, alert: true}, nil
	case err != nil:
		return answer{}, err
	}
	return answer{}, c.msg.SendMenu(ctx, ev.ChatID, chooseCurrencyText(p), currencyMenu(c.orders.Currencies()))
}

func (c *Controller) onCurrency(ctx context.Context, ev Event, actor services.Actor, code string) (answer, error) {
	details, err := c.orders.ChooseCurrency(ctx, actor, code)
	switch {
	case errors.Is(err, services.ErrUnknownCurrency), errors.Is(err, services.ErrCurrencyUnavailable):
		return answer{text: textUnavailable, alert: true}, nil
	case errors.Is(err, services.ErrNoProductSelected), errors.Is(err, services.ErrUnknownProduct):
		return answer{text: textNoProduct, alert: true}, nil
	case errors.Is(err, services.ErrAlreadyOwned):
		return answer{text: textAlreadyOwned, alert: true}, nil
	case err != nil:
		return answer{}, err
	}
	return answer{}, c.msg.SendMenu(ctx, ev.ChatID, paymentText(details), paymentMenu())
}

func (c *Controller) onIPaid(ctx context.Context, ev Event, actor services.Actor) (answer, error) {
	_, err := c.orders.MarkPaid(ctx, actor)
	switch {
	case errors.Is(err, services.ErrNoOpenOrder):
		return answer{}, c.msg.SendText(ctx, ev.ChatID, textOrderNotFound)
	case errors.Is(err, models.ErrInvalidTransition):
		return answer{text: textProofPending, alert: true}, nil
	case err != nil:
		return answer{}, err
	}
	return answer{}, c.msg.SendText(ctx, ev.ChatID, textSendProof)
}

func (c *Controller) onHowToBuy(ctx context.Context, ev Event) error {
	if c.opts.HowToBuyCryptoURL == "" {
		return c.msg.SendText(ctx, ev.ChatID, textHowToBuyCrypto)
	}
	return c.msg.SendMenu(ctx, ev.ChatID, textHowToBuyCrypto, [][]Button{
		{{Text: "📘 Подробная инструкция", URL: c.opts.HowToBuyCryptoURL}},
	})
}

func (c *Controller) onDownload(ctx context.Context, ev Event, actor services.Actor, productID int64, n int) (answer, error) {
	p, vols, err := c.access.Volumes(ctx, actor, productID, n)
	switch {
	case errors.Is(err, services.ErrNoAccess):
		return answer{text: textNoAccess, alert: true}, nil
	case errors.Is(err, services.ErrUnknownProduct):
		return answer{text: textProductNotFound, alert: true}, nil
	case errors.Is(err, services.ErrUnknownVolume):
		return answer{text: textVolumeNotFound, alert: true}, nil
	case err != nil:
		return answer{}, err
	}

	var derr *services.DeliveryError
	if err := c.access.Deliver(ctx, ev.ChatID, p, vols); errors.As(err, &derr) {
		return answer{text: "❌ Ошибка: " + derr.Error(), alert: true}, nil
	} else if err != nil {
		return answer{}, err
	}
	if n == 0 {
		return answer{text: textAllSent}, nil
	}
	return answer{text: textVolumeSent}, nil
}

func (c *Controller) showOwned(ctx context.Context, chatID int64, actor services.Actor, emptyText string) error {
	owned, err := c.access.Owned(ctx, actor)
	if err != nil {
		return err
	}
	if len(owned) == 0 {
		if emptyText != "" {
			return c.msg.SendText(ctx, chatID, emptyText)
		}
		cat := c.orders.Catalog()
		return c.msg.SendMenu(ctx, chatID, textNoAccessMenu, mainMenu(cat, c.opts.SupportURL))
	}
	text, rows := ownedText(owned)
	return c.msg.SendMenu(ctx, chatID, text, rows)
}

// --- plain messages ---

func (c *Controller) handleMessage(ctx context.Context, ev Event, actor services.Actor) error {
	sess, err := c.orders.Session(ctx, actor)
	if err != nil {
		return err
	}
	if sess.State != session.StateWaitingProof {
		return c.msg.SendText(ctx, ev.ChatID, textUnknownCommand)
	}
	return c.handleProof(ctx, ev, actor)
}

func (c *Controller) handleProof(ctx context.Context, ev Event, actor services.Actor) error {
	proof := services.Proof{FileRef: ev.FileRef, IsPhoto: ev.IsPhoto}
	if proof.FileRef == "" {
		proof.TxRef = ev.Payload
	}

	receipt, err := c.orders.SubmitProof(ctx, actor, proof)
	switch {
	case errors.Is(err, services.ErrEmptyProof):
		return c.msg.SendText(ctx, ev.ChatID, textEmptyProof)
	case errors.Is(err, services.ErrNoOpenOrder):
		return c.msg.SendText(ctx, ev.ChatID, textOrderNotFound)
	case errors.Is(err, models.ErrInvalidTransition):
		return c.msg.SendText(ctx, ev.ChatID, textProofPending)
	case err != nil:
		return err
	}

	for _, eff := range receipt.Effects {
		if eff == models.SideEffectNotifyAdmins {
			c.notifyAdmins(ctx, receipt)
		}
	}
	return c.msg.SendText(ctx, ev.ChatID, textProofReceived)
}

// notifyAdmins is best effort: one unreachable admin does not stop the rest.
func (c *Controller) notifyAdmins(ctx context.Context, r *services.ProofReceipt) {
	text := adminProofText(r)
	caption := fmt.Sprintf("Чек к заказу #%d", r.Order.ID)
	for _, adminID := range c.authz.Admins() {
		if err := c.msg.SendText(ctx, adminID, text); err != nil {
			c.log.Warn("failed to notify admin", zap.Int64("admin_id", adminID), zap.Int64("order_id", r.Order.ID), zap.Error(err))
			continue
		}
		if r.Proof.FileRef == "" {
			continue
		}
		var err error
		if r.Proof.IsPhoto {
			err = c.msg.SendPhoto(ctx, adminID, r.Proof.FileRef, caption)
		} else {
			err = c.msg.SendFile(ctx, adminID, r.Proof.FileRef, caption)
		}
		if err != nil {
			c.log.Warn("failed to forward proof", zap.Int64("admin_id", adminID), zap.Int64("order_id", r.Order.ID), zap.Error(err))
		}
	}
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
