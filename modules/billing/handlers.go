package billing

import (
	"net/http"
	"time"

	"github.com/meedprogram/meedkit/handler"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/subscription"
)

type (
	emptyRequest struct{}

	planRequest struct {
		Plan   catalog.Tier   `path:"plan"`
		Period catalog.Period `query:"period"`
	}

	editPriceRequest struct {
		Plan  catalog.Tier  `path:"plan" json:"-"`
		Price catalog.Money `json:"price"`
	}

	subscribeRequest struct {
		Plan    catalog.Tier   `json:"plan"`
		Period  catalog.Period `json:"period"`
		Payment catalog.Money  `json:"payment"`
	}

	idRequest struct {
		ID int64 `path:"id"`
	}

	quoteRequest struct {
		ID   int64        `path:"id"`
		Plan catalog.Tier `query:"plan"`
	}

	renewRequest struct {
		ID      int64          `path:"id" json:"-"`
		Plan    catalog.Tier   `json:"plan"`
		Period  catalog.Period `json:"period"`
		Payment catalog.Money  `json:"payment"`
	}

	changePlanRequest struct {
		ID      int64         `path:"id" json:"-"`
		Plan    catalog.Tier  `json:"plan"`
		Payment catalog.Money `json:"payment"`
	}

	addressRequest struct {
		Address ledger.Address `path:"address"`
	}

	adminRequest struct {
		Address ledger.Address `path:"address"`
		Admin   ledger.Address `path:"admin"`
	}

	amountRequest struct {
		Address ledger.Address `path:"address" json:"-"`
		Amount  int64          `json:"amount"`
	}

	buyRequest struct {
		ID      int           `path:"id" json:"-"`
		Payment catalog.Money `json:"payment"`
	}

	editTopUpRequest struct {
		ID      int           `path:"id" json:"-"`
		Credits int64         `json:"credits"`
		Price   catalog.Money `json:"price"`
	}
)

type (
	subscriptionView struct {
		ledger.Subscription
		State subscription.State `json:"state"`
		Paid  bool               `json:"paid"`
	}

	planView struct {
		catalog.Plan
		YearlyPrice    catalog.Money `json:"yearly_price"`
		CreditsPerYear int64         `json:"credits_per_year"`
	}

	quoteView struct {
		RemainingSeconds int64         `json:"remaining_seconds"`
		Price            catalog.Money `json:"price"`
	}

	balanceView struct {
		Subscriber ledger.Address `json:"subscriber"`
		Credits    int64          `json:"credits"`
	}

	delegationView struct {
		Subscriber ledger.Address `json:"subscriber"`
		Admin      ledger.Address `json:"admin"`
		Authorized bool           `json:"authorized"`
	}
)

func (m *Module) view(sub ledger.Subscription) subscriptionView {
	now := m.now()
	return subscriptionView{
		Subscription: sub,
		State:        subscription.StateOf(&sub, now),
		Paid:         sub.Paid(now),
	}
}

func (m *Module) listPlans(handler.Context, emptyRequest) handler.Response {
	plans := m.subs.Pricing().Plans().All()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			Plan:           p,
			YearlyPrice:    p.PriceFor(catalog.Yearly),
			CreditsPerYear: p.CreditsFor(catalog.Yearly),
		})
	}
	return handler.JSON(views)
}

func (m *Module) planPrice(_ handler.Context, req planRequest) handler.Response {
	price, err := m.subs.CalculatePrice(req.Plan, req.Period)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(price)
}

func (m *Module) editPlanPrice(ctx handler.Context, req editPriceRequest) handler.Response {
	plan, err := m.subs.EditPlanPrice(ctx, caller(ctx), req.Plan, req.Price)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(plan)
}

func (m *Module) startTrial(ctx handler.Context, _ emptyRequest) handler.Response {
	sub, err := m.subs.StartTrial(ctx, caller(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(m.view(sub), handler.WithJSONStatus(http.StatusCreated))
}

func (m *Module) subscribe(ctx handler.Context, req subscribeRequest) handler.Response {
	sub, err := m.subs.Subscribe(ctx, caller(ctx), req.Plan, req.Period, req.Payment)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(m.view(sub), handler.WithJSONStatus(http.StatusCreated))
}

func (m *Module) renew(ctx handler.Context, req renewRequest) handler.Response {
	sub, err := m.subs.Renew(ctx, caller(ctx), req.ID, req.Plan, req.Period, req.Payment)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(m.view(sub))
}

func (m *Module) changePlan(ctx handler.Context, req changePlanRequest) handler.Response {
	sub, err := m.subs.ChangePlan(ctx, caller(ctx), req.ID, req.Plan, req.Payment)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(m.view(sub))
}

func (m *Module) getSubscription(ctx handler.Context, req idRequest) handler.Response {
	sub, err := m.subs.Get(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(m.view(sub))
}

func (m *Module) expiresAt(ctx handler.Context, req idRequest) handler.Response {
	at, err := m.subs.ExpiresAt(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]time.Time{"expires_at": at})
}

func (m *Module) renewable(ctx handler.Context, req idRequest) handler.Response {
	ok, err := m.subs.IsRenewable(ctx, req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]bool{"renewable": ok})
}

func (m *Module) quote(ctx handler.Context, req quoteRequest) handler.Response {
	left, price, err := m.subs.RemainingTimeAndPrice(ctx, req.ID, req.Plan)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(quoteView{RemainingSeconds: int64(left / time.Second), Price: price})
}

func (m *Module) getSubscriber(ctx handler.Context, req addressRequest) handler.Response {
	sub, err := m.subs.GetSubscriber(ctx, req.Address)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(m.view(sub))
}

func (m *Module) subscriberPlan(ctx handler.Context, req addressRequest) handler.Response {
	plan, err := m.subs.GetSubscriberPlan(ctx, req.Address)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]catalog.Tier{"plan": plan})
}

func (m *Module) isPaid(ctx handler.Context, req addressRequest) handler.Response {
	paid, err := m.subs.IsPaidSubscriber(ctx, req.Address)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]bool{"paid": paid})
}

func (m *Module) balance(ctx handler.Context, req addressRequest) handler.Response {
	n, err := m.gate.Balance(ctx, req.Address)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(balanceView{Subscriber: req.Address, Credits: n})
}

func (m *Module) history(ctx handler.Context, req addressRequest) handler.Response {
	entries, err := m.gate.History(ctx, req.Address)
	if err != nil {
		return handler.Fail(err)
	}
	if entries == nil {
		entries = []ledger.CreditEntry{}
	}
	return handler.JSON(entries)
}

func (m *Module) grant(ctx handler.Context, req amountRequest) handler.Response {
	entry, err := m.gate.Grant(ctx, caller(ctx), req.Address, req.Amount)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(entry)
}

func (m *Module) deduct(ctx handler.Context, req amountRequest) handler.Response {
	entry, err := m.gate.Deduct(ctx, caller(ctx), req.Address, req.Amount)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(entry)
}

func (m *Module) setBalance(ctx handler.Context, req amountRequest) handler.Response {
	entry, err := m.gate.SetBalance(ctx, caller(ctx), req.Address, req.Amount)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(entry)
}

func (m *Module) listTopUps(handler.Context, emptyRequest) handler.Response {
	return handler.JSON(m.gate.TopUps().All())
}

func (m *Module) buyCredits(ctx handler.Context, req buyRequest) handler.Response {
	entry, err := m.gate.BuyCredits(ctx, caller(ctx), req.ID, req.Payment)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(entry)
}

func (m *Module) editTopUp(ctx handler.Context, req editTopUpRequest) handler.Response {
	top, err := m.gate.EditCreditPlan(ctx, caller(ctx), req.ID, req.Credits, req.Price)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(top)
}

func (m *Module) revenue(ctx handler.Context, _ emptyRequest) handler.Response {
	total, err := m.treasury.Revenue(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(total)
}

func (m *Module) withdraw(ctx handler.Context, _ emptyRequest) handler.Response {
	amount, err := m.treasury.Withdraw(ctx, caller(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(map[string]catalog.Money{"withdrawn": amount})
}

func (m *Module) delegationOf(ctx handler.Context, req adminRequest) handler.Response {
	ok, err := m.delegations.IsAuthorized(ctx, req.Admin, req.Address)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(delegationView{Subscriber: req.Address, Admin: req.Admin, Authorized: ok})
}

func (m *Module) delegated(ctx handler.Context, req adminRequest) handler.Response {
	return m.delegationOf(ctx, req)
}

// addAdmin and removeAdmin are reserved to the subscriber itself.
func (m *Module) addAdmin(ctx handler.Context, req adminRequest) handler.Response {
	if caller(ctx) != req.Address {
		return handler.Fail(delegation.ErrUnauthorized)
	}
	if err := m.delegations.Add(req.Address, req.Admin); err != nil {
		return handler.Fail(err)
	}
	return m.delegationOf(ctx, req)
}

func (m *Module) removeAdmin(ctx handler.Context, req adminRequest) handler.Response {
	if caller(ctx) != req.Address {
		return handler.Fail(delegation.ErrUnauthorized)
	}
	m.delegations.Remove(req.Address, req.Admin)
	return m.delegationOf(ctx, req)
}

func (m *Module) optOut(ctx handler.Context, _ emptyRequest) handler.Response {
	m.delegations.OptOut(caller(ctx))
	return handler.JSON(map[string]bool{"opted_out": true})
}

func (m *Module) optIn(ctx handler.Context, _ emptyRequest) handler.Response {
	m.delegations.OptIn(caller(ctx))
	return handler.JSON(map[string]bool{"opted_out": false})
}
