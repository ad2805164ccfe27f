package engine

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"eve-arbitrage/internal/market"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeOpportunityScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

type opportunityContext struct {
	fees    FeeSchedule
	filters Filters
	regions map[string]*market.Snapshot
	ids     map[string]int32
	result  []Opportunity
}

func (oc *opportunityContext) reset() {
	oc.fees = FeeSchedule{}
	oc.filters = Filters{}
	oc.regions = map[string]*market.Snapshot{}
	oc.ids = map[string]int32{}
	oc.result = nil
}

func initializeOpportunityScenario(sc *godog.ScenarioContext) {
	oc := &opportunityContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		oc.reset()
		return ctx, nil
	})

	sc.Step(`^a fee schedule with buy fee ([\d.]+), sell fee ([\d.]+), sales tax ([\d.]+) and hauling ([\d.]+) ISK per m3$`, oc.aFeeSchedule)
	sc.Step(`^"([^"]*)" is offered at ([\d.]+) ISK with (\d+) units in "([^"]*)"$`, oc.isOffered)
	sc.Step(`^"([^"]*)" is wanted at ([\d.]+) ISK for (\d+) units in "([^"]*)"$`, oc.isWanted)
	sc.Step(`^the filters require ([\d.]+) percent margin and ([\d.]+) ISK total profit$`, oc.theFiltersRequire)
	sc.Step(`^the route from "([^"]*)" to "([^"]*)" is evaluated$`, oc.theRouteIsEvaluated)
	sc.Step(`^(\d+) opportunit(?:y is|ies are) reported$`, oc.opportunitiesReported)
	sc.Step(`^the profit per unit is about ([\d.]+) ISK$`, oc.profitPerUnitIsAbout)
	sc.Step(`^the margin is about ([\d.]+) percent$`, oc.marginIsAbout)
	sc.Step(`^the total profit is about ([\d.]+) ISK$`, oc.totalProfitIsAbout)
}

func (oc *opportunityContext) aFeeSchedule(buy, sell, tax, hauling float64) error {
	oc.fees = FeeSchedule{BuyBrokerFee: buy, SellBrokerFee: sell, SalesTax: tax, HaulingPerM3: hauling}
	return oc.fees.Validate()
}

func (oc *opportunityContext) quote(item, region string) (*market.Snapshot, market.ItemQuote) {
	s, ok := oc.regions[region]
	if !ok {
		s = &market.Snapshot{RegionID: int32(len(oc.regions) + 1), Quotes: map[int32]market.ItemQuote{}, FetchedAt: time.Now()}
		oc.regions[region] = s
	}
	id, ok := oc.ids[item]
	if !ok {
		id = int32(len(oc.ids) + 34)
		oc.ids[item] = id
	}
	q, ok := s.Quotes[id]
	if !ok {
		q = market.ItemQuote{TypeID: id, TypeName: item, UnitVolume: 0.01, RegionID: s.RegionID}
	}
	return s, q
}

func (oc *opportunityContext) isOffered(item string, price float64, units int, region string) error {
	s, q := oc.quote(item, region)
	q.LowestSell, q.SellVolume = price, int64(units)
	s.Quotes[q.TypeID] = q
	return nil
}

func (oc *opportunityContext) isWanted(item string, price float64, units int, region string) error {
	s, q := oc.quote(item, region)
	q.HighestBuy, q.BuyVolume = price, int64(units)
	s.Quotes[q.TypeID] = q
	return nil
}

func (oc *opportunityContext) theFiltersRequire(margin, profit float64) error {
	oc.filters = Filters{MinMarginPct: margin, MinProfit: profit}
	return nil
}

func (oc *opportunityContext) theRouteIsEvaluated(from, to string) error {
	src, ok := oc.regions[from]
	if !ok {
		return fmt.Errorf("no quotes for %s", from)
	}
	dst, ok := oc.regions[to]
	if !ok {
		return fmt.Errorf("no quotes for %s", to)
	}
	route := Route{
		Source:      Region{ID: src.RegionID, Name: from},
		Destination: Region{ID: dst.RegionID, Name: to},
	}
	oc.result = EvaluateRoute(route, src, dst, oc.fees, oc.filters, nil, time.Now())
	return nil
}

func (oc *opportunityContext) opportunitiesReported(n int) error {
	if len(oc.result) != n {
		return fmt.Errorf("expected %d opportunities, got %d", n, len(oc.result))
	}
	return nil
}

func (oc *opportunityContext) first() (Opportunity, error) {
	if len(oc.result) == 0 {
		return Opportunity{}, fmt.Errorf("no opportunity reported")
	}
	return oc.result[0], nil
}

func about(name string, got, want, tol float64) error {
	if math.Abs(got-want) > tol {
		return fmt.Errorf("%s = %.4f, want about %.4f", name, got, want)
	}
	return nil
}

func (oc *opportunityContext) profitPerUnitIsAbout(want float64) error {
	o, err := oc.first()
	if err != nil {
		return err
	}
	return about("profit per unit", o.ProfitPerUnit, want, 0.01)
}

func (oc *opportunityContext) marginIsAbout(want float64) error {
	o, err := oc.first()
	if err != nil {
		return err
	}
	return about("margin", o.MarginPct, want, 0.05)
}

func (oc *opportunityContext) totalProfitIsAbout(want float64) error {
	o, err := oc.first()
	if err != nil {
		return err
	}
	return about("total profit", o.TotalProfit, want, 0.5)
}
