package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"llm-crypto-trader/internal/decision"
	"llm-crypto-trader/internal/guard"
	"llm-crypto-trader/internal/indicator"
	"llm-crypto-trader/internal/llm"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/model"
	"llm-crypto-trader/internal/notification"
)

// symbolData is the FETCH output for one symbol.
type symbolData struct {
	candles []model.Candle
	price   float64
	funding float64
}

// runCycle executes one full trading cycle. Every step degrades rather
// than aborts: a symbol without data is skipped, a dead decision service
// means hold-all, a failed persist is logged and the loop continues.
func (s *Service) runCycle(ctx context.Context) {
	start := s.now()
	cctx := logger.WithCycleID(ctx, logger.GenerateCycleID(start))
	tradeMark := s.ledger.TradeCount()

	// FETCH
	data := s.fetchAll(cctx)
	prices := make(map[string]float64, len(data))
	for sym, d := range data {
		prices[sym] = d.price
	}

	// INDICATORS
	indicators := make(map[string]model.IndicatorSet, len(data))
	var marketSnaps []model.MarketSnapshot
	for _, sym := range s.tradingCfg.Symbols {
		d, ok := data[sym]
		if !ok {
			continue
		}
		set, err := indicator.Compute(sym, d.candles, d.price, d.funding)
		if err != nil {
			s.log.Warn("indicator compute failed, skipping symbol",
				append(logger.LogWithCycle(cctx), "symbol", sym, "err", err)...)
			if s.prom != nil {
				s.prom.IndicatorSkips.WithLabelValues(sym).Inc()
			}
			continue
		}
		indicators[sym] = set
		marketSnaps = append(marketSnaps, model.MarketSnapshot{Timestamp: start, Indicators: set})
	}

	// RISK_CHECK — stops run on exchange prices before the LLM sees anything
	for _, closed := range guard.Evaluate(s.ledger, prices) {
		s.log.Info("guardrail close",
			append(logger.LogWithCycle(cctx),
				"symbol", closed.Symbol, "side", closed.Side,
				"reason", closed.Reason, "pnl", fmt.Sprintf("%.4f", closed.Trade.PnL))...)
		if s.prom != nil {
			s.prom.GuardrailCloses.WithLabelValues(closed.Reason).Inc()
		}
	}

	// DECIDE
	equity, equityErr := s.ledger.Equity(prices)
	decisions := s.decide(cctx, indicators, equity, equityErr)

	// EXECUTE
	var records []model.DecisionRecord
	if equityErr == nil {
		exec := decision.NewExecutor(s.ledger, s.tradingCfg)
		records = exec.Execute(decisions, prices, equity)
	} else {
		// No trustworthy equity, no execution. Audit the holds anyway.
		records = s.recordHolds(start, decisions)
	}
	for _, rec := range records {
		outcome := "accepted"
		if !rec.Accepted {
			outcome = "rejected"
			s.log.Info("decision rejected",
				append(logger.LogWithCycle(cctx),
					"symbol", rec.Symbol, "type", rec.Decision, "reason", rec.RejectionReason)...)
		}
		if s.prom != nil {
			s.prom.DecisionsTotal.WithLabelValues(string(rec.Decision), outcome).Inc()
		}
	}

	// PERSIST
	snap := s.buildSnapshot(start, tradeMark, prices, marketSnaps, records)
	if err := s.store.WriteCycleSnapshot(cctx, snap); err != nil {
		s.log.Error("cycle persist failed", append(logger.LogWithCycle(cctx), "err", err)...)
		if s.prom != nil {
			s.prom.PersistErrors.Inc()
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCycle(cctx, snap); err != nil {
			s.log.Warn("live publish failed", append(logger.LogWithCycle(cctx), "err", err)...)
			if s.prom != nil {
				s.prom.PublishErrors.Inc()
			}
		}
	}

	s.notifyTrades(snap.Trades)
	s.finishCycle(start, snap)
}

// notifyTrades sends alerts for this cycle's fills. Delivery runs off the
// cycle goroutine; a dead channel must never delay the next cycle.
func (s *Service) notifyTrades(trades []model.TradeRecord) {
	if s.notify == nil || len(trades) == 0 {
		return
	}
	go func(trades []model.TradeRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, tr := range trades {
			alert := notification.TradeAlert(tr)
			if tr.Reason == guard.ReasonStopLoss || tr.Reason == guard.ReasonTakeProfit {
				alert = notification.GuardrailAlert(tr)
			}
			if err := s.notify.Send(ctx, alert); err != nil {
				s.log.Warn("alert delivery failed", "title", alert.Title, "err", err)
			}
		}
	}(trades)
}

// fetchAll fans out market fetches with bounded concurrency and returns
// data for the symbols that succeeded.
func (s *Service) fetchAll(ctx context.Context) map[string]symbolData {
	type result struct {
		sym  string
		data symbolData
		err  error
	}

	symbols := s.tradingCfg.Symbols
	sem := make(chan struct{}, s.fetchConcurrency)
	results := make(chan result, len(symbols))

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			d, err := s.fetchSymbol(ctx, sym)
			results <- result{sym: sym, data: d, err: err}
		}(sym)
	}
	wg.Wait()
	close(results)

	out := make(map[string]symbolData, len(symbols))
	for r := range results {
		if r.err != nil {
			s.log.Warn("market fetch failed, skipping symbol",
				append(logger.LogWithCycle(ctx), "symbol", r.sym, "err", r.err)...)
			if s.prom != nil {
				s.prom.FetchErrors.WithLabelValues(r.sym).Inc()
			}
			continue
		}
		out[r.sym] = r.data
	}
	return out
}

func (s *Service) fetchSymbol(ctx context.Context, sym string) (symbolData, error) {
	candles, err := s.market.GetCandles(ctx, sym, s.tradingCfg.Interval, model.CandleWindow)
	if err != nil {
		return symbolData{}, fmt.Errorf("candles: %w", err)
	}
	price, err := s.market.GetTicker(ctx, sym)
	if err != nil {
		return symbolData{}, fmt.Errorf("ticker: %w", err)
	}
	// Funding is advisory context for the LLM; a miss is not worth
	// dropping the symbol over.
	funding, err := s.market.GetFundingRate(ctx, sym)
	if err != nil {
		s.log.Debug("funding rate fetch failed", "symbol", sym, "err", err)
		funding = 0
	}
	return symbolData{candles: candles, price: price, funding: funding}, nil
}

// decide solicits decisions from the service, degrading to hold-all on
// any failure. equityErr signals an open position whose symbol has no
// price this cycle; the LLM is not consulted on stale books.
func (s *Service) decide(ctx context.Context, indicators map[string]model.IndicatorSet, equity float64, equityErr error) map[string]decision.Raw {
	symbols := s.tradingCfg.Symbols

	if equityErr != nil {
		s.log.Warn("equity unavailable, holding all",
			append(logger.LogWithCycle(ctx), "err", equityErr)...)
		return decision.HoldAll(symbols, "market data unavailable for open positions")
	}
	if len(indicators) == 0 {
		return decision.HoldAll(symbols, "no market data this cycle")
	}

	positions := make(map[string]model.PositionSummary)
	for _, pos := range s.ledger.OpenPositions() {
		key := fmt.Sprintf("%s:%s", pos.Symbol, pos.Side)
		positions[key] = model.PositionSummary{
			Side:          pos.Side,
			Quantity:      pos.Quantity,
			EntryPrice:    pos.EntryPrice,
			Leverage:      pos.Leverage,
			UnrealizedPnL: pos.UnrealizedPnL(s.priceFor(pos.Symbol, indicators)),
		}
	}

	req := model.DecisionRequest{
		CurrentTime:    s.now(),
		TotalEquity:    equity,
		TotalReturnPct: s.returnPct(equity),
		MarketData:     indicators,
		Positions:      positions,
	}

	callStart := time.Now()
	resp, err := s.decider.Decide(ctx, req, s.tradingCfg.SystemPrompt)
	if s.prom != nil {
		s.prom.LLMCallDur.Observe(time.Since(callStart).Seconds())
	}
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) {
			if s.prom != nil {
				s.prom.LLMTimeouts.Inc()
			}
			s.log.Warn("decision service timeout, holding all", logger.LogWithCycle(ctx)...)
			return decision.HoldAll(symbols, "decision service timeout")
		}
		s.log.Warn("decision service failed, holding all",
			append(logger.LogWithCycle(ctx), "err", err)...)
		return decision.HoldAll(symbols, "decision service unavailable")
	}

	return decision.ParseResponse(resp, symbols)
}

// priceFor returns the cycle price for a symbol, falling back to zero
// when the symbol was skipped (equityErr already covers that case).
func (s *Service) priceFor(sym string, indicators map[string]model.IndicatorSet) float64 {
	if set, ok := indicators[sym]; ok {
		return set.Price
	}
	return 0
}

// recordHolds turns hold decisions into audit records without touching
// the ledger. Used when execution is skipped entirely.
func (s *Service) recordHolds(ts time.Time, decisions map[string]decision.Raw) []model.DecisionRecord {
	records := make([]model.DecisionRecord, 0, len(s.tradingCfg.Symbols))
	for _, sym := range s.tradingCfg.Symbols {
		raw := decisions[sym]
		records = append(records, model.DecisionRecord{
			Timestamp: ts,
			Symbol:    sym,
			Decision:  model.DecisionHold,
			Reasoning: raw.Reasoning,
			Accepted:  true,
		})
	}
	return records
}

// buildSnapshot assembles everything this cycle produced for PERSIST.
func (s *Service) buildSnapshot(start time.Time, tradeMark int, prices map[string]float64, marketSnaps []model.MarketSnapshot, records []model.DecisionRecord) model.CycleSnapshot {
	equity, err := s.ledger.Equity(prices)
	if err != nil {
		// Position on a symbol with no price this cycle: value it at
		// entry (zero unrealized) so degraded and healthy cycles agree
		// on equity = cash + unrealized.
		equity = s.ledger.CashBalance()
		for _, pos := range s.ledger.OpenPositions() {
			if price, ok := prices[pos.Symbol]; ok {
				equity += pos.UnrealizedPnL(price)
			}
		}
	}

	var active []model.ActivePosition
	for _, pos := range s.ledger.OpenPositions() {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.EntryPrice
		}
		active = append(active, model.ActivePosition{
			Timestamp:     start,
			Position:      pos,
			CurrentPrice:  price,
			UnrealizedPnL: pos.UnrealizedPnL(price),
		})
	}

	return model.CycleSnapshot{
		Timestamp:       start,
		CashBalance:     s.ledger.CashBalance(),
		TotalEquity:     equity,
		TotalReturnPct:  s.returnPct(equity),
		Trades:          s.ledger.TradesSince(tradeMark),
		Decisions:       records,
		MarketSnapshots: marketSnaps,
		ActivePositions: active,
	}
}

func (s *Service) returnPct(equity float64) float64 {
	initial := s.tradingCfg.InitialBalance
	if initial <= 0 {
		return 0
	}
	return (equity - initial) / initial * 100
}

// finishCycle updates gauges and health after PERSIST.
func (s *Service) finishCycle(start time.Time, snap model.CycleSnapshot) {
	elapsed := time.Since(start)
	if s.prom != nil {
		s.prom.CyclesTotal.Inc()
		s.prom.CycleDur.Observe(elapsed.Seconds())
		s.prom.Equity.Set(snap.TotalEquity)
		s.prom.CashBalance.Set(snap.CashBalance)
		s.prom.OpenPositions.Set(float64(len(snap.ActivePositions)))
		s.prom.RealizedPnL.Set(s.ledger.RealizedPnL())
	}
	if s.health != nil {
		s.health.SetLastCycleTime(start)
	}
	s.log.Info("cycle complete",
		"duration", elapsed.Round(time.Millisecond).String(),
		"equity", fmt.Sprintf("%.2f", snap.TotalEquity),
		"return_pct", fmt.Sprintf("%.2f", snap.TotalReturnPct),
		"open_positions", len(snap.ActivePositions),
		"trades", len(snap.Trades),
	)
}
