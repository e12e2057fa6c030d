package gateway

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"llm-crypto-trader/internal/model"
	sqlitestore "llm-crypto-trader/internal/store/sqlite"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-TOTP")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= max {
			limit = l
		}
	}
	return limit
}

// RegisterRoutes registers all dashboard HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, reader *sqlitestore.Reader, configs model.ConfigStore, auth *TOTPGuard, processStart time.Time) {
	// WebSocket endpoint: live cycle feed
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn)
	})

	// REST: latest portfolio state + open positions
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		state, err := reader.LatestState()
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "no cycles persisted yet")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		positions, err := reader.ActivePositions()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]interface{}{
			"portfolio": state,
			"positions": positions,
		})
	})

	// REST: recent trades
	mux.HandleFunc("/api/trades", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		trades, err := reader.Trades(queryLimit(r, 100, 1000))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, trades)
	})

	// REST: open positions
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		positions, err := reader.ActivePositions()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, positions)
	})

	// REST: recent decisions, including rejected ones
	mux.HandleFunc("/api/decisions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		decisions, err := reader.Decisions(queryLimit(r, 100, 1000))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, decisions)
	})

	// REST: /api/market/overview (latest indicators per symbol),
	// /api/market/{symbol} (one symbol's history). A bare /api/market with
	// an optional ?symbol= serves the same data for older clients.
	marketHandler := func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/market"))
		symbol = strings.Trim(symbol, "/")
		if symbol == "" {
			symbol = strings.ToUpper(r.URL.Query().Get("symbol"))
		}
		if symbol == "" || symbol == "OVERVIEW" {
			overview, err := reader.MarketOverview()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, overview)
			return
		}
		history, err := reader.MarketHistory(symbol, queryLimit(r, 200, 1000))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, history)
	}
	mux.HandleFunc("/api/market", marketHandler)
	mux.HandleFunc("/api/market/", marketHandler)

	// REST: equity curve
	mux.HandleFunc("/api/history/equity", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		history, err := reader.EquityHistory(queryLimit(r, 500, 5000))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, history)
	})

	// REST: win rate, pnl and fee aggregates
	mux.HandleFunc("/api/analytics/performance", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		perf, err := reader.PerformanceStats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, perf)
	})

	// REST: current bot config
	mux.HandleFunc("/api/config/current", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		cfg, err := configs.Current()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, cfg)
	})

	// REST: stored config versions, newest first
	mux.HandleFunc("/api/config/versions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		versions, err := configs.Versions()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, versions)
	})

	// REST: save a new config version (TOTP-guarded)
	mux.HandleFunc("/api/config/save", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		if !auth.Authorize(w, r) {
			return
		}

		var cfg model.BotConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		saved, err := configs.Save(cfg)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[gateway] config saved as version %d", saved.Version)
		hub.BroadcastConfigUpdate(saved)
		writeJSON(w, saved)
	})

	// REST: restore a stored version as a new version (TOTP-guarded)
	mux.HandleFunc("/api/config/restore", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		if !auth.Authorize(w, r) {
			return
		}

		var req struct {
			Version int `json:"version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version < 1 {
			writeError(w, http.StatusBadRequest, "version required")
			return
		}
		restored, err := configs.Restore(req.Version)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[gateway] config version %d restored as version %d", req.Version, restored.Version)
		hub.BroadcastConfigUpdate(restored)
		writeJSON(w, restored)
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
