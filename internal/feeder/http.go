package feeder

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Synternet/stellar-price-feeder/internal/volume"
	"github.com/Synternet/stellar-price-feeder/pkg/feeder"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// PriceView is the wire form of a price point.
type PriceView struct {
	Asset     types.Asset `json:"asset"`
	Timestamp int64       `json:"ts"`
	Price     string      `json:"price"`
	Decimal   string      `json:"decimal"`
	Type      string      `json:"type"`
}

func NewPriceView(p types.PricePoint) PriceView {
	price := "0"
	if !p.Price.IsNil() {
		price = p.Price.String()
	}
	return PriceView{
		Asset:     p.Asset,
		Timestamp: p.Timestamp,
		Price:     price,
		Decimal:   p.Decimal(volume.DefaultDecimals).String(),
		Type:      p.Type,
	}
}

func NewPriceTable(table [][]types.PricePoint) [][]PriceView {
	ret := make([][]PriceView, len(table))
	for i, period := range table {
		ret[i] = make([]PriceView, len(period))
		for j, p := range period {
			ret[i][j] = NewPriceView(p)
		}
	}
	return ret
}

// Router serves on demand aggregations, recorded prices and status.
func (f *Feeder) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/prices", f.handlePrices).Methods(http.MethodGet)
	r.HandleFunc("/prices/latest", f.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/status", f.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// GET /prices?base=native&assets=USD:G...,EUR:G...&start=<unix>&period=<seconds>&count=<n>
func (f *Feeder) handlePrices(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := f.Aggregate(r.Context(), req)
	if err != nil {
		var cfgErr *types.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NewPriceTable(table))
}

// GET /prices/latest[?asset=CODE:ISSUER]
func (f *Feeder) handleLatest(w http.ResponseWriter, r *http.Request) {
	assets := f.history.Assets()
	if s := r.URL.Query().Get("asset"); s != "" {
		asset, err := types.ParseAsset(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		assets = []types.Asset{asset}
	}

	ret := make([]PriceView, 0, len(assets))
	for _, asset := range assets {
		if p, found := f.history.Latest(asset); found {
			ret = append(ret, NewPriceView(p))
		}
	}
	if len(ret) == 0 && r.URL.Query().Has("asset") {
		writeError(w, http.StatusNotFound, "no price recorded")
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (f *Feeder) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.GetStatus())
}

func parseRequest(r *http.Request) (feeder.Request, error) {
	q := r.URL.Query()
	var (
		req feeder.Request
		err error
	)

	if req.Base, err = types.ParseAsset(defaultString(q.Get("base"), "native")); err != nil {
		return req, err
	}
	var list []string
	for _, s := range strings.Split(q.Get("assets"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if req.Assets, err = types.ParseAssets(list); err != nil {
		return req, err
	}
	if req.PeriodStart, err = strconv.ParseInt(q.Get("start"), 10, 64); err != nil {
		return req, &types.ConfigurationError{Field: "start", Reason: err.Error()}
	}
	if req.PeriodLength, err = strconv.ParseInt(q.Get("period"), 10, 64); err != nil {
		return req, &types.ConfigurationError{Field: "period", Reason: err.Error()}
	}
	if req.PeriodCount, err = strconv.Atoi(defaultString(q.Get("count"), "1")); err != nil {
		return req, &types.ConfigurationError{Field: "count", Reason: err.Error()}
	}
	return req, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
