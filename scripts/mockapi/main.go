// Command mockapi serves seeded list endpoints for running the console
// locally without the real backend.
package main

import (
	"cmp"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

type row = map[string]any

func main() {
	addr := getenv("MOCK_ADDR", ":9090")
	latency, err := time.ParseDuration(getenv("MOCK_LATENCY", "300ms"))
	if err != nil {
		slog.Error("parse MOCK_LATENCY", slog.Any("error", err))
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	fmt.Println("→ Seeding mock data...")
	data := map[string][]row{
		"products":      seedProducts(120),
		"orders":        seedOrders(340),
		"subscriptions": seedSubscriptions(90),
		"admins":        seedAdmins(14),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	r.Get("/admin/{resource}", func(w http.ResponseWriter, r *http.Request) {
		rows, ok := data[chi.URLParam(r, "resource")]
		if !ok {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown resource")
			return
		}
		// Random latency makes responses arrive out of order.
		if latency > 0 {
			time.Sleep(time.Duration(rand.Int64N(int64(latency))))
		}
		page, limit := intParam(r, "page", 1), intParam(r, "limit", 10)
		if page < 1 || limit < 1 {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "page and limit must be positive")
			return
		}
		matched := filterRows(rows, r)
		sortRows(matched, r)
		total := len(matched)
		start := min((page-1)*limit, total)
		end := min(start+limit, total)
		httpx.JSON(w, http.StatusOK, map[string]any{
			"items":      matched[start:end],
			"total":      total,
			"totalPages": max(1, (total+limit-1)/limit),
		})
	})

	logger.Info("mock api listening", slog.String("addr", addr), slog.Duration("latency", latency))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("mock api", slog.Any("error", err))
		os.Exit(1)
	}
}

var reserved = map[string]bool{"page": true, "limit": true, "sortBy": true, "sortOrder": true, "sort": true}

func filterRows(rows []row, r *http.Request) []row {
	query := r.URL.Query()
	var from, to time.Time
	if v := query.Get("dateFrom"); v != "" {
		from, _ = time.Parse(time.RFC3339, v)
	}
	if v := query.Get("dateTo"); v != "" {
		to, _ = time.Parse(time.RFC3339, v)
	}
	out := make([]row, 0, len(rows))
	for _, item := range rows {
		if matches(item, query, from, to) {
			out = append(out, item)
		}
	}
	return out
}

func matches(item row, query map[string][]string, from, to time.Time) bool {
	for key, values := range query {
		if reserved[key] || key == "dateFrom" || key == "dateTo" || len(values) == 0 {
			continue
		}
		want := strings.ToLower(values[0])
		if key == "search" {
			if !containsText(item, want) {
				return false
			}
			continue
		}
		field, bound := rangeBound(key)
		got, ok := item[field]
		if !ok {
			continue
		}
		switch v := got.(type) {
		case float64:
			n, err := strconv.ParseFloat(want, 64)
			if err != nil {
				return false
			}
			switch {
			case bound == "min" && v < n, bound == "max" && v > n, bound == "" && v != n:
				return false
			}
		default:
			if strings.ToLower(fmt.Sprint(v)) != want {
				return false
			}
		}
	}
	created, _ := item["createdAt"].(time.Time)
	if !from.IsZero() && created.Before(from) {
		return false
	}
	if !to.IsZero() && created.After(to) {
		return false
	}
	return true
}

// rangeBound maps minPrice to (price, min) and maxPrice to (price, max).
func rangeBound(key string) (string, string) {
	for _, bound := range []string{"min", "max"} {
		if rest, ok := strings.CutPrefix(key, bound); ok && rest != "" {
			return strings.ToLower(rest[:1]) + rest[1:], bound
		}
	}
	return key, ""
}

func containsText(item row, needle string) bool {
	for _, v := range item {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func sortRows(rows []row, r *http.Request) {
	by, order := r.URL.Query().Get("sortBy"), r.URL.Query().Get("sortOrder")
	if composite := r.URL.Query().Get("sort"); composite != "" {
		if i := strings.LastIndexByte(composite, '_'); i > 0 {
			by, order = composite[:i], composite[i+1:]
		}
	}
	if by == "" {
		return
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		c := compareValues(a[by], b[by])
		if order == "desc" {
			return -c
		}
		return c
	})
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		y, _ := b.(float64)
		return cmp.Compare(x, y)
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

var base = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func seedProducts(n int) []row {
	categories := []string{"shoes", "bags", "hats", "shirts"}
	statuses := []string{"active", "draft", "archived"}
	out := make([]row, 0, n)
	for i := range n {
		out = append(out, row{
			"id":        fmt.Sprintf("prd_%03d", i+1),
			"name":      fmt.Sprintf("%s #%d", strings.TrimSuffix(categories[i%len(categories)], "s"), i+1),
			"category":  categories[i%len(categories)],
			"status":    statuses[i%len(statuses)],
			"price":     float64(5 + (i*37)%200),
			"inStock":   i%3 != 0,
			"createdAt": base.Add(time.Duration(i) * 7 * time.Hour),
		})
	}
	return out
}

func seedOrders(n int) []row {
	statuses := []string{"pending", "paid", "shipped", "delivered", "cancelled", "refunded"}
	payments := []string{"unpaid", "paid", "failed", "refunded"}
	out := make([]row, 0, n)
	for i := range n {
		out = append(out, row{
			"id":            fmt.Sprintf("ord_%04d", i+1),
			"number":        fmt.Sprintf("SO-%05d", 10000+i),
			"customer":      fmt.Sprintf("customer%02d@example.test", i%40),
			"status":        statuses[i%len(statuses)],
			"paymentStatus": payments[i%len(payments)],
			"total":         float64(20 + (i*53)%900),
			"createdAt":     base.Add(time.Duration(i) * 5 * time.Hour),
		})
	}
	return out
}

func seedSubscriptions(n int) []row {
	plans := []string{"basic", "pro", "team"}
	statuses := []string{"active", "paused", "cancelled", "expired"}
	out := make([]row, 0, n)
	for i := range n {
		created := base.Add(time.Duration(i) * 30 * time.Hour)
		out = append(out, row{
			"id":            fmt.Sprintf("sub_%03d", i+1),
			"customer":      fmt.Sprintf("customer%02d@example.test", i%40),
			"plan":          plans[i%len(plans)],
			"status":        statuses[i%len(statuses)],
			"nextBillingAt": created.AddDate(0, 1, 0),
			"createdAt":     created,
		})
	}
	return out
}

func seedAdmins(n int) []row {
	roles := []string{"owner", "manager", "support"}
	out := make([]row, 0, n)
	for i := range n {
		out = append(out, row{
			"id":        fmt.Sprintf("adm_%02d", i+1),
			"name":      fmt.Sprintf("Admin %02d", i+1),
			"email":     fmt.Sprintf("admin%02d@example.test", i+1),
			"role":      roles[i%len(roles)],
			"active":    i%4 != 0,
			"createdAt": base.Add(time.Duration(i) * 48 * time.Hour),
		})
	}
	return out
}

func intParam(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return v
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
