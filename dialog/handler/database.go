package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// databaseHandler serves read-style intents directly from the store.
// Bookings persist their result under a "order:<id>" history context, so
// order queries resolve against real prior executions before falling back
// to a deterministic placeholder.
type databaseHandler struct {
	store *store.Store
}

func newDatabaseHandler(s *store.Store) *databaseHandler {
	return &databaseHandler{store: s}
}

func (h *databaseHandler) Execute(ctx context.Context, config map[string]any, intent string, slots map[string]string) *Result {
	operation := configString(config, "operation")
	if operation == "" {
		operation = "query_order"
	}

	switch operation {
	case "query", "query_order":
		return h.queryOrder(ctx, slots)
	case "user_preferences":
		return h.userPreferences(ctx, slots)
	default:
		return &Result{Success: false, Error: "未知的数据操作: " + operation}
	}
}

func (h *databaseHandler) queryOrder(ctx context.Context, slots map[string]string) *Result {
	orderID := strings.ToUpper(strings.TrimSpace(slots["order_id"]))
	if orderID == "" {
		return &Result{Success: false, Error: "缺少订单号"}
	}

	key := "order:" + orderID
	contexts, err := h.store.ListUserContexts(ctx, &store.FindUserContext{Key: &key})
	if err != nil {
		return &Result{Success: false, Error: "订单查询失败", Transient: true}
	}
	for _, record := range contexts {
		data := map[string]any{}
		if err := json.Unmarshal([]byte(record.Value), &data); err != nil {
			continue
		}
		data["order_id"] = orderID
		return &Result{Success: true, Data: data}
	}

	// No record of the order. Keep the answer stable per order id.
	return &Result{Success: true, Data: map[string]any{
		"order_id": orderID,
		"status":   orderStatuses[sampleString(orderID)%uint32(len(orderStatuses))],
	}}
}

var orderStatuses = []string{"已出票", "已支付", "待支付", "已取消"}

func (h *databaseHandler) userPreferences(ctx context.Context, slots map[string]string) *Result {
	userID := slots["user_id"]
	if userID == "" {
		return &Result{Success: false, Error: "缺少用户标识"}
	}

	active := true
	contextType := store.UserContextPreference
	contexts, err := h.store.ListUserContexts(ctx, &store.FindUserContext{
		UserID:   &userID,
		Type:     &contextType,
		IsActive: &active,
	})
	if err != nil {
		return &Result{Success: false, Error: "偏好查询失败", Transient: true}
	}

	preferences := map[string]any{}
	for _, record := range contexts {
		preferences[record.Key] = record.Value
	}
	return &Result{Success: true, Data: map[string]any{"preferences": preferences}}
}
