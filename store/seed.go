package store

// SeedIntentDefinitions returns the built-in intent set installed when the
// intents table is empty. Admin CRUD for intents is out of scope, so a
// fresh instance needs a working configuration to serve turns end-to-end.
func SeedIntentDefinitions() []*IntentDefinition {
	return []*IntentDefinition{
		{
			Name:                "book_flight",
			DisplayName:         "预订机票",
			Description:         "预订从出发城市到到达城市的机票",
			ConfidenceThreshold: 0.70,
			Priority:            10,
			Category:            "booking",
			IsActive:            true,
			Examples:            []string{"我要订机票", "帮我订一张去上海的机票", "买明天的机票"},
			FallbackResponse:    "抱歉，我没听懂您的订票需求，请换个说法试试。",
			HandlerType:         HandlerMockService,
			HandlerConfig: map[string]any{
				"service":      "flight_booking",
				"latency_ms":   200,
				"success_rate": 0.95,
			},
			Templates: map[string]string{
				TemplateSuccess:      "已为您预订 {departure_date} 从 {departure_city} 到 {arrival_city} 的机票，共 {passenger_count} 人，订单号 {order_id}。",
				TemplateFailure:      "机票预订失败：{error_message}，请稍后再试。",
				TemplateConfirmation: "请确认订票信息：{departure_date} 从 {departure_city} 到 {arrival_city}，{passenger_count} 人。回复\"确认\"下单，\"修改\"调整，或\"取消\"。",
			},
		},
		{
			Name:                "book_train",
			DisplayName:         "预订火车票",
			Description:         "预订从出发城市到到达城市的火车票",
			ConfidenceThreshold: 0.70,
			Priority:            9,
			Category:            "booking",
			IsActive:            true,
			Examples:            []string{"订火车票", "买一张高铁票", "帮我订去北京的火车"},
			FallbackResponse:    "抱歉，我没听懂您的订票需求，请换个说法试试。",
			HandlerType:         HandlerMockService,
			HandlerConfig: map[string]any{
				"service":      "train_booking",
				"latency_ms":   150,
				"success_rate": 0.95,
			},
			Templates: map[string]string{
				TemplateSuccess:      "已为您预订 {departure_date} 从 {departure_city} 到 {arrival_city} 的火车票，订单号 {order_id}。",
				TemplateFailure:      "火车票预订失败：{error_message}，请稍后再试。",
				TemplateConfirmation: "请确认购票信息：{departure_date} 从 {departure_city} 到 {arrival_city}。回复\"确认\"下单，\"修改\"调整，或\"取消\"。",
			},
		},
		{
			Name:                "check_weather",
			DisplayName:         "查询天气",
			Description:         "查询指定城市和日期的天气",
			ConfidenceThreshold: 0.60,
			Priority:            5,
			Category:            "query",
			IsActive:            true,
			Examples:            []string{"明天北京天气怎么样", "查一下上海的天气"},
			FallbackResponse:    "抱歉，我暂时无法查询天气。",
			HandlerType:         HandlerMockService,
			HandlerConfig: map[string]any{
				"service":      "weather",
				"latency_ms":   100,
				"success_rate": 0.99,
			},
			Templates: map[string]string{
				TemplateSuccess: "{city} {date} 的天气：{weather}，气温 {temperature}。",
				TemplateFailure: "天气查询失败：{error_message}。",
			},
		},
		{
			Name:                "query_order",
			DisplayName:         "查询订单",
			Description:         "按订单号查询订单状态",
			ConfidenceThreshold: 0.65,
			Priority:            5,
			Category:            "query",
			IsActive:            true,
			Examples:            []string{"查一下我的订单", "订单到哪了"},
			FallbackResponse:    "抱歉，我没有找到相关订单。",
			HandlerType:         HandlerDatabase,
			HandlerConfig: map[string]any{
				"operation": "query",
				"table":     "orders",
			},
			Templates: map[string]string{
				TemplateSuccess: "订单 {order_id} 当前状态：{status}。",
				TemplateFailure: "订单查询失败：{error_message}。",
			},
		},
	}
}

// SeedSlotDefinitions returns the built-in slot schemas for the seed intents.
func SeedSlotDefinitions() []*SlotDefinition {
	bookingSlots := func(intent string) []*SlotDefinition {
		return []*SlotDefinition{
			{
				IntentName:     intent,
				Name:           "departure_city",
				Type:           SlotTypeText,
				Required:       true,
				PromptTemplate: "请问您从哪个城市出发？",
				ValidationRules: map[string]any{
					"min_length": 2,
					"max_length": 20,
				},
			},
			{
				IntentName:     intent,
				Name:           "arrival_city",
				Type:           SlotTypeText,
				Required:       true,
				PromptTemplate: "请问您要到达哪个城市？",
				ValidationRules: map[string]any{
					"min_length": 2,
					"max_length": 20,
				},
			},
			{
				IntentName:     intent,
				Name:           "departure_date",
				Type:           SlotTypeDate,
				Required:       true,
				PromptTemplate: "请问您哪天出发？",
			},
			{
				IntentName:     intent,
				Name:           "passenger_count",
				Type:           SlotTypeNumber,
				Required:       false,
				DefaultValue:   "1",
				PromptTemplate: "请问几位乘客？",
				ValidationRules: map[string]any{
					"cel": "int(value) >= 1 && int(value) <= 9",
				},
			},
		}
	}

	slots := bookingSlots("book_flight")
	slots = append(slots, bookingSlots("book_train")...)
	slots = append(slots,
		&SlotDefinition{
			IntentName:     "check_weather",
			Name:           "city",
			Type:           SlotTypeText,
			Required:       true,
			PromptTemplate: "请问您想查询哪个城市的天气？",
		},
		&SlotDefinition{
			IntentName:     "check_weather",
			Name:           "date",
			Type:           SlotTypeDate,
			Required:       false,
			DefaultValue:   "today",
			PromptTemplate: "请问查询哪一天？",
		},
		&SlotDefinition{
			IntentName:     "query_order",
			Name:           "order_id",
			Type:           SlotTypeText,
			Required:       true,
			PromptTemplate: "请提供您的订单号。",
			ValidationRules: map[string]any{
				"min_length": 6,
				"max_length": 32,
			},
		},
	)
	return slots
}
