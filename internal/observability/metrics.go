package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MEventsConsumed          MetricKey = "event_consume_total"
	MEventsPoison            MetricKey = "event_consume_poison_total"
	MStockAdjustments        MetricKey = "inventory_adjustments_total"
)
