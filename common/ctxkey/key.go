// Package ctxkey centralizes the gin.Context keys the gateway threads through
// middleware and handlers so string literals never drift between packages.
package ctxkey

const (
	Caller            = "caller"
	CallerID          = "caller_id"
	OwnerID           = "owner_id"
	RequestModel      = "request_model"
	ActualModel       = "actual_model"
	Channel           = "channel"
	ChannelID         = "channel_id"
	ChannelName       = "channel_name"
	ModelMapping      = "model_mapping"
	IsStream          = "is_stream"
	Strategy          = "strategy"
	SelectionReason   = "selection_reason"
	AvailableChannels = "available_channels"
	RequestID         = "request_id"
)
