package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidParameter   Code = "INVALID_PARAMETER"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Strategy-specific error codes
const (
	// Pricing
	CodePriceUnavailable Code = "PRICE_UNAVAILABLE"
	CodePriceStale       Code = "PRICE_STALE"
	CodeFeedConnection   Code = "FEED_CONNECTION_ERROR"

	// Swap aggregator
	CodeNoRoute            Code = "NO_ROUTE"
	CodeQuoteFailed        Code = "QUOTE_FAILED"
	CodeInvalidQuote       Code = "INVALID_QUOTE"
	CodeAggregatorAPIError Code = "AGGREGATOR_API_ERROR"

	// Lending protocol
	CodeNoPositionFound    Code = "NO_POSITION_FOUND"
	CodeNoDebt             Code = "NO_DEBT"
	CodePositionLocked     Code = "POSITION_LOCKED"
	CodeProtocolCallFailed Code = "PROTOCOL_CALL_FAILED"
	CodeOracleRefreshError Code = "ORACLE_REFRESH_ERROR"

	// Sizing / composition
	CodeInsufficientCollateral Code = "INSUFFICIENT_COLLATERAL"
	CodeUnconsumedReceipt      Code = "UNCONSUMED_RECEIPT"
	CodeReceiptAlreadyUsed     Code = "RECEIPT_ALREADY_USED"
	CodePlanFinalized          Code = "PLAN_FINALIZED"

	// RPC
	CodeRPCConnectionFailed Code = "RPC_CONNECTION_FAILED"
	CodeRPCError            Code = "RPC_ERROR"

	// Circuit breaker
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
