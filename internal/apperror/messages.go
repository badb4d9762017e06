package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidParameter:   "Invalid parameter provided",
	CodeInvalidState:       "Invalid state for this operation",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Pricing
	CodePriceUnavailable: "Asset price missing or zero",
	CodePriceStale:       "Asset price is stale",
	CodeFeedConnection:   "Price feed connection error",

	// Swap aggregator
	CodeNoRoute:            "Aggregator returned no route for the requested pair",
	CodeQuoteFailed:        "Failed to fetch swap quote",
	CodeInvalidQuote:       "Invalid quote data",
	CodeAggregatorAPIError: "Aggregator API error",

	// Lending protocol
	CodeNoPositionFound:    "No open position for user",
	CodeNoDebt:             "Position has no debt, use a plain withdraw instead",
	CodePositionLocked:     "Position is locked",
	CodeProtocolCallFailed: "Lending protocol call failed",
	CodeOracleRefreshError: "Oracle refresh failed",

	// Sizing / composition
	CodeInsufficientCollateral: "Full-collateral swap cannot cover flash loan repayment",
	CodeUnconsumedReceipt:      "Flash loan receipt was never repaid",
	CodeReceiptAlreadyUsed:     "Flash loan receipt already consumed",
	CodePlanFinalized:          "Transaction plan is already finalized",

	// RPC
	CodeRPCConnectionFailed: "Failed to connect to RPC node",
	CodeRPCError:            "RPC call failed",

	// Circuit breaker
	CodeCircuitOpen: "Circuit breaker is open",
}
