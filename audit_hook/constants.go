package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated     = "plan.created"
	ActionPlanActivated   = "plan.activated"
	ActionPlanDeactivated = "plan.deactivated"

	// Subscription actions
	ActionSubscriptionPurchased = "subscription.purchased"
	ActionSubscriptionRenewed   = "subscription.renewed"
	ActionSubscriptionCanceled  = "subscription.canceled"

	// Funds actions
	ActionFundsWithdrawn = "funds.withdrawn"

	// Ownership actions
	ActionOwnershipTransferred = "ownership.transferred"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceFunds        = "funds"
	ResourceOwnership    = "ownership"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryAdmin        = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
