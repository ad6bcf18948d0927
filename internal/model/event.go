package model

// Event names accepted by the engine and written to the activity log.
const (
	EventPurchase          = "purchase"
	EventPurchaseThreshold = "purchaseThreshold"
	EventFeedback          = "feedback"
	EventBirthday          = "birthday"
	EventRating            = "rating"
	EventProfileCompletion = "profileCompletion"
	EventRepeatPurchase    = "repeatPurchase"
	EventWelcome           = "welcome"
	EventInstallApp        = "installApp"
	EventShareReferral     = "shareReferral"
	EventPointsDeduction   = "pointsDeduction"

	// Only produced internally, never accepted as input.
	EventCouponGenerated = "coupon_generated"
	EventManualReward    = "manualReward"
)

// Deduction reasons carried in pointsDeduction metadata.
const (
	ReasonOrderDeleted   = "order_deleted"
	ReasonOrderRefunded  = "order_refunded"
	ReasonOrderCancelled = "order_cancelled"
)
