// Package errors provides structured error handling with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Campaign errors
	CodeCampaignNameEmpty    Code = "CAMPAIGN_NAME_EMPTY"
	CodeCampaignEmptyGuildID Code = "CAMPAIGN_EMPTY_GUILD_ID"

	// Book errors
	CodeBookEmptyCampaignID Code = "BOOK_EMPTY_CAMPAIGN_ID"
	CodeBookEmptyName       Code = "BOOK_EMPTY_NAME"

	// Character errors
	CodeCharacterEmptyCampaignID Code = "CHARACTER_EMPTY_CAMPAIGN_ID"
	CodeCharacterEmptyName       Code = "CHARACTER_EMPTY_NAME"

	// Provider errors
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"

	// Outbox errors
	CodeOutboxInvalidObjectType Code = "OUTBOX_INVALID_OBJECT_TYPE"
	CodeOutboxInvalidUpdateType Code = "OUTBOX_INVALID_UPDATE_TYPE"
)
