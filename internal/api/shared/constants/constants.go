package constants

const (
	DEFAULT_NOTIFICATIONS_LIMIT = 50
	MAX_NOTIFICATIONS_LIMIT     = 200
	MAX_METADATA_REF_LENGTH     = 2048
	MAX_SERIAL_NUMBER_LENGTH    = 256
)
