package common

// DeviceTokenHeaderName is the gRPC metadata key carrying the device API token
// on outbound requests.
const DeviceTokenHeaderName = "authorization"

// Metadata keys persisted in the local store.
const (
	MetadataEventSlug     = "event_slug"
	MetadataCheckInListID = "checkin_list_id"
	MetadataLastDrain     = "last_drain"
)
