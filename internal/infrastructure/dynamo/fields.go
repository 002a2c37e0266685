package dynamo

// Attribute names of the notifications table. Several (status, type, data) are
// DynamoDB reserved words, so expressions always reach them through #name placeholders.
const (
	attrID          = "notification_id"
	attrUserID      = "user_id"
	attrType        = "type"
	attrTitle       = "title"
	attrMessage     = "message"
	attrPriority    = "priority"
	attrStatus      = "status"
	attrData        = "data"
	attrReadAt      = "read_at"
	attrUpdatedAt   = "updated_at"
	attrCreatedSort = "created_sort"
	attrExpiresNano = "expires_nano"
	attrExpiresTTL  = "expires_at_ttl"
)

const userCreatedIndex = "user_id-created_sort-index"
