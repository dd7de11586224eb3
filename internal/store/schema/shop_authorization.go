package schema

import "time"

// ShopAuthorization represents the shop_authorizations table - the set of authorized shops.
// A row exists only while the shop is authorized.
type ShopAuthorization struct {
	// Address is the shop's address (checksummed hex)
	Address string `gorm:"column:address;primaryKey;type:text"`
	// AuthorizedBy is the administrator that granted the authorization
	AuthorizedBy string `gorm:"column:authorized_by;not null;type:text"`
	// CreatedAt is when the authorization was granted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ShopAuthorization model
func (ShopAuthorization) TableName() string {
	return "shop_authorizations"
}
