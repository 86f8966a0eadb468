package model

// 注文時点の購入者情報
// Orderに埋め込んで保存する（customer_ プレフィックス）。
type CustomerDetails struct {
	FullName string `gorm:"type:varchar(255);not null" json:"full_name"`
	Email    string `gorm:"type:varchar(255);not null" json:"email"`
	Phone    string `gorm:"type:varchar(30);not null" json:"phone"`

	//番地など
	Address string `gorm:"type:varchar(255);not null" json:"address"`
	City    string `gorm:"type:varchar(255);not null" json:"city"`
	State   string `gorm:"type:varchar(100);not null" json:"state"`
	Country string `gorm:"type:varchar(100);not null" json:"country"`

	//郵便番号
	Pincode string `gorm:"type:varchar(20);not null" json:"pincode"`
}
