package models

type Product struct {
	ID           string  `bson:"_id" json:"id"`
	Name         string  `bson:"name" json:"name"`
	Price        float64 `bson:"price" json:"price"`
	Image        string  `bson:"image" json:"image"`
	Category     string  `bson:"category" json:"category"`
	IsBestSeller bool    `bson:"isBestSeller" json:"isBestSeller"`
}
