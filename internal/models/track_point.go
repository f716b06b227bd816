package models

// TrackPoint stores a single captured position. Points are insert-only.
type TrackPoint struct {
	ID        string  `gorm:"primaryKey;uniqueIndex;size:36" json:"id" dynamodbav:"id"`
	Latitude  float64 `gorm:"not null" json:"latitude" dynamodbav:"latitude"`
	Longitude float64 `gorm:"not null" json:"longitude" dynamodbav:"longitude"`
	Altitude  float64 `gorm:"not null" json:"altitude" dynamodbav:"altitude"`

	// Time is seconds since the Unix epoch.
	Time float64 `gorm:"index;not null" json:"time" dynamodbav:"time"`
}

func (TrackPoint) TableName() string {
	return "track_points"
}
