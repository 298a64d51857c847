package models

import "time"

type Organization struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Contact struct {
	ID                string    `bson:"_id" json:"id"`
	Phone             string    `bson:"phone" json:"phone"`
	Name              string    `bson:"name" json:"name"`
	ProfilePictureURL *string   `bson:"profilePictureUrl,omitempty" json:"profilePictureUrl,omitempty"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
}

// Agent's DepartmentPermissions lists the departments the agent may act in.
// An empty list means blanket access.
type Agent struct {
	ID                    string   `bson:"_id" json:"id"`
	Name                  string   `bson:"name" json:"name"`
	DepartmentPermissions []string `bson:"departmentPermissions,omitempty" json:"departmentPermissions,omitempty"`
}

type Department struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

type RatingBehavior string

const (
	RatingBehaviorEnabled  RatingBehavior = "enabled"
	RatingBehaviorDisabled RatingBehavior = "disabled"
	RatingBehaviorDefault  RatingBehavior = "default"
)

// Ending is a configurable closing reason with its own rating and closing
// message overrides.
type Ending struct {
	ID             string         `bson:"_id" json:"id"`
	Title          string         `bson:"title" json:"title"`
	RatingBehavior RatingBehavior `bson:"ratingBehavior" json:"ratingBehavior"`
	Message        string         `bson:"message,omitempty" json:"message,omitempty"`
}

type OrgSettings struct {
	OrganizationID string `bson:"_id" json:"organizationId"`
	RatingEnabled  bool   `bson:"ratingEnabled" json:"ratingEnabled"`
	ClosingMessage string `bson:"closingMessage,omitempty" json:"closingMessage,omitempty"`
}

// QuickReply is a reusable multi-message template sendable immediately or via
// a scheduled message.
type QuickReply struct {
	ID       string   `bson:"_id" json:"id"`
	Name     string   `bson:"name" json:"name"`
	Messages []string `bson:"messages" json:"messages"`
}
