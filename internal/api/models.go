package api

import (
	"time"

	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/member"
)

// Response shapes for the REST surface. Message bodies reuse the socket wire
// shape (event.WireMessage) so a message looks identical on both surfaces.

type groupResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsPrivate   bool    `json:"isPrivate"`
	CreatorID   string  `json:"creatorId"`
	CreatedAt   string  `json:"createdAt"`
}

func toGroupResponse(g *group.Group) groupResponse {
	return groupResponse{
		ID:          g.ID.String(),
		Name:        g.Name,
		Description: g.Description,
		IsPrivate:   g.IsPrivate,
		CreatorID:   g.CreatorID.String(),
		CreatedAt:   g.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type membershipResponse struct {
	UserID   string  `json:"userId"`
	GroupID  string  `json:"groupId"`
	Role     string  `json:"role"`
	JoinedAt string  `json:"joinedAt"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Image    *string `json:"image,omitempty"`
}

func toMembershipResponse(m *member.Membership) membershipResponse {
	return membershipResponse{
		UserID:   m.UserID.String(),
		GroupID:  m.GroupID.String(),
		Role:     m.Role,
		JoinedAt: m.JoinedAt.UTC().Format(time.RFC3339Nano),
		Name:     m.UserName,
		Email:    m.UserEmail,
		Image:    m.UserImage,
	}
}
