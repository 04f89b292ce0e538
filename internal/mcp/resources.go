package mcp

import (
	"encoding/json"

	"daraja-mcp/internal/model"
	"daraja-mcp/internal/store"
)

const (
	ResourceRecent = "payment://recent"
	ResourceUnread = "payment://unread"

	recentResourceSize = 20
	jsonMimeType       = "application/json"
)

var resources = []Resource{
	{
		URI:         ResourceRecent,
		Name:        "Recent Payments",
		MimeType:    jsonMimeType,
		Description: "Recent M-PESA payment notifications",
	},
	{
		URI:         ResourceUnread,
		Name:        "Unread Notifications",
		MimeType:    jsonMimeType,
		Description: "Unread payment notifications",
	},
}

type recentView struct {
	Total    int                         `json:"total"`
	Unread   int                         `json:"unread"`
	Payments []model.PaymentNotification `json:"payments"`
}

type unreadView struct {
	Total    int                         `json:"total"`
	Payments []model.PaymentNotification `json:"payments"`
}

// readResource renders a resource as indented JSON. ok is false for unknown URIs.
func readResource(s *store.Store, uri string) (string, bool) {
	var view any
	switch uri {
	case ResourceRecent:
		payments, unread := s.RecentWithUnread(recentResourceSize)
		view = recentView{Total: len(payments), Unread: unread, Payments: payments}
	case ResourceUnread:
		payments := s.Unread()
		view = unreadView{Total: len(payments), Payments: payments}
	default:
		return "", false
	}

	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", false
	}
	return string(b), true
}
