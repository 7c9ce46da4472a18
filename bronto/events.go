package bronto

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"
)

// Directory lifecycle event types
const (
	EventUserCreated       = "com.keepersecurity.directory.user.created"
	EventUserUpdated       = "com.keepersecurity.directory.user.updated"
	EventUserGroupsChanged = "com.keepersecurity.directory.user.groups_changed"
	EventUserDeleted       = "com.keepersecurity.directory.user.deleted"
)

// UserEvent is a directory lifecycle notification.
// User optionally carries the user record so the directory is not queried,
// Prior carries the record before an update.
type UserEvent struct {
	Type   string     `json:"type"`
	UserId string     `json:"userId"`
	User   *LocalUser `json:"user,omitempty"`
	Prior  *LocalUser `json:"prior,omitempty"`
}

func UserEventFromCloudEvent(e event.Event) (ue *UserEvent, err error) {
	ue = new(UserEvent)
	if len(e.Data()) > 0 {
		if err = e.DataAs(ue); err != nil {
			err = fmt.Errorf("event \"%s\": %w", e.ID(), err)
			ue = nil
			return
		}
	}
	ue.Type = e.Type()
	if len(ue.UserId) == 0 {
		ue.UserId = e.Subject()
	}
	return
}

// DispatchUserEvent routes ue to the matching IBrontoSync operation.
func DispatchUserEvent(ctx context.Context, bs IBrontoSync, ue *UserEvent) (result *SyncResult, err error) {
	if ue.User == nil && len(ue.UserId) == 0 {
		err = errors.New("user event does not identify a user")
		return
	}
	switch ue.Type {
	case EventUserCreated:
		if ue.User != nil {
			result, err = bs.AddContact(ctx, ue.User)
		} else {
			result, err = bs.AddUser(ctx, ue.UserId)
		}
	case EventUserUpdated, EventUserGroupsChanged:
		if ue.User != nil {
			result, err = bs.SyncContact(ctx, ue.User, ue.Prior)
		} else {
			result, err = bs.UpdateUser(ctx, ue.UserId, ue.Prior)
		}
	case EventUserDeleted:
		if ue.User != nil {
			result, err = bs.RemoveContact(ctx, ue.User)
		} else {
			result, err = bs.DeleteUser(ctx, ue.UserId)
		}
	default:
		err = fmt.Errorf("unsupported user event type \"%s\"", ue.Type)
	}
	return
}
