package bronto

import (
	"context"

	"go.uber.org/zap"
)

const okMessage = "OK Bronto"

func resultMessage(results []*ResultItem) (message string, success bool) {
	message = okMessage
	success = true
	for _, r := range results {
		if r != nil && r.IsError {
			message = r.ErrorString
			success = false
			return
		}
	}
	return
}

// ContactResolver looks up the Bronto contact that matches a user's email.
type ContactResolver struct {
	api    IBrontoApi
	logger *zap.Logger
}

func NewContactResolver(api IBrontoApi, logger *zap.Logger) *ContactResolver {
	return &ContactResolver{
		api:    api,
		logger: logger,
	}
}

// Contact returns the first matching contact, or an empty RemoteContact when
// the user has no email or nothing matches.
func (cr *ContactResolver) Contact(ctx context.Context, user *LocalUser) (contact *RemoteContact, err error) {
	contact = new(RemoteContact)
	if user == nil || len(user.Email) == 0 {
		var userId string
		if user != nil {
			userId = user.Id
		}
		cr.logger.Warn("Failed get", zap.String("id", userId), zap.String("message", "No email"))
		return
	}

	var result *ReadContactsResult
	if result, err = cr.api.ReadContacts(ctx, &ContactQuery{
		PageNumber:   1,
		IncludeLists: false,
		Email:        user.Email,
	}); err != nil {
		return
	}
	if result == nil {
		result = new(ReadContactsResult)
	}

	var message, _ = resultMessage(result.Results)
	cr.logger.Info("Get", zap.String("id", user.Id), zap.String("email", user.Email), zap.String("message", message))

	if len(result.Contacts) > 0 {
		contact = result.Contacts[0]
	}
	return
}
