package bronto

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const (
	OperationAdd    = "Add"
	OperationUpdate = "Update"
	OperationDelete = "Delete"
)

const (
	noEmailMessage      = "No email"
	userNotFoundMessage = "User not found"
)

type brontoSync struct {
	api       IBrontoApi
	directory IDirectory
	groups    IGroupDirectory
	reference *ReferenceCache
	resolver  *ContactResolver
	store     ICacheStore
	logger    *zap.Logger
}

// NewBrontoSync creates the synchronization between a user directory and Bronto.
// api: Bronto session
// directory: host user directory. Groups are mapped to Bronto lists by name when groupMapping
// is set and the directory implements IGroupDirectory, otherwise every contact joins the
// last Bronto list.
// store: cache for Bronto fields and lists
func NewBrontoSync(api IBrontoApi, directory IDirectory, store ICacheStore, logger *zap.Logger, groupMapping bool) IBrontoSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	var bs = &brontoSync{
		api:       api,
		directory: directory,
		reference: NewReferenceCache(api, store),
		resolver:  NewContactResolver(api, logger),
		store:     store,
		logger:    logger,
	}
	if groupMapping {
		if gd, ok := directory.(IGroupDirectory); ok {
			bs.groups = gd
		}
	}
	if bs.groups == nil {
		logger.Info("No group directory available. Will sync with first created Bronto list")
	}
	return bs
}

func (bs *brontoSync) Fields(ctx context.Context) ([]*FieldDefinition, error) {
	return bs.reference.Fields(ctx)
}

func (bs *brontoSync) Lists(ctx context.Context) ([]*MailingList, error) {
	return bs.reference.Lists(ctx)
}

func (bs *brontoSync) Close(ctx context.Context) (err error) {
	if closer, ok := bs.store.(interface{ Close(context.Context) error }); ok {
		err = closer.Close(ctx)
	}
	return
}

func (bs *brontoSync) loadUser(ctx context.Context, userId string) (user *LocalUser, err error) {
	if user, err = bs.directory.GetUser(ctx, userId); err != nil {
		return
	}
	if user == nil {
		err = fmt.Errorf("directory user \"%s\" was not found", userId)
	}
	return
}

func (bs *brontoSync) skip(operation string, user *LocalUser) *SyncResult {
	bs.logger.Warn("Failed "+operation, zap.String("id", user.Id), zap.String("message", noEmailMessage))
	return &SyncResult{
		Operation: operation,
		UserId:    user.Id,
		Message:   noEmailMessage,
	}
}

func (bs *brontoSync) AddUser(ctx context.Context, userId string) (result *SyncResult, err error) {
	var user *LocalUser
	if user, err = bs.loadUser(ctx, userId); err != nil {
		return
	}
	result, err = bs.AddContact(ctx, user)
	return
}

// AddContact creates or updates the Bronto contact of a newly created user.
func (bs *brontoSync) AddContact(ctx context.Context, user *LocalUser) (result *SyncResult, err error) {
	if len(user.Email) == 0 {
		result = bs.skip(OperationAdd, user)
		return
	}
	result, err = bs.addOrUpdateContact(ctx, OperationAdd, user, nil)
	return
}

func (bs *brontoSync) UpdateUser(ctx context.Context, userId string, prior *LocalUser) (result *SyncResult, err error) {
	var user *LocalUser
	if user, err = bs.loadUser(ctx, userId); err != nil {
		return
	}
	result, err = bs.SyncContact(ctx, user, prior)
	return
}

// SyncContact applies a profile or group membership change of user.
// When prior carries a different email the contact is resolved by the prior email.
func (bs *brontoSync) SyncContact(ctx context.Context, user *LocalUser, prior *LocalUser) (result *SyncResult, err error) {
	if len(user.Email) == 0 {
		result = bs.skip(OperationUpdate, user)
		return
	}
	if prior != nil && len(prior.Email) > 0 && prior.Email != user.Email {
		result, err = bs.addOrUpdateContact(ctx, OperationUpdate, user, prior)
	} else {
		result, err = bs.addOrUpdateContact(ctx, OperationUpdate, user, nil)
	}
	return
}

// DeleteUser removes the contact of a deleted directory user. The user is looked up
// among deleted users when the directory supports it. A user that cannot be resolved
// at all is reported as a failed result, not as an error, since retrying cannot help.
func (bs *brontoSync) DeleteUser(ctx context.Context, userId string) (result *SyncResult, err error) {
	var user *LocalUser
	if user, err = bs.directory.GetUser(ctx, userId); err != nil {
		return
	}
	if user == nil {
		if dd, ok := bs.directory.(IDeletedUserDirectory); ok {
			if user, err = dd.GetDeletedUser(ctx, userId); err != nil {
				return
			}
		}
	}
	if user == nil {
		bs.logger.Warn("Failed "+OperationDelete, zap.String("id", userId), zap.String("message", userNotFoundMessage))
		result = &SyncResult{
			Operation: OperationDelete,
			UserId:    userId,
			Message:   userNotFoundMessage,
		}
		return
	}
	result, err = bs.RemoveContact(ctx, user)
	return
}

// RemoveContact deletes the Bronto contact of user.
// Users without email are never added to Bronto so there is nothing to delete.
func (bs *brontoSync) RemoveContact(ctx context.Context, user *LocalUser) (result *SyncResult, err error) {
	if len(user.Email) == 0 {
		result = bs.skip(OperationDelete, user)
		return
	}
	result, err = bs.deleteContact(ctx, user)
	return
}

func prepareFields(fields []*FieldDefinition, user *LocalUser) (result []*ContactField) {
	for _, f := range fields {
		var value = user.Attribute(f.Name)
		if len(value) > 0 {
			result = append(result, &ContactField{
				FieldId: f.Id,
				Content: norm.NFC.String(value),
			})
		}
	}
	return
}

func prepareLists(lists []*MailingList, groups []*Group, groupMapping bool) (listIds []string) {
	if !groupMapping {
		if len(lists) > 0 {
			listIds = append(listIds, lists[len(lists)-1].Id)
		}
		return
	}
	var groupNames = NewSet[string]()
	for _, g := range groups {
		if g != nil {
			groupNames.Add(norm.NFC.String(g.Name))
		}
	}
	for _, l := range lists {
		if groupNames.Has(norm.NFC.String(l.Name)) {
			listIds = append(listIds, l.Id)
		}
	}
	return
}

func writeResultMessage(result *WriteResult) (message string, success bool) {
	if result == nil {
		return okMessage, true
	}
	if message, success = resultMessage(result.Results); !success || len(result.Errors) == 0 {
		return
	}
	var messages []string
	for _, pos := range result.Errors {
		if pos >= 0 && pos < len(result.Results) && result.Results[pos] != nil && len(result.Results[pos].ErrorString) > 0 {
			messages = append(messages, result.Results[pos].ErrorString)
		} else {
			messages = append(messages, fmt.Sprintf("Error in row %d", pos))
		}
	}
	message = strings.Join(messages, "; ")
	success = false
	return
}

func (bs *brontoSync) userGroups(ctx context.Context, user *LocalUser) (groups []*Group, err error) {
	if user.Groups != nil {
		groups = user.Groups
		return
	}
	groups, err = bs.groups.UserGroups(ctx, user.Id)
	return
}

func (bs *brontoSync) buildPayload(ctx context.Context, user *LocalUser) (payload *ContactPayload, err error) {
	var fields []*FieldDefinition
	if fields, err = bs.reference.Fields(ctx); err != nil {
		return
	}
	var lists []*MailingList
	if lists, err = bs.reference.Lists(ctx); err != nil {
		return
	}
	var groups []*Group
	if bs.groups != nil {
		if groups, err = bs.userGroups(ctx, user); err != nil {
			return
		}
	}
	payload = &ContactPayload{
		Email:   user.Email,
		Fields:  prepareFields(fields, user),
		ListIds: prepareLists(lists, groups, bs.groups != nil),
	}
	return
}

func (bs *brontoSync) addOrUpdateContact(ctx context.Context, operation string, user *LocalUser, prior *LocalUser) (result *SyncResult, err error) {
	var payload *ContactPayload
	if payload, err = bs.buildPayload(ctx, user); err != nil {
		return
	}

	var lookup = user
	if prior != nil {
		lookup = prior
	}
	var contact *RemoteContact
	if contact, err = bs.resolver.Contact(ctx, lookup); err != nil {
		return
	}
	if len(contact.Id) > 0 {
		payload.Id = contact.Id
	}

	var wr *WriteResult
	if wr, err = bs.api.AddOrUpdateContacts(ctx, []*ContactPayload{payload}); err != nil {
		return
	}

	result = &SyncResult{
		Operation: operation,
		UserId:    user.Id,
		Email:     user.Email,
	}
	result.Message, result.Success = writeResultMessage(wr)
	bs.logResult("Save", result)
	return
}

func (bs *brontoSync) deleteContact(ctx context.Context, user *LocalUser) (result *SyncResult, err error) {
	var contact *RemoteContact
	if contact, err = bs.resolver.Contact(ctx, user); err != nil {
		return
	}
	result = &SyncResult{
		Operation: OperationDelete,
		UserId:    user.Id,
		Email:     user.Email,
	}
	if len(contact.Id) == 0 {
		result.Message = "Contact not found"
		result.Success = true
		bs.logResult(OperationDelete, result)
		return
	}

	var wr *WriteResult
	if wr, err = bs.api.DeleteContacts(ctx, []string{contact.Id}); err != nil {
		result = nil
		return
	}
	result.Message, result.Success = writeResultMessage(wr)
	bs.logResult(OperationDelete, result)
	return
}

func (bs *brontoSync) logResult(action string, result *SyncResult) {
	var fields = []zap.Field{
		zap.String("operation", result.Operation),
		zap.String("id", result.UserId),
		zap.String("email", result.Email),
		zap.String("message", result.Message),
	}
	if result.Success {
		bs.logger.Info(action, fields...)
	} else {
		bs.logger.Warn(action, fields...)
	}
}
