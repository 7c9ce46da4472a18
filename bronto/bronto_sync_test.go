package bronto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type syncFixture struct {
	api       *fakeApi
	directory *groupDirectory
	logs      *observer.ObservedLogs
	sync      IBrontoSync
}

func newSyncFixture(t *testing.T, groupMapping bool, users ...*LocalUser) *syncFixture {
	t.Helper()
	var api = newFakeApi()
	api.fields = []*FieldDefinition{{Id: "7", Name: "phone"}}
	api.lists = []*MailingList{{Id: "3", Name: "VIP"}, {Id: "4", Name: "Newsletter"}}

	var directory = &groupDirectory{
		plainDirectory: plainDirectory{users: make(map[string]*LocalUser)},
		groups:         make(map[string][]*Group),
	}
	for _, u := range users {
		directory.users[u.Id] = u
	}

	core, logs := observer.New(zap.DebugLevel)
	return &syncFixture{
		api:       api,
		directory: directory,
		logs:      logs,
		sync:      NewBrontoSync(api, directory, NewMemoryCacheStore(nil), zap.New(core), groupMapping),
	}
}

func (f *syncFixture) messages(entry string) (messages []string) {
	for _, e := range f.logs.FilterMessage(entry).All() {
		messages = append(messages, e.ContextMap()["message"].(string))
	}
	return
}

func alice() *LocalUser {
	return &LocalUser{
		Id:         "u-1",
		Email:      "alice@x.com",
		Attributes: map[string]string{"phone": "555-1234"},
	}
}

func TestAddUserCreatesContact(t *testing.T) {
	var f = newSyncFixture(t, true, alice())
	f.directory.groups["u-1"] = []*Group{{Id: "g-1", Name: "VIP"}}

	result, err := f.sync.AddUser(context.Background(), "u-1")
	require.NoError(t, err)

	require.Len(t, f.api.saved, 1)
	assert.Equal(t, &ContactPayload{
		Email:   "alice@x.com",
		Fields:  []*ContactField{{FieldId: "7", Content: "555-1234"}},
		ListIds: []string{"3"},
	}, f.api.saved[0])
	assert.Equal(t, []string{"alice@x.com"}, f.api.lookups)
	assert.Equal(t, &SyncResult{
		Operation: OperationAdd,
		UserId:    "u-1",
		Email:     "alice@x.com",
		Message:   okMessage,
		Success:   true,
	}, result)
	assert.Equal(t, []string{okMessage}, f.messages("Save"))
}

func TestAddUserUpdatesExistingContact(t *testing.T) {
	var f = newSyncFixture(t, true, alice())
	f.directory.groups["u-1"] = []*Group{{Id: "g-1", Name: "VIP"}}
	f.api.contacts["alice@x.com"] = &RemoteContact{Id: "42", Email: "alice@x.com"}

	_, err := f.sync.AddUser(context.Background(), "u-1")
	require.NoError(t, err)

	require.Len(t, f.api.saved, 1)
	assert.Equal(t, "42", f.api.saved[0].Id)
	assert.Equal(t, []string{"3"}, f.api.saved[0].ListIds)
}

func TestSyncContactTwiceResolvesExistingContact(t *testing.T) {
	var f = newSyncFixture(t, true)
	var user = alice()
	user.Groups = []*Group{{Id: "g-1", Name: "VIP"}}

	_, err := f.sync.SyncContact(context.Background(), user, nil)
	require.NoError(t, err)
	_, err = f.sync.SyncContact(context.Background(), user, nil)
	require.NoError(t, err)

	require.Len(t, f.api.saved, 2)
	assert.Empty(t, f.api.saved[0].Id)
	assert.NotEmpty(t, f.api.saved[1].Id)
	var first, second = *f.api.saved[0], *f.api.saved[1]
	second.Id = ""
	assert.Equal(t, first, second)
	assert.Equal(t, 0, f.directory.groupCalls)
}

func TestUpdateUserEmailChangeResolvesByPriorEmail(t *testing.T) {
	var user = alice()
	user.Email = "alice@new.com"
	var f = newSyncFixture(t, true, user)
	f.api.contacts["alice@x.com"] = &RemoteContact{Id: "42", Email: "alice@x.com"}

	result, err := f.sync.UpdateUser(context.Background(), "u-1", &LocalUser{Id: "u-1", Email: "alice@x.com"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@x.com"}, f.api.lookups)
	require.Len(t, f.api.saved, 1)
	assert.Equal(t, "42", f.api.saved[0].Id)
	assert.Equal(t, "alice@new.com", f.api.saved[0].Email)
	assert.Equal(t, OperationUpdate, result.Operation)
}

func TestUpdateUserSameEmailResolvesByCurrentEmail(t *testing.T) {
	var f = newSyncFixture(t, true, alice())

	_, err := f.sync.UpdateUser(context.Background(), "u-1", &LocalUser{Id: "u-1", Email: "alice@x.com"})
	require.NoError(t, err)
	_, err = f.sync.UpdateUser(context.Background(), "u-1", &LocalUser{Id: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@x.com", "alice@x.com"}, f.api.lookups)
}

func TestNoEmailSkipsRemoteWrites(t *testing.T) {
	var f = newSyncFixture(t, true, &LocalUser{Id: "u-2", Attributes: map[string]string{"phone": "1"}})
	var ctx = context.Background()

	added, err := f.sync.AddUser(ctx, "u-2")
	require.NoError(t, err)
	updated, err := f.sync.UpdateUser(ctx, "u-2", &LocalUser{Id: "u-2", Email: "old@x.com"})
	require.NoError(t, err)
	deleted, err := f.sync.DeleteUser(ctx, "u-2")
	require.NoError(t, err)

	for _, result := range []*SyncResult{added, updated, deleted} {
		assert.False(t, result.Success)
		assert.Equal(t, noEmailMessage, result.Message)
	}
	assert.Empty(t, f.api.saved)
	assert.Empty(t, f.api.deleted)
	assert.Empty(t, f.api.lookups)
	assert.Equal(t, []string{noEmailMessage}, f.messages("Failed Add"))
	assert.Equal(t, []string{noEmailMessage}, f.messages("Failed Update"))
	assert.Equal(t, []string{noEmailMessage}, f.messages("Failed Delete"))
}

func TestFieldsKeepFetchOrderAndSkipEmptyValues(t *testing.T) {
	var fields = []*FieldDefinition{
		{Id: "1", Name: "company"},
		{Id: "2", Name: "city"},
		{Id: "3", Name: "phone"},
		{Id: "4", Name: "missing"},
	}
	var user = &LocalUser{Attributes: map[string]string{
		"phone":   "555",
		"city":    "",
		"company": "Acme",
		"other":   "ignored",
	}}

	assert.Equal(t, []*ContactField{
		{FieldId: "1", Content: "Acme"},
		{FieldId: "3", Content: "555"},
	}, prepareFields(fields, user))
	assert.Nil(t, prepareFields(fields, &LocalUser{}))
}

func TestListsMappedByGroupName(t *testing.T) {
	var lists = []*MailingList{{Id: "1", Name: "A"}, {Id: "2", Name: "B"}, {Id: "3", Name: "C"}}

	assert.Equal(t, []string{"1", "3"}, prepareLists(lists, []*Group{{Name: "C"}, {Name: "A"}, {Name: "Z"}}, true))
	assert.Nil(t, prepareLists(lists, []*Group{{Name: "a"}}, true))
	assert.Nil(t, prepareLists(lists, nil, true))
	// NFC and NFD spellings of the same name match
	assert.Equal(t, []string{"9"}, prepareLists([]*MailingList{{Id: "9", Name: "Caf\u00e9"}}, []*Group{{Name: "Cafe\u0301"}}, true))
}

func TestListsFallBackToLastList(t *testing.T) {
	var lists = []*MailingList{{Id: "1", Name: "A"}, {Id: "2", Name: "B"}, {Id: "3", Name: "C"}}

	assert.Equal(t, []string{"3"}, prepareLists(lists, []*Group{{Name: "A"}}, false))
	assert.Nil(t, prepareLists(nil, nil, false))
}

func TestDirectoryWithoutGroupsUsesLastList(t *testing.T) {
	var api = newFakeApi()
	api.lists = []*MailingList{{Id: "3", Name: "VIP"}, {Id: "4", Name: "Newsletter"}}
	var user = alice()
	user.Groups = []*Group{{Name: "VIP"}}
	core, logs := observer.New(zap.InfoLevel)
	var bs = NewBrontoSync(api, plainDirectory{users: map[string]*LocalUser{"u-1": user}}, NewMemoryCacheStore(nil), zap.New(core), true)

	_, err := bs.AddUser(context.Background(), "u-1")
	require.NoError(t, err)

	require.Len(t, api.saved, 1)
	assert.Equal(t, []string{"4"}, api.saved[0].ListIds)
	assert.Equal(t, 1, logs.FilterMessage("No group directory available. Will sync with first created Bronto list").Len())
}

func TestGroupMappingDisabled(t *testing.T) {
	var f = newSyncFixture(t, false, alice())
	f.directory.groups["u-1"] = []*Group{{Id: "g-1", Name: "VIP"}}

	_, err := f.sync.AddUser(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"4"}, f.api.saved[0].ListIds)
	assert.Equal(t, 0, f.directory.groupCalls)
}

func TestRemoteErrorIsLoggedNotReturned(t *testing.T) {
	var f = newSyncFixture(t, true, alice())
	f.api.writeResult = &WriteResult{Results: []*ResultItem{{
		IsError:     true,
		ErrorCode:   303,
		ErrorString: "Duplicate Email Address",
	}}}

	result, err := f.sync.AddUser(context.Background(), "u-1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "Duplicate Email Address", result.Message)
	assert.Equal(t, []string{"Duplicate Email Address"}, f.messages("Save"))
}

func TestWriteResultErrorPositions(t *testing.T) {
	message, success := writeResultMessage(&WriteResult{
		Errors: []int{0, 1},
		Results: []*ResultItem{
			{ErrorCode: 303, ErrorString: "Invalid field"},
			{ErrorCode: 305, ErrorString: "Invalid list"},
		},
	})
	assert.False(t, success)
	assert.Equal(t, "Invalid field; Invalid list", message)

	message, success = writeResultMessage(&WriteResult{Errors: []int{2}})
	assert.False(t, success)
	assert.Equal(t, "Error in row 2", message)

	message, success = writeResultMessage(nil)
	assert.True(t, success)
	assert.Equal(t, okMessage, message)
}

func TestDeleteUserDeletesContact(t *testing.T) {
	var f = newSyncFixture(t, true, alice())
	f.api.contacts["alice@x.com"] = &RemoteContact{Id: "42", Email: "alice@x.com"}

	result, err := f.sync.DeleteUser(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"42"}, f.api.deleted)
	assert.True(t, result.Success)
	assert.Equal(t, OperationDelete, result.Operation)
	assert.Equal(t, []string{okMessage}, f.messages("Delete"))
}

func TestDeleteUserWithoutContact(t *testing.T) {
	var f = newSyncFixture(t, true, alice())

	result, err := f.sync.DeleteUser(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Empty(t, f.api.deleted)
	assert.True(t, result.Success)
	assert.Equal(t, "Contact not found", result.Message)
}

type deletedUserDirectory struct {
	plainDirectory
	deleted map[string]*LocalUser
}

func (d deletedUserDirectory) GetDeletedUser(_ context.Context, userId string) (*LocalUser, error) {
	return d.deleted[userId], nil
}

func TestDeleteUserMissingFromDirectory(t *testing.T) {
	var api = newFakeApi()
	core, logs := observer.New(zap.DebugLevel)
	var bs = NewBrontoSync(api, plainDirectory{}, NewMemoryCacheStore(nil), zap.New(core), true)

	result, err := bs.DeleteUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, OperationDelete, result.Operation)
	assert.Equal(t, "User not found", result.Message)
	assert.Empty(t, api.lookups)
	assert.Empty(t, api.deleted)
	assert.Equal(t, 1, logs.FilterMessage("Failed Delete").Len())
}

func TestDeleteUserResolvesDeletedUser(t *testing.T) {
	var api = newFakeApi()
	api.contacts["alice@x.com"] = &RemoteContact{Id: "42", Email: "alice@x.com"}
	var directory = deletedUserDirectory{deleted: map[string]*LocalUser{"u-1": alice()}}
	var bs = NewBrontoSync(api, directory, NewMemoryCacheStore(nil), zap.NewNop(), true)

	result, err := bs.DeleteUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "alice@x.com", result.Email)
	assert.Equal(t, []string{"42"}, api.deleted)
}

func TestTransportErrorIsReturned(t *testing.T) {
	var f = newSyncFixture(t, true, alice())
	f.api.err = errors.New("connection reset by peer")

	result, err := f.sync.AddUser(context.Background(), "u-1")
	assert.Error(t, err)
	assert.Nil(t, result)

	result, err = f.sync.DeleteUser(context.Background(), "u-1")
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestUnknownUserIsAnError(t *testing.T) {
	var f = newSyncFixture(t, true)

	_, err := f.sync.AddUser(context.Background(), "missing")
	assert.Error(t, err)
}

func TestContactResolverWithoutEmail(t *testing.T) {
	var api = newFakeApi()
	core, logs := observer.New(zap.InfoLevel)
	var resolver = NewContactResolver(api, zap.New(core))

	contact, err := resolver.Contact(context.Background(), &LocalUser{Id: "u-3"})
	require.NoError(t, err)
	assert.Empty(t, contact.Id)
	assert.Empty(t, api.lookups)
	assert.Equal(t, 1, logs.FilterMessage("Failed get").Len())
}

func TestContactResolverLogsEmbeddedError(t *testing.T) {
	var api = &resultsApi{fakeApi: newFakeApi()}
	core, logs := observer.New(zap.InfoLevel)
	var resolver = NewContactResolver(api, zap.New(core))

	contact, err := resolver.Contact(context.Background(), alice())
	require.NoError(t, err)
	assert.Empty(t, contact.Id)
	var entries = logs.FilterMessage("Get").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Invalid filter", entries[0].ContextMap()["message"])
}

type resultsApi struct {
	*fakeApi
}

func (r *resultsApi) ReadContacts(_ context.Context, _ *ContactQuery) (*ReadContactsResult, error) {
	return &ReadContactsResult{Results: []*ResultItem{{IsError: true, ErrorString: "Invalid filter"}}}, nil
}
