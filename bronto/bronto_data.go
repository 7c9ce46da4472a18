package bronto

import (
	"context"
)

// IBrontoApi lists the Bronto SOAP operations used by the synchronization.
type IBrontoApi interface {
	ReadFields(ctx context.Context, pageNumber int) ([]*FieldDefinition, error)
	ReadLists(ctx context.Context, pageNumber int) ([]*MailingList, error)
	ReadContacts(ctx context.Context, query *ContactQuery) (*ReadContactsResult, error)
	AddOrUpdateContacts(ctx context.Context, contacts []*ContactPayload) (*WriteResult, error)
	DeleteContacts(ctx context.Context, contactIds []string) (*WriteResult, error)
}

// IDirectory is the host user directory
type IDirectory interface {
	GetUser(ctx context.Context, userId string) (*LocalUser, error)
}

// IGroupDirectory is implemented by directories that expose group membership.
// Group to list mapping is available only when the directory implements it.
type IGroupDirectory interface {
	UserGroups(ctx context.Context, userId string) ([]*Group, error)
}

// IDeletedUserDirectory is implemented by directories that still resolve users
// after they were deleted.
type IDeletedUserDirectory interface {
	GetDeletedUser(ctx context.Context, userId string) (*LocalUser, error)
}

type IBrontoSync interface {
	AddUser(ctx context.Context, userId string) (*SyncResult, error)
	AddContact(ctx context.Context, user *LocalUser) (*SyncResult, error)
	UpdateUser(ctx context.Context, userId string, prior *LocalUser) (*SyncResult, error)
	DeleteUser(ctx context.Context, userId string) (*SyncResult, error)
	SyncContact(ctx context.Context, user *LocalUser, prior *LocalUser) (*SyncResult, error)
	RemoveContact(ctx context.Context, user *LocalUser) (*SyncResult, error)
	Fields(ctx context.Context) ([]*FieldDefinition, error)
	Lists(ctx context.Context) ([]*MailingList, error)
	Close(ctx context.Context) error
}

type FieldDefinition struct {
	Id    string `xml:"id" json:"id"`
	Name  string `xml:"name" json:"name"`
	Label string `xml:"label" json:"label,omitempty"`
	Type  string `xml:"type" json:"type,omitempty"`
}

type MailingList struct {
	Id          string `xml:"id" json:"id"`
	Name        string `xml:"name" json:"name"`
	Label       string `xml:"label" json:"label,omitempty"`
	ActiveCount int64  `xml:"activeCount" json:"activeCount,omitempty"`
	Status      string `xml:"status" json:"status,omitempty"`
}

type Group struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// LocalUser is a read-only view of a directory user
type LocalUser struct {
	Id         string            `json:"id"`
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Groups     []*Group          `json:"groups,omitempty"`
}

func (u *LocalUser) Attribute(name string) (value string) {
	if u != nil && u.Attributes != nil {
		value = u.Attributes[name]
	}
	return
}

type ContactField struct {
	FieldId string `xml:"fieldId"`
	Content string `xml:"content"`
}

// ContactPayload is submitted to addOrUpdateContacts.
// Empty Id creates the contact, otherwise the contact is updated.
type ContactPayload struct {
	Id      string          `xml:"id,omitempty"`
	Email   string          `xml:"email"`
	ListIds []string        `xml:"listIds"`
	Fields  []*ContactField `xml:"fields"`
}

type RemoteContact struct {
	Id       string          `xml:"id"`
	Email    string          `xml:"email"`
	Status   string          `xml:"status"`
	Created  string          `xml:"created"`
	Modified string          `xml:"modified"`
	ListIds  []string        `xml:"listIds"`
	Fields   []*ContactField `xml:"fields"`
}

type ContactQuery struct {
	PageNumber   int
	IncludeLists bool
	Email        string
}

type ResultItem struct {
	Id          string `xml:"id"`
	IsNew       bool   `xml:"isNew"`
	IsError     bool   `xml:"isError"`
	ErrorCode   int    `xml:"errorCode"`
	ErrorString string `xml:"errorString"`
}

// WriteResult.Errors holds the positions of the failed rows in Results
type WriteResult struct {
	Errors  []int         `xml:"errors"`
	Results []*ResultItem `xml:"results"`
}

// ReadContactsResult carries the matching contacts and any result rows
// the service embedded next to them.
type ReadContactsResult struct {
	Contacts []*RemoteContact
	Results  []*ResultItem
}

type SyncResult struct {
	Operation string
	UserId    string
	Email     string
	Message   string
	Success   bool
}
