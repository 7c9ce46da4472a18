package bronto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type googleDirectory struct {
	jwtCredentials []byte
	subject        string
	lock           sync.Mutex
	directory      *admin.Service
}

// NewGoogleDirectory creates an IDirectory over Google Workspace users.
// The returned directory implements IGroupDirectory and IDeletedUserDirectory.
// credentials: GCP service account JWT credentials
// subject: Google Workspace admin account
func NewGoogleDirectory(credentials []byte, subject string) IDirectory {
	return &googleDirectory{
		jwtCredentials: credentials,
		subject:        subject,
	}
}

func (gd *googleDirectory) service(ctx context.Context) (directory *admin.Service, err error) {
	gd.lock.Lock()
	defer gd.lock.Unlock()
	if gd.directory != nil {
		directory = gd.directory
		return
	}
	params := google.CredentialsParams{
		Scopes: []string{admin.AdminDirectoryUserReadonlyScope,
			admin.AdminDirectoryGroupReadonlyScope},
		Subject: gd.subject,
	}
	var cred *google.Credentials
	if cred, err = google.CredentialsFromJSONWithParams(ctx, gd.jwtCredentials, params); err != nil {
		return
	}
	if directory, err = admin.NewService(ctx, option.WithCredentials(cred)); err != nil {
		return
	}
	gd.directory = directory
	return
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// GetUser returns nil without error when the user does not exist
func (gd *googleDirectory) GetUser(ctx context.Context, userId string) (user *LocalUser, err error) {
	var directory *admin.Service
	if directory, err = gd.service(ctx); err != nil {
		return
	}
	var u *admin.User
	if u, err = directory.Users.Get(userId).Projection("full").Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			err = nil
		}
		return
	}
	user = userFromDirectory(u)
	return
}

var errUserFound = errors.New("user found")

// GetDeletedUser searches users deleted within the last 20 days, the period Google
// Workspace keeps them restorable. Group memberships are gone at that point.
func (gd *googleDirectory) GetDeletedUser(ctx context.Context, userId string) (user *LocalUser, err error) {
	var directory *admin.Service
	if directory, err = gd.service(ctx); err != nil {
		return
	}
	err = directory.Users.List().Customer("my_customer").ShowDeleted("true").Projection("full").
		Context(ctx).Pages(ctx, func(page *admin.Users) error {
		for _, u := range page.Users {
			if u.Id == userId || strings.EqualFold(u.PrimaryEmail, userId) {
				user = userFromDirectory(u)
				user.Groups = []*Group{}
				return errUserFound
			}
		}
		return nil
	})
	if errors.Is(err, errUserFound) {
		err = nil
	}
	return
}

// UserGroups returns the groups user belongs to, directly or through nested groups.
func (gd *googleDirectory) UserGroups(ctx context.Context, userId string) (groups []*Group, err error) {
	var directory *admin.Service
	if directory, err = gd.service(ctx); err != nil {
		return
	}

	var memberKeys = []string{userId}
	var queuedGroups = NewSet[string]()
	var pos = 0
	for pos < len(memberKeys) {
		var memberKey = memberKeys[pos]
		pos++
		if err = directory.Groups.List().UserKey(memberKey).Context(ctx).Pages(ctx, func(page *admin.Groups) error {
			for _, g := range page.Groups {
				if queuedGroups.Has(g.Id) {
					continue
				}
				queuedGroups.Add(g.Id)
				groups = append(groups, &Group{
					Id:   g.Id,
					Name: g.Name,
				})
				memberKeys = append(memberKeys, g.Id)
			}
			return nil
		}); err != nil {
			return
		}
	}
	if groups == nil {
		groups = []*Group{}
	}
	return
}

func userFromDirectory(u *admin.User) (user *LocalUser) {
	user = &LocalUser{
		Id:         u.Id,
		Email:      u.PrimaryEmail,
		Attributes: make(map[string]string),
	}
	var setAttribute = func(name string, value string) {
		if len(value) > 0 {
			user.Attributes[name] = value
		}
	}
	if u.Name != nil {
		setAttribute("first_name", u.Name.GivenName)
		setAttribute("last_name", u.Name.FamilyName)
		if len(u.Name.FullName) > 0 {
			setAttribute("full_name", u.Name.FullName)
		} else {
			setAttribute("full_name", strings.TrimSpace(strings.Join([]string{u.Name.GivenName, u.Name.FamilyName}, " ")))
		}
	}
	if phone := primaryEntry(u.Phones); phone != nil {
		var value, _ = toString(phone["value"])
		setAttribute("phone", value)
	}
	if org := primaryEntry(u.Organizations); org != nil {
		var value string
		value, _ = toString(org["title"])
		setAttribute("title", value)
		value, _ = toString(org["department"])
		setAttribute("department", value)
		value, _ = toString(org["name"])
		setAttribute("organization", value)
	}
	for schemaName, raw := range u.CustomSchemas {
		var schema map[string]any
		if er1 := json.Unmarshal(raw, &schema); er1 != nil {
			continue
		}
		for fieldName, fieldValue := range schema {
			var value string
			var ok bool
			if values, isArray := fieldValue.([]any); isArray {
				var parts []string
				for _, v := range values {
					if vo, isObject := v.(map[string]any); isObject {
						if value, ok = toAttributeString(vo["value"]); ok && len(value) > 0 {
							parts = append(parts, value)
						}
					}
				}
				value = strings.Join(parts, ",")
			} else if value, ok = toAttributeString(fieldValue); !ok {
				continue
			}
			setAttribute(schemaName+"."+fieldName, value)
			if _, exists := user.Attributes[fieldName]; !exists {
				setAttribute(fieldName, value)
			}
		}
	}
	return
}

// primaryEntry picks the primary element, or the first one, of a directory
// multi-value property such as phones or organizations.
func primaryEntry(property any) (entry map[string]any) {
	var values []any
	var ok bool
	if values, ok = property.([]any); !ok {
		return
	}
	for _, v := range values {
		var vo map[string]any
		if vo, ok = v.(map[string]any); !ok {
			continue
		}
		if entry == nil {
			entry = vo
		}
		if primary, _ := toBoolean(vo["primary"]); primary {
			entry = vo
			return
		}
	}
	return
}
