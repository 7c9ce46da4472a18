package bronto

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var ErrNoToken = errors.New("Bronto API token is not configured")

type loginRequest struct {
	XMLName  xml.Name `xml:"v4:login"`
	ApiToken string   `xml:"apiToken"`
}
type loginResponse struct {
	Return string `xml:"return"`
}

type emptyFilter struct{}

type readFieldsRequest struct {
	XMLName    xml.Name    `xml:"v4:readFields"`
	PageNumber int         `xml:"pageNumber"`
	Filter     emptyFilter `xml:"filter"`
}
type readFieldsResponse struct {
	Return []*FieldDefinition `xml:"return"`
}

type readListsRequest struct {
	XMLName    xml.Name    `xml:"v4:readLists"`
	PageNumber int         `xml:"pageNumber"`
	Filter     emptyFilter `xml:"filter"`
}
type readListsResponse struct {
	Return []*MailingList `xml:"return"`
}

type stringValue struct {
	Operator string `xml:"operator"`
	Value    string `xml:"value"`
}
type contactFilter struct {
	Email []stringValue `xml:"email"`
}
type readContactsRequest struct {
	XMLName      xml.Name      `xml:"v4:readContacts"`
	PageNumber   int           `xml:"pageNumber"`
	IncludeLists bool          `xml:"includeLists"`
	Filter       contactFilter `xml:"filter"`
}
type readContactsReturn struct {
	RemoteContact
	Results []*ResultItem `xml:"results"`
}
type readContactsResponse struct {
	Return []*readContactsReturn `xml:"return"`
}

type addOrUpdateContactsRequest struct {
	XMLName  xml.Name          `xml:"v4:addOrUpdateContacts"`
	Contacts []*ContactPayload `xml:"contacts"`
}
type contactId struct {
	Id string `xml:"id"`
}
type deleteContactsRequest struct {
	XMLName  xml.Name    `xml:"v4:deleteContacts"`
	Contacts []contactId `xml:"contacts"`
}
type writeResponse struct {
	Return WriteResult `xml:"return"`
}

// Session is the authenticated handle to the Bronto API.
// Login happens on the first call; the session id is reused for the lifetime of the Session.
type Session struct {
	client    *soapClient
	token     string
	lock      sync.Mutex
	sessionId string
}

func NewSession(apiUrl string, token string, httpClient *http.Client) (session *Session, err error) {
	if len(token) == 0 {
		err = ErrNoToken
		return
	}
	var client *soapClient
	if client, err = newSoapClient(apiUrl, httpClient); err != nil {
		return
	}
	session = &Session{
		client: client,
		token:  token,
	}
	return
}

func (s *Session) getSessionId(ctx context.Context) (sessionId string, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.sessionId) > 0 {
		sessionId = s.sessionId
		return
	}

	var rs loginResponse
	if err = s.client.call(ctx, "login", "", &loginRequest{ApiToken: s.token}, &rs); err != nil {
		err = fmt.Errorf("Bronto login failed: %w", err)
		return
	}
	if len(rs.Return) == 0 {
		err = errors.New("Bronto login failed: empty session id")
		return
	}
	s.sessionId = rs.Return
	sessionId = s.sessionId
	return
}

func (s *Session) invoke(ctx context.Context, operation string, request any, response any) (err error) {
	var sessionId string
	if sessionId, err = s.getSessionId(ctx); err != nil {
		return
	}
	err = s.client.call(ctx, operation, sessionId, request, response)
	return
}

func (s *Session) ReadFields(ctx context.Context, pageNumber int) (fields []*FieldDefinition, err error) {
	var rs readFieldsResponse
	if err = s.invoke(ctx, "readFields", &readFieldsRequest{PageNumber: pageNumber}, &rs); err == nil {
		fields = rs.Return
	}
	return
}

func (s *Session) ReadLists(ctx context.Context, pageNumber int) (lists []*MailingList, err error) {
	var rs readListsResponse
	if err = s.invoke(ctx, "readLists", &readListsRequest{PageNumber: pageNumber}, &rs); err == nil {
		lists = rs.Return
	}
	return
}

func (s *Session) ReadContacts(ctx context.Context, query *ContactQuery) (result *ReadContactsResult, err error) {
	var rq = &readContactsRequest{
		PageNumber:   query.PageNumber,
		IncludeLists: query.IncludeLists,
	}
	if len(query.Email) > 0 {
		rq.Filter.Email = append(rq.Filter.Email, stringValue{Operator: "EqualTo", Value: query.Email})
	}
	var rs readContactsResponse
	if err = s.invoke(ctx, "readContacts", rq, &rs); err != nil {
		return
	}
	result = new(ReadContactsResult)
	for _, r := range rs.Return {
		result.Results = append(result.Results, r.Results...)
		if len(r.Id) > 0 {
			var contact = r.RemoteContact
			result.Contacts = append(result.Contacts, &contact)
		}
	}
	return
}

func (s *Session) AddOrUpdateContacts(ctx context.Context, contacts []*ContactPayload) (result *WriteResult, err error) {
	var rs writeResponse
	if err = s.invoke(ctx, "addOrUpdateContacts", &addOrUpdateContactsRequest{Contacts: contacts}, &rs); err == nil {
		result = &rs.Return
	}
	return
}

func (s *Session) DeleteContacts(ctx context.Context, contactIds []string) (result *WriteResult, err error) {
	var rq = new(deleteContactsRequest)
	for _, id := range contactIds {
		rq.Contacts = append(rq.Contacts, contactId{Id: id})
	}
	var rs writeResponse
	if err = s.invoke(ctx, "deleteContacts", rq, &rs); err == nil {
		result = &rs.Return
	}
	return
}
