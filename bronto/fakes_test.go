package bronto

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type fakeApi struct {
	fields      []*FieldDefinition
	lists       []*MailingList
	contacts    map[string]*RemoteContact
	writeResult *WriteResult
	err         error
	nextId      int

	readFieldsCalls int
	readListsCalls  int
	lookups         []string
	saved           []*ContactPayload
	deleted         []string
}

func newFakeApi() *fakeApi {
	return &fakeApi{
		contacts: make(map[string]*RemoteContact),
		nextId:   100,
	}
}

func (f *fakeApi) ReadFields(_ context.Context, _ int) ([]*FieldDefinition, error) {
	f.readFieldsCalls++
	return f.fields, f.err
}

func (f *fakeApi) ReadLists(_ context.Context, _ int) ([]*MailingList, error) {
	f.readListsCalls++
	return f.lists, f.err
}

func (f *fakeApi) ReadContacts(_ context.Context, query *ContactQuery) (*ReadContactsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lookups = append(f.lookups, query.Email)
	var result = new(ReadContactsResult)
	if c, ok := f.contacts[query.Email]; ok {
		result.Contacts = append(result.Contacts, c)
	}
	return result, nil
}

func (f *fakeApi) AddOrUpdateContacts(_ context.Context, contacts []*ContactPayload) (*WriteResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range contacts {
		var copied = *c
		f.saved = append(f.saved, &copied)
		if f.writeResult == nil && len(c.Id) == 0 {
			f.contacts[c.Email] = &RemoteContact{Id: fmt.Sprint(f.nextId), Email: c.Email}
			f.nextId++
		}
	}
	if f.writeResult != nil {
		return f.writeResult, nil
	}
	return &WriteResult{Results: []*ResultItem{{Id: "1"}}}, nil
}

func (f *fakeApi) DeleteContacts(_ context.Context, contactIds []string) (*WriteResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, contactIds...)
	if f.writeResult != nil {
		return f.writeResult, nil
	}
	return &WriteResult{Results: []*ResultItem{{Id: contactIds[0]}}}, nil
}

type plainDirectory struct {
	users map[string]*LocalUser
}

func (d plainDirectory) GetUser(_ context.Context, userId string) (*LocalUser, error) {
	return d.users[userId], nil
}

type groupDirectory struct {
	plainDirectory
	groups     map[string][]*Group
	groupCalls int
}

func (d *groupDirectory) UserGroups(_ context.Context, userId string) ([]*Group, error) {
	d.groupCalls++
	return d.groups[userId], nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// fakeBrontoServer answers Bronto SOAP envelopes by operation name.
type fakeBrontoServer struct {
	lock       sync.Mutex
	logins     int
	requests   []string
	responses  map[string]string
	loginFault string
}

func soapResponse(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		inner +
		`</soap:Body></soap:Envelope>`
}

func soapFault(code string, message string) string {
	return soapResponse(`<soap:Fault><faultcode>` + code + `</faultcode><faultstring>` + message + `</faultstring></soap:Fault>`)
}

func brontoResponse(operation string, inner string) string {
	return `<ns2:` + operation + `Response xmlns:ns2="http://api.bronto.com/v4">` + inner + `</ns2:` + operation + `Response>`
}

func (f *fakeBrontoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var rq = string(body)

	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests = append(f.requests, rq)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if strings.Contains(rq, "<v4:login>") {
		f.logins++
		if len(f.loginFault) > 0 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, soapFault("soap:Client", f.loginFault))
			return
		}
		_, _ = io.WriteString(w, soapResponse(brontoResponse("login", "<return>sess-1</return>")))
		return
	}
	for operation, inner := range f.responses {
		if strings.Contains(rq, "<v4:"+operation+">") {
			_, _ = io.WriteString(w, soapResponse(brontoResponse(operation, inner)))
			return
		}
	}
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, soapFault("soap:Server", "Unknown operation"))
}

func (f *fakeBrontoServer) Requests() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.requests...)
}
