package bronto

import (
	"errors"
	"net/url"
	"strings"

	ksm "github.com/keeper-security/secrets-manager-go/core"
)

type BrontoEndpointParameters struct {
	Url          string
	Token        string
	GroupMapping bool
}

type GoogleEndpointParameters struct {
	AdminAccount string
	Credentials  []byte
}

// FindBrontoRecord returns the first login record that points to a Bronto API URL.
func FindBrontoRecord(records []*ksm.Record) (brontoRecord *ksm.Record) {
	for _, r := range records {
		if r.Type() != "login" {
			continue
		}
		var webUrl = r.GetFieldValueByType("url")
		if len(webUrl) == 0 {
			continue
		}
		var uri *url.URL
		var er1 error
		if uri, er1 = url.Parse(webUrl); er1 != nil {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(uri.Hostname()), "bronto.com") {
			continue
		}
		brontoRecord = r
		break
	}
	return
}

// LoadBrontoParametersFromRecord reads Bronto and Google Workspace parameters.
// gcp is nil when the record has no "credentials.json" attachment.
func LoadBrontoParametersFromRecord(brontoRecord *ksm.Record) (bp *BrontoEndpointParameters, gcp *GoogleEndpointParameters, err error) {
	bp = &BrontoEndpointParameters{
		Url:          brontoRecord.GetFieldValueByType("url"),
		Token:        brontoRecord.Password(),
		GroupMapping: true,
	}
	if len(bp.Token) == 0 {
		err = ErrNoToken
		return
	}

	var ok bool
	var bv bool
	var fields = brontoRecord.GetCustomFieldsByLabel("Group Mapping")
	if len(fields) > 0 {
		if bv, ok = toBoolean(fields[0]["value"]); ok {
			bp.GroupMapping = bv
		}
	}

	var files = brontoRecord.FindFiles("credentials.json")
	if len(files) == 0 {
		return
	}
	var subject = brontoRecord.GetFieldValueByType("login")
	if len(subject) == 0 {
		err = errors.New("\"login\" field must contain the Google Workspace admin account")
		return
	}
	gcp = &GoogleEndpointParameters{
		AdminAccount: subject,
		Credentials:  files[0].GetFileData(),
	}
	return
}
