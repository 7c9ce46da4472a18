package bronto

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultApiUrl    = "https://api.bronto.com/v4"
	brontoNamespace  = "http://api.bronto.com/v4"
	soapEnvNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
)

type soapEnvelope struct {
	XMLName xml.Name    `xml:"soapenv:Envelope"`
	SoapEnv string      `xml:"xmlns:soapenv,attr"`
	V4      string      `xml:"xmlns:v4,attr"`
	Header  *soapHeader `xml:"soapenv:Header,omitempty"`
	Body    soapBody    `xml:"soapenv:Body"`
}

type soapHeader struct {
	SessionHeader sessionHeader `xml:"v4:sessionHeader"`
}

type sessionHeader struct {
	SessionId string `xml:"sessionId"`
}

type soapBody struct {
	Content any
}

type soapResponseEnvelope struct {
	Body struct {
		Fault   *SoapFault `xml:"Fault"`
		Content []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

// SoapFault is a fault returned by the Bronto endpoint in place of a response.
type SoapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *SoapFault) Error() string {
	return fmt.Sprintf("SOAP fault %s: %s", f.Code, f.String)
}

type soapClient struct {
	apiUrl     string
	httpClient *http.Client
}

func newSoapClient(apiUrl string, httpClient *http.Client) (client *soapClient, err error) {
	var uri *url.URL
	if uri, err = url.Parse(apiUrl); err != nil {
		return
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		err = fmt.Errorf("Bronto API URL \"%s\": unsupported scheme", apiUrl)
		return
	}
	if len(uri.Host) == 0 {
		err = fmt.Errorf("Bronto API URL \"%s\": missing host", apiUrl)
		return
	}
	uri.RawQuery = ""
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client = &soapClient{
		apiUrl:     uri.String(),
		httpClient: httpClient,
	}
	return
}

// SecureApiUrl upgrades a plain http Bronto URL to https
func SecureApiUrl(apiUrl string) string {
	if strings.HasPrefix(apiUrl, "http://") {
		return "https://" + apiUrl[len("http://"):]
	}
	return apiUrl
}

func encodeEnvelope(sessionId string, request any) (data []byte, err error) {
	var envelope = soapEnvelope{
		SoapEnv: soapEnvNamespace,
		V4:      brontoNamespace,
		Body:    soapBody{Content: request},
	}
	if len(sessionId) > 0 {
		envelope.Header = &soapHeader{
			SessionHeader: sessionHeader{SessionId: sessionId},
		}
	}
	var buffer bytes.Buffer
	buffer.WriteString(xml.Header)
	if err = xml.NewEncoder(&buffer).Encode(envelope); err != nil {
		return
	}
	data = buffer.Bytes()
	return
}

func decodeEnvelope(body []byte, response any) (err error) {
	var envelope soapResponseEnvelope
	if err = xml.Unmarshal(body, &envelope); err != nil {
		return
	}
	if envelope.Body.Fault != nil {
		err = envelope.Body.Fault
		return
	}
	if response != nil {
		err = xml.Unmarshal(envelope.Body.Content, response)
	}
	return
}

func (c *soapClient) call(ctx context.Context, operation string, sessionId string, request any, response any) (err error) {
	var data []byte
	if data, err = encodeEnvelope(sessionId, request); err != nil {
		return
	}

	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, "POST", c.apiUrl, bytes.NewBuffer(data)); err != nil {
		return
	}
	rq.Header.Add("Content-Type", "text/xml; charset=utf-8")
	rq.Header.Add("SOAPAction", "\"\"")

	var rs *http.Response
	if rs, err = c.httpClient.Do(rq); err != nil {
		return
	}
	defer func() { _ = rs.Body.Close() }()

	var body []byte
	if body, err = io.ReadAll(rs.Body); err != nil {
		return
	}
	var contentType = rs.Header.Get("Content-Type")
	var isXml = strings.Contains(contentType, "xml")
	if rs.StatusCode >= 300 && (!isXml || len(body) == 0) {
		err = fmt.Errorf("Bronto \"%s\" error: Status code %d", operation, rs.StatusCode)
		return
	}
	if err = decodeEnvelope(body, response); err != nil {
		err = fmt.Errorf("Bronto \"%s\" error: %w", operation, err)
	}
	return
}
